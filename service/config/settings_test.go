package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/khaledhikmat/vs-sentry/model"
)

func TestDefaultsAreValid(t *testing.T) {
	svc := NewHardCoded()
	test.That(t, svc.GetCamera(), test.ShouldEqual, "0")
	test.That(t, svc.GetDelay(), test.ShouldEqual, time.Duration(0))
	test.That(t, svc.GetRotation(), test.ShouldEqual, model.RotationNone)
	test.That(t, svc.GetThreshold(), test.ShouldEqual, 0.8)
	test.That(t, svc.IsAlertEnabled(), test.ShouldBeFalse)
	test.That(t, svc.IsSaveEnabled(), test.ShouldBeFalse)
	test.That(t, svc.GetDetectorFailurePolicy(), test.ShouldEqual, FailurePolicyHold)
	test.That(t, svc.GetTransientBackoff(), test.ShouldEqual, 200*time.Millisecond)
	test.That(t, svc.GetLatestPath(), test.ShouldEqual, "./latest.png")
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := map[string]func(s *Settings){
		"empty camera":     func(s *Settings) { s.Camera = "" },
		"negative delay":   func(s *Settings) { s.DelaySeconds = -1 },
		"bad rotation":     func(s *Settings) { s.Rotation = model.Rotation(7) },
		"nan threshold":    func(s *Settings) { s.Threshold = math.NaN() },
		"inf threshold":    func(s *Settings) { s.Threshold = math.Inf(1) },
		"bad policy":       func(s *Settings) { s.DetectorFailurePolicy = "retry" },
		"negative retry":   func(s *Settings) { s.MaxTransientRetries = -1 },
		"zero queue":       func(s *Settings) { s.AlertQueueSize = 0 },
		"no latest":        func(s *Settings) { s.LatestPath = "" },
		"dnn no model":     func(s *Settings) { s.Detector.Kind = DetectorDNN },
		"unknown kind":     func(s *Settings) { s.Detector.Kind = "svm" },
		"save no folder":   func(s *Settings) { s.Save = true; s.RecordingsFolder = "" },
		"negative backoff": func(s *Settings) { s.TransientBackoffMillis = -5 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := Defaults()
			mutate(&s)
			_, err := New(s)
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}

func TestNegativeThresholdIsAccepted(t *testing.T) {
	s := Defaults()
	s.Threshold = -0.5
	svc, err := New(s)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, svc.GetThreshold(), test.ShouldEqual, -0.5)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentry.yaml")
	doc := `
camera: rtsp://cam.local/stream
delaySeconds: 2
rotation: cw90
threshold: 0.5
alert: true
detector:
  kind: dnn
  modelPath: ./models/frozen_inference_graph.pb
notifier:
  players: [aplay]
`
	test.That(t, os.WriteFile(path, []byte(doc), 0o644), test.ShouldBeNil)

	s := Defaults()
	test.That(t, LoadFile(path, &s), test.ShouldBeNil)

	svc, err := New(s)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, svc.GetCamera(), test.ShouldEqual, "rtsp://cam.local/stream")
	test.That(t, svc.GetDelay(), test.ShouldEqual, 2*time.Second)
	test.That(t, svc.GetRotation(), test.ShouldEqual, model.RotationCW90)
	test.That(t, svc.GetThreshold(), test.ShouldEqual, 0.5)
	test.That(t, svc.IsAlertEnabled(), test.ShouldBeTrue)
	test.That(t, svc.GetDetectorParameters().Kind, test.ShouldEqual, DetectorDNN)
	test.That(t, svc.GetDetectorParameters().PersonClassID, test.ShouldEqual, 1)
	test.That(t, svc.GetNotifierParameters().Players, test.ShouldResemble, []string{"aplay"})
	// untouched keys keep their defaults
	test.That(t, svc.GetLatestPath(), test.ShouldEqual, "./latest.png")
	test.That(t, svc.GetDetectorFailurePolicy(), test.ShouldEqual, FailurePolicyHold)
}

func TestLoadFileErrors(t *testing.T) {
	s := Defaults()
	err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), &s)
	test.That(t, err, test.ShouldNotBeNil)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	test.That(t, os.WriteFile(path, []byte("rotation: sideways\n"), 0o644), test.ShouldBeNil)
	err = LoadFile(path, &s)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestServiceIsIsolatedFromCaller(t *testing.T) {
	s := Defaults()
	svc, err := New(s)
	test.That(t, err, test.ShouldBeNil)

	s.Notifier.Players[0] = "mutated"
	test.That(t, svc.GetNotifierParameters().Players[0], test.ShouldEqual, "paplay")

	players := svc.GetNotifierParameters().Players
	players[0] = "mutated"
	test.That(t, svc.GetNotifierParameters().Players[0], test.ShouldEqual, "paplay")
}
