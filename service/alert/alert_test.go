package alert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"go.viam.com/test"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/service/config"
)

func sampleTransition() model.Transition {
	return model.Transition{
		RunID:      "run-1",
		Camera:     "0",
		Iteration:  4,
		Previous:   1,
		Current:    3,
		Identifier: "20261019-080910.123-1",
		LatestPath: "./latest.png",
		SavedPath:  "screens/20261019-080910.123-1.png",
		Timestamp:  time.Date(2026, 10, 19, 8, 9, 10, 123e6, time.UTC).UnixMilli(),
	}
}

func TestBellWritesBellAndMessage(t *testing.T) {
	var out bytes.Buffer
	err := NewBell(&out).Notify(context.Background(), sampleTransition())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldStartWith, "\a")
	test.That(t, out.String(), test.ShouldContainSubstring, "occupancy rose 1 -> 3 on camera 0")
}

func TestChimeRendersPlayableWAV(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	_, err := NewChime(dir, []string{"true"}, &out)
	test.That(t, err, test.ShouldBeNil)

	f, err := os.Open(filepath.Join(dir, chimeFile))
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()

	dec := wav.NewDecoder(f)
	test.That(t, dec.IsValidFile(), test.ShouldBeTrue)
	test.That(t, dec.NumChans, test.ShouldEqual, uint16(1))
	test.That(t, dec.SampleRate, test.ShouldEqual, uint32(chimeSampleRate))
	test.That(t, dec.BitDepth, test.ShouldEqual, uint16(chimeBitDepth))

	buf, err := dec.FullPCMBuffer()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(buf.Data), test.ShouldEqual, len(synthesize(chimeNotes).Data))
}

func TestChimePlaysWithPlayer(t *testing.T) {
	var out bytes.Buffer
	svc, err := NewChime(t.TempDir(), []string{"no-such-player-vs-sentry", "true"}, &out)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, svc.Notify(context.Background(), sampleTransition()), test.ShouldBeNil)
	test.That(t, out.Len(), test.ShouldEqual, 0)
}

func TestChimeFallsBackToBell(t *testing.T) {
	var out bytes.Buffer
	svc, err := NewChime(t.TempDir(), []string{"no-such-player-vs-sentry"}, &out)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, svc.Notify(context.Background(), sampleTransition()), test.ShouldBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "occupancy rose")
}

func TestChimePlayerFailureRingsBell(t *testing.T) {
	var out bytes.Buffer
	svc, err := NewChime(t.TempDir(), []string{"false"}, &out)
	test.That(t, err, test.ShouldBeNil)

	err = svc.Notify(context.Background(), sampleTransition())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, out.String(), test.ShouldContainSubstring, "occupancy rose")
}

func TestSynthesizeStaysInRange(t *testing.T) {
	buf := synthesize(chimeNotes)
	test.That(t, buf.Format.SampleRate, test.ShouldEqual, chimeSampleRate)
	test.That(t, len(buf.Data), test.ShouldBeGreaterThan, 0)
	for _, v := range buf.Data {
		test.That(t, v, test.ShouldBeBetweenOrEqual, -32767, 32767)
	}
}

type fakeWebhook struct {
	payload map[string]interface{}
	err     error
}

func (w *fakeWebhook) Post(_ context.Context, payload map[string]interface{}) error {
	w.payload = payload
	return w.err
}

func (w *fakeWebhook) Close() error {
	return nil
}

func TestWebhookAlertPayload(t *testing.T) {
	hook := &fakeWebhook{}
	err := NewWebhook(hook).Notify(context.Background(), sampleTransition())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, hook.payload["source"], test.ShouldEqual, "0")
	test.That(t, hook.payload["current"], test.ShouldEqual, 3)
	test.That(t, hook.payload["previous"], test.ShouldEqual, 1)
	test.That(t, hook.payload["identifier"], test.ShouldEqual, "20261019-080910.123-1")
	test.That(t, hook.payload["timestamp"], test.ShouldEqual, "2026-10-19T08:09:10.123Z")
}

type countingAlert struct {
	calls int
	err   error
}

func (a *countingAlert) Notify(_ context.Context, _ model.Transition) error {
	a.calls++
	return a.err
}

func TestMultiNotifiesAll(t *testing.T) {
	first := &countingAlert{err: errors.New("speaker unplugged")}
	second := &countingAlert{}

	err := NewMulti(first, second).Notify(context.Background(), sampleTransition())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "speaker unplugged")
	test.That(t, first.calls, test.ShouldEqual, 1)
	test.That(t, second.calls, test.ShouldEqual, 1)

	test.That(t, NewMulti().Notify(context.Background(), sampleTransition()), test.ShouldBeNil)
}

func newNotifierConfig(t *testing.T, mutate func(s *config.Settings)) config.IService {
	t.Helper()
	s := config.Defaults()
	mutate(&s)
	cfgSvc, err := config.New(s)
	test.That(t, err, test.ShouldBeNil)
	return cfgSvc
}

// blockedCacheDir is a path whose parent is a regular file, so rendering the
// chime there always fails.
func blockedCacheDir(t *testing.T) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "not-a-dir")
	test.That(t, os.WriteFile(file, []byte("x"), 0o644), test.ShouldBeNil)
	return filepath.Join(file, "chime")
}

func TestAudibleSkippedWhenAlertsOff(t *testing.T) {
	cacheDir := blockedCacheDir(t)
	cfgSvc := newNotifierConfig(t, func(s *config.Settings) {
		s.Alert = false
		s.Notifier.ChimeCacheDir = cacheDir
	})

	svc, err := NewAudible(cfgSvc, &bytes.Buffer{}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, svc, test.ShouldBeNil)

	_, err = NewAudible(cfgSvc, &bytes.Buffer{}, true)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAudibleBuiltWhenAlertsOn(t *testing.T) {
	cfgSvc := newNotifierConfig(t, func(s *config.Settings) {
		s.Alert = true
		s.Notifier.ChimeCacheDir = blockedCacheDir(t)
	})
	_, err := NewAudible(cfgSvc, &bytes.Buffer{}, false)
	test.That(t, err, test.ShouldNotBeNil)

	cacheDir := t.TempDir()
	cfgSvc = newNotifierConfig(t, func(s *config.Settings) {
		s.Alert = true
		s.Notifier.ChimeCacheDir = cacheDir
		s.Notifier.Players = nil
	})
	svc, err := NewAudible(cfgSvc, &bytes.Buffer{}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, svc, test.ShouldNotBeNil)
	_, err = os.Stat(filepath.Join(cacheDir, chimeFile))
	test.That(t, err, test.ShouldBeNil)
}

func TestNotifierFromWebhookSettings(t *testing.T) {
	cfgSvc := newNotifierConfig(t, func(s *config.Settings) {})
	svc, hooks, err := NewNotifier(cfgSvc)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, svc, test.ShouldBeNil)
	test.That(t, hooks, test.ShouldBeEmpty)

	cfgSvc = newNotifierConfig(t, func(s *config.Settings) {
		s.Notifier.WebhookURL = "http://127.0.0.1:1/hook"
	})
	svc, hooks, err = NewNotifier(cfgSvc)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, svc, test.ShouldNotBeNil)
	test.That(t, hooks, test.ShouldHaveLength, 1)
	test.That(t, hooks[0].Close(), test.ShouldBeNil)
}
