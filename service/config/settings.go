package config

import (
	"math"
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/khaledhikmat/vs-sentry/model"
)

// Settings is the full configuration surface. It is assembled from defaults,
// an optional YAML file and command line flags, then frozen behind IService.
type Settings struct {
	Camera                 string             `yaml:"camera"`
	DelaySeconds           int                `yaml:"delaySeconds"`
	Rotation               model.Rotation     `yaml:"rotation"`
	Threshold              float64            `yaml:"threshold"`
	Alert                  bool               `yaml:"alert"`
	Save                   bool               `yaml:"save"`
	Annotate               bool               `yaml:"annotate"`
	DetectorFailurePolicy  string             `yaml:"detectorFailurePolicy"`
	MaxTransientRetries    int                `yaml:"maxTransientRetries"`
	TransientBackoffMillis int                `yaml:"transientBackoffMillis"`
	AlertQueueSize         int                `yaml:"alertQueueSize"`
	LatestPath             string             `yaml:"latestPath"`
	RecordingsFolder       string             `yaml:"recordingsFolder"`
	InputFolder            string             `yaml:"inputFolder"`
	EventsDB               string             `yaml:"eventsDb"`
	ShutdownSeconds        int                `yaml:"shutdownSeconds"`
	Detector               DetectorParameters `yaml:"detector"`
	Live                   LiveParameters     `yaml:"live"`
	Notifier               NotifierParameters `yaml:"notifier"`
	Log                    LogParameters      `yaml:"log"`
}

func Defaults() Settings {
	return Settings{
		Camera:                 "0",
		DelaySeconds:           0,
		Rotation:               model.RotationNone,
		Threshold:              0.8,
		Annotate:               true,
		DetectorFailurePolicy:  FailurePolicyHold,
		MaxTransientRetries:    5,
		TransientBackoffMillis: 200,
		AlertQueueSize:         16,
		LatestPath:             "./latest.png",
		RecordingsFolder:       "./screens",
		InputFolder:            "./settings",
		ShutdownSeconds:        5,
		Detector: DetectorParameters{
			Kind:          DetectorHOG,
			PersonClassID: 1,
		},
		Live: LiveParameters{
			RecordFPS: 10,
		},
		Notifier: NotifierParameters{
			ChimeCacheDir:  os.TempDir(),
			Players:        []string{"paplay", "aplay", "afplay"},
			MQTTTopic:      "vs-sentry/transitions",
			TimeoutSeconds: 5,
		},
		Log: LogParameters{
			Level:      "info",
			File:       "log",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 7,
		},
	}
}

// LoadFile overlays the YAML document at path onto s. Keys absent from the
// file keep their current value.
func LoadFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return xerrors.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (s Settings) Validate() error {
	if s.Camera == "" {
		return xerrors.New("camera selector must not be empty")
	}
	if s.DelaySeconds < 0 {
		return xerrors.Errorf("delay must be non-negative, got %d", s.DelaySeconds)
	}
	if !s.Rotation.Valid() {
		return xerrors.Errorf("invalid rotation %d", int(s.Rotation))
	}
	if math.IsNaN(s.Threshold) || math.IsInf(s.Threshold, 0) {
		return xerrors.Errorf("threshold must be a finite number, got %v", s.Threshold)
	}
	switch s.DetectorFailurePolicy {
	case FailurePolicyHold, FailurePolicySkip:
	default:
		return xerrors.Errorf("invalid detector failure policy %q", s.DetectorFailurePolicy)
	}
	if s.MaxTransientRetries < 0 {
		return xerrors.Errorf("maxTransientRetries must be non-negative, got %d", s.MaxTransientRetries)
	}
	if s.TransientBackoffMillis < 0 {
		return xerrors.Errorf("transientBackoffMillis must be non-negative, got %d", s.TransientBackoffMillis)
	}
	if s.AlertQueueSize < 1 {
		return xerrors.Errorf("alertQueueSize must be at least 1, got %d", s.AlertQueueSize)
	}
	if s.LatestPath == "" {
		return xerrors.New("latestPath must not be empty")
	}
	if s.Save && s.RecordingsFolder == "" {
		return xerrors.New("recordingsFolder is required when saving is enabled")
	}
	switch s.Detector.Kind {
	case DetectorHOG:
	case DetectorDNN:
		if s.Detector.ModelPath == "" {
			return xerrors.New("dnn detector requires a model path")
		}
	default:
		return xerrors.Errorf("invalid detector kind %q", s.Detector.Kind)
	}
	return nil
}
