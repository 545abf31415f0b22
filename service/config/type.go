package config

import (
	"time"

	"github.com/khaledhikmat/vs-sentry/model"
)

const (
	// FailurePolicyHold treats a failed detection as an unchanged count.
	FailurePolicyHold = "hold"
	// FailurePolicySkip abandons the iteration without touching the loop state.
	FailurePolicySkip = "skip"

	DetectorHOG = "hog"
	DetectorDNN = "dnn"
)

// IService exposes read-only access to settings that are validated once
// and never change for the lifetime of the process.
type IService interface {
	GetCamera() string
	GetDelay() time.Duration
	GetRotation() model.Rotation
	GetThreshold() float64
	IsAlertEnabled() bool
	IsSaveEnabled() bool
	IsAnnotationEnabled() bool
	GetDetectorFailurePolicy() string
	GetMaxTransientRetries() int
	GetTransientBackoff() time.Duration
	GetAlertQueueSize() int
	GetLatestPath() string
	GetRecordingsFolder() string
	GetInputFolder() string
	GetEventsDB() string
	GetModeMaxShutdownTime() time.Duration
	GetDetectorParameters() DetectorParameters
	GetLiveParameters() LiveParameters
	GetNotifierParameters() NotifierParameters
	GetLogParameters() LogParameters
}

type DetectorParameters struct {
	Kind          string `yaml:"kind"`
	ModelPath     string `yaml:"modelPath"`
	ConfigPath    string `yaml:"configPath"`
	PersonClassID int    `yaml:"personClassId"`
}

type LiveParameters struct {
	Display    bool    `yaml:"display"`
	RecordPath string  `yaml:"recordPath"`
	RecordFPS  float64 `yaml:"recordFps"`
	ServeAddr  string  `yaml:"serveAddr"`
}

type NotifierParameters struct {
	ChimeCacheDir  string   `yaml:"chimeCacheDir"`
	Players        []string `yaml:"players"`
	WebhookURL     string   `yaml:"webhookUrl"`
	MQTTBroker     string   `yaml:"mqttBroker"`
	MQTTTopic      string   `yaml:"mqttTopic"`
	TimeoutSeconds int      `yaml:"timeoutSeconds"`
}

type LogParameters struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}
