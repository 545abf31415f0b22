package config

import (
	"time"

	"github.com/khaledhikmat/vs-sentry/model"
)

type settingsService struct {
	s Settings
}

// New validates s and freezes it. The returned service holds its own copy.
func New(s Settings) (IService, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.Notifier.Players = append([]string{}, s.Notifier.Players...)
	return &settingsService{s: s}, nil
}

// NewHardCoded returns the built-in defaults.
func NewHardCoded() IService {
	svc, err := New(Defaults())
	if err != nil {
		panic("invalid default settings: " + err.Error())
	}
	return svc
}

func (svc *settingsService) GetCamera() string {
	return svc.s.Camera
}

func (svc *settingsService) GetDelay() time.Duration {
	return time.Duration(svc.s.DelaySeconds) * time.Second
}

func (svc *settingsService) GetRotation() model.Rotation {
	return svc.s.Rotation
}

func (svc *settingsService) GetThreshold() float64 {
	return svc.s.Threshold
}

func (svc *settingsService) IsAlertEnabled() bool {
	return svc.s.Alert
}

func (svc *settingsService) IsSaveEnabled() bool {
	return svc.s.Save
}

func (svc *settingsService) IsAnnotationEnabled() bool {
	return svc.s.Annotate
}

func (svc *settingsService) GetDetectorFailurePolicy() string {
	return svc.s.DetectorFailurePolicy
}

func (svc *settingsService) GetMaxTransientRetries() int {
	return svc.s.MaxTransientRetries
}

func (svc *settingsService) GetTransientBackoff() time.Duration {
	return time.Duration(svc.s.TransientBackoffMillis) * time.Millisecond
}

func (svc *settingsService) GetAlertQueueSize() int {
	return svc.s.AlertQueueSize
}

func (svc *settingsService) GetLatestPath() string {
	return svc.s.LatestPath
}

func (svc *settingsService) GetRecordingsFolder() string {
	return svc.s.RecordingsFolder
}

func (svc *settingsService) GetInputFolder() string {
	return svc.s.InputFolder
}

func (svc *settingsService) GetEventsDB() string {
	return svc.s.EventsDB
}

func (svc *settingsService) GetModeMaxShutdownTime() time.Duration {
	return time.Duration(svc.s.ShutdownSeconds) * time.Second
}

func (svc *settingsService) GetDetectorParameters() DetectorParameters {
	return svc.s.Detector
}

func (svc *settingsService) GetLiveParameters() LiveParameters {
	return svc.s.Live
}

func (svc *settingsService) GetNotifierParameters() NotifierParameters {
	p := svc.s.Notifier
	p.Players = append([]string{}, p.Players...)
	return p
}

func (svc *settingsService) GetLogParameters() LogParameters {
	return svc.s.Log
}
