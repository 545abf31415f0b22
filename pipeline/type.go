package pipeline

import (
	"image"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/service/alert"
	"github.com/khaledhikmat/vs-sentry/service/capture"
	"github.com/khaledhikmat/vs-sentry/service/config"
	"github.com/khaledhikmat/vs-sentry/service/data"
	"github.com/khaledhikmat/vs-sentry/service/inference"
	"github.com/khaledhikmat/vs-sentry/service/live"
	"github.com/khaledhikmat/vs-sentry/service/storage"
)

// ServicesFactory carries every collaborator of the watcher. AlertSvc is the
// audible alert and is only required when alerts are enabled. NotifySvc
// (webhooks) runs on every rising edge regardless of the alert flag. Both
// NotifySvc and LiveSvc are optional.
type ServicesFactory struct {
	CfgSvc       config.IService
	DataSvc      data.IService
	CaptureSvc   capture.IService
	InferenceSvc inference.IService
	AlertSvc     alert.IService
	NotifySvc    alert.IService
	StorageSvc   storage.IService
	LiveSvc      live.IService
}

// StopSignal is polled once per iteration, after the frame was emitted.
type StopSignal interface {
	Stopped() bool
}

// StopFunc adapts a function to StopSignal.
type StopFunc func() bool

func (f StopFunc) Stopped() bool {
	return f()
}

// Annotator draws detections onto a copy of the frame.
type Annotator func(frame image.Image, detections []model.Detection) image.Image

// AlertData is one rising edge handed to the alerter goroutine.
type AlertData struct {
	Transition model.Transition
	Frame      image.Image
	Alert      bool
	Save       bool
}
