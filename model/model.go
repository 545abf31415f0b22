package model

import (
	"fmt"
	"image"
	"runtime/debug"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// Detection is one bounding region reported by a detector.
type Detection struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// DetectionResult is the thresholded outcome of one frame.
type DetectionResult struct {
	Count      int         `json:"count"`
	Detections []Detection `json:"detections"`
	Frame      image.Image `json:"-"`
}

// Transition is raised on every rising edge of the occupancy count.
type Transition struct {
	RunID      string `json:"runId"`
	Camera     string `json:"camera"`
	Iteration  int64  `json:"iteration"`
	Previous   int    `json:"previous"`
	Current    int    `json:"current"`
	Identifier string `json:"identifier"`
	LatestPath string `json:"latestPath"`
	SavedPath  string `json:"savedPath"`
	Timestamp  int64  `json:"timestamp"` // Unix milliseconds
}

// IterationReport describes how one loop iteration was decided.
type IterationReport struct {
	Iteration     int64 `json:"iteration"`
	Previous      int   `json:"previous"`
	Current       int   `json:"current"`
	Fired         bool  `json:"fired"`
	DetectorError bool  `json:"detectorError"`
	Skipped       bool  `json:"skipped"`
}

type WatcherStats struct {
	RunID            string `json:"runId"`
	Camera           string `json:"camera"`
	Iterations       int64  `json:"iterations"`
	RisingEdges      int64  `json:"risingEdges"`
	DetectorErrors   int64  `json:"detectorErrors"`
	TransientErrors  int64  `json:"transientErrors"`
	SideEffectErrors int64  `json:"sideEffectErrors"`
	DroppedAlerts    int64  `json:"droppedAlerts"`
	LastCount        int    `json:"lastCount"`
	Uptime           int64  `json:"uptime"`
	Timestamp        int64  `json:"timestamp"`
}
