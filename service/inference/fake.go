package inference

import (
	"context"
	"image"
	"sync"

	"github.com/khaledhikmat/vs-sentry/model"
)

// Step scripts one Detect call of the fake detector.
type Step struct {
	Count int
	Err   error
	Panic bool
}

type fakeService struct {
	steps  []Step
	calls  int
	mu     sync.Mutex
	closed bool
}

// NewFake replays a scripted sequence of results. Once the script is
// exhausted the last step repeats. An empty script always reports zero.
func NewFake(steps ...Step) IService {
	return &fakeService{
		steps: steps,
	}
}

// NewCounts is a shorthand for a script of plain counts.
func NewCounts(counts ...int) IService {
	steps := make([]Step, 0, len(counts))
	for _, c := range counts {
		steps = append(steps, Step{Count: c})
	}
	return NewFake(steps...)
}

func (svc *fakeService) Detect(_ context.Context, frame image.Image, threshold float64) ([]model.Detection, error) {
	svc.mu.Lock()
	step := Step{}
	if len(svc.steps) > 0 {
		idx := svc.calls
		if idx >= len(svc.steps) {
			idx = len(svc.steps) - 1
		}
		step = svc.steps[idx]
	}
	svc.calls++
	svc.mu.Unlock()

	if step.Panic {
		panic("fake detector panic")
	}

	if step.Err != nil {
		return nil, step.Err
	}

	bounds := image.Rect(0, 0, 1, 1)
	if frame != nil {
		bounds = frame.Bounds()
	}

	detections := make([]model.Detection, 0, step.Count)
	for i := 0; i < step.Count; i++ {
		detections = append(detections, model.Detection{
			Label:      "person",
			Confidence: threshold,
			Box:        bounds,
		})
	}
	return detections, nil
}

func (svc *fakeService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.closed = true
	return nil
}
