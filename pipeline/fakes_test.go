package pipeline

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"go.viam.com/test"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/service/capture"
	"github.com/khaledhikmat/vs-sentry/service/config"
	"github.com/khaledhikmat/vs-sentry/service/inference"
)

func testFrame() image.Image {
	return imaging.New(4, 2, color.NRGBA{R: 20, G: 40, B: 60, A: 255})
}

type readStep struct {
	err error
}

// scriptedSource yields one frame per step without an error; past the end
// of the script it reports end of stream, or frames forever when endless.
type scriptedSource struct {
	mu      sync.Mutex
	steps   []readStep
	endless bool
	reads   int
	closed  int
}

func framesThenEOS(n int) *scriptedSource {
	return &scriptedSource{steps: make([]readStep, n)}
}

func (s *scriptedSource) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.reads
	s.reads++
	if idx >= len(s.steps) {
		if s.endless {
			return testFrame(), nil
		}
		return nil, capture.ErrEndOfStream
	}

	if s.steps[idx].err != nil {
		return nil, s.steps[idx].err
	}
	return testFrame(), nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *scriptedSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type memoryStorage struct {
	mu        sync.Mutex
	latest    []image.Image
	saved     []string
	latestErr error
	saveErr   error
}

func (s *memoryStorage) StoreLatest(frame image.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestErr != nil {
		return "", s.latestErr
	}
	s.latest = append(s.latest, frame)
	return "latest.png", nil
}

func (s *memoryStorage) StoreFrame(_ image.Image, identifier string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saved = append(s.saved, identifier)
	return "screens/" + identifier + ".png", nil
}

func (s *memoryStorage) latestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latest)
}

type recordingAlert struct {
	mu       sync.Mutex
	notified []model.Transition
	release  chan struct{}
	err      error
}

func (a *recordingAlert) Notify(_ context.Context, t model.Transition) error {
	if a.release != nil {
		<-a.release
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notified = append(a.notified, t)
	return a.err
}

func (a *recordingAlert) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.notified)
}

type memoryData struct {
	mu          sync.Mutex
	errs        []interface{}
	stats       []model.WatcherStats
	transitions []model.Transition
}

func (d *memoryData) NewError(err interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, err)
	return nil
}

func (d *memoryData) NewWatcherStats(stats model.WatcherStats) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = append(d.stats, stats)
	return nil
}

func (d *memoryData) NewTransition(t model.Transition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transitions = append(d.transitions, t)
	return nil
}

func (d *memoryData) Close() error {
	return nil
}

type recordingLive struct {
	mu     sync.Mutex
	frames []image.Image
	closed int
	err    error
}

func (l *recordingLive) Emit(frame image.Image) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, frame)
	return l.err
}

func (l *recordingLive) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

// boundsDetector records the size of every frame it sees.
type boundsDetector struct {
	sizes []image.Point
}

func (d *boundsDetector) Detect(_ context.Context, frame image.Image, _ float64) ([]model.Detection, error) {
	d.sizes = append(d.sizes, frame.Bounds().Size())
	return nil, nil
}

func (d *boundsDetector) Close() error {
	return nil
}

type harness struct {
	source  *scriptedSource
	storage *memoryStorage
	alert   *recordingAlert
	notify  *recordingAlert
	data    *memoryData
	live    *recordingLive
	reports []model.IterationReport
}

func newConfig(t *testing.T, mutate func(s *config.Settings)) config.IService {
	t.Helper()
	s := config.Defaults()
	s.Annotate = false
	s.TransientBackoffMillis = 0
	if mutate != nil {
		mutate(&s)
	}
	cfgSvc, err := config.New(s)
	test.That(t, err, test.ShouldBeNil)
	return cfgSvc
}

func newHarness(source *scriptedSource) *harness {
	return &harness{
		source:  source,
		storage: &memoryStorage{},
		alert:   &recordingAlert{},
		data:    &memoryData{},
		live:    &recordingLive{},
	}
}

func (h *harness) services(cfgSvc config.IService, detector inference.IService) ServicesFactory {
	svcs := ServicesFactory{
		CfgSvc:       cfgSvc,
		DataSvc:      h.data,
		CaptureSvc:   h.source,
		InferenceSvc: detector,
		AlertSvc:     h.alert,
		StorageSvc:   h.storage,
		LiveSvc:      h.live,
	}
	if h.notify != nil {
		svcs.NotifySvc = h.notify
	}
	return svcs
}

func (h *harness) watcher(t *testing.T, cfgSvc config.IService, detector inference.IService, opts ...Option) *Watcher {
	t.Helper()
	opts = append([]Option{WithObserver(func(r model.IterationReport) {
		h.reports = append(h.reports, r)
	})}, opts...)
	w, err := NewWatcher(h.services(cfgSvc, detector), opts...)
	test.That(t, err, test.ShouldBeNil)
	return w
}

func (h *harness) fired() []int64 {
	fired := []int64{}
	for _, r := range h.reports {
		if r.Fired {
			fired = append(fired, r.Iteration)
		}
	}
	return fired
}

func (h *harness) currents() []int {
	currents := []int{}
	for _, r := range h.reports {
		currents = append(currents, r.Current)
	}
	return currents
}
