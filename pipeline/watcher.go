package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/atomic"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/service/config"
	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

// ErrAlreadyRun is returned by a second call to Run. The watcher owns its
// frame source and closes it when Run returns.
var ErrAlreadyRun = errors.New("watcher already run")

type Option func(*Watcher)

func WithClock(c clock.Clock) Option {
	return func(w *Watcher) {
		w.clock = c
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(w *Watcher) {
		w.tracer = t
	}
}

func WithStopSignal(s StopSignal) Option {
	return func(w *Watcher) {
		w.stop = s
	}
}

// WithObserver registers a callback invoked on the loop goroutine at the end
// of every iteration.
func WithObserver(fn func(model.IterationReport)) Option {
	return func(w *Watcher) {
		w.observer = fn
	}
}

func WithAnnotator(a Annotator) Option {
	return func(w *Watcher) {
		w.annotate = a
	}
}

// Watcher samples frames, counts people and fires on every rising edge of
// the count.
type Watcher struct {
	svcs     ServicesFactory
	clock    clock.Clock
	tracer   trace.Tracer
	stop     StopSignal
	observer func(model.IterationReport)
	annotate Annotator

	runID string
	ids   identifiers

	// previous is the loop state. Only the Run goroutine touches it;
	// lastCount mirrors it for readers on other goroutines.
	previous  int
	lastCount *atomic.Int64

	started          *atomic.Bool
	startTime        *atomic.Int64
	iterations       *atomic.Int64
	risingEdges      *atomic.Int64
	detectorErrors   *atomic.Int64
	transientErrors  *atomic.Int64
	sideEffectErrors *atomic.Int64
	droppedAlerts    *atomic.Int64
}

func NewWatcher(svcs ServicesFactory, opts ...Option) (*Watcher, error) {
	switch {
	case svcs.CfgSvc == nil:
		return nil, xerrors.New("watcher needs a config service")
	case svcs.DataSvc == nil:
		return nil, xerrors.New("watcher needs a data service")
	case svcs.CaptureSvc == nil:
		return nil, xerrors.New("watcher needs a capture service")
	case svcs.InferenceSvc == nil:
		return nil, xerrors.New("watcher needs an inference service")
	case svcs.StorageSvc == nil:
		return nil, xerrors.New("watcher needs a storage service")
	case svcs.CfgSvc.IsAlertEnabled() && svcs.AlertSvc == nil:
		return nil, xerrors.New("alerts are enabled but no alert service was given")
	}

	w := &Watcher{
		svcs:             svcs,
		clock:            clock.New(),
		tracer:           noop.NewTracerProvider().Tracer("vs-sentry/pipeline"),
		annotate:         Annotate,
		runID:            uuid.NewString(),
		lastCount:        atomic.NewInt64(0),
		started:          atomic.NewBool(false),
		startTime:        atomic.NewInt64(0),
		iterations:       atomic.NewInt64(0),
		risingEdges:      atomic.NewInt64(0),
		detectorErrors:   atomic.NewInt64(0),
		transientErrors:  atomic.NewInt64(0),
		sideEffectErrors: atomic.NewInt64(0),
		droppedAlerts:    atomic.NewInt64(0),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

func (w *Watcher) RunID() string {
	return w.runID
}

// PreviousCount is the count the next iteration is compared against.
func (w *Watcher) PreviousCount() int {
	return int(w.lastCount.Load())
}

func (w *Watcher) Stats() model.WatcherStats {
	var uptime int64
	if start := w.startTime.Load(); start > 0 {
		uptime = w.clock.Now().Unix() - start
	}

	return model.WatcherStats{
		RunID:            w.runID,
		Camera:           w.svcs.CfgSvc.GetCamera(),
		Iterations:       w.iterations.Load(),
		RisingEdges:      w.risingEdges.Load(),
		DetectorErrors:   w.detectorErrors.Load(),
		TransientErrors:  w.transientErrors.Load(),
		SideEffectErrors: w.sideEffectErrors.Load(),
		DroppedAlerts:    w.droppedAlerts.Load(),
		LastCount:        w.PreviousCount(),
		Uptime:           uptime,
		Timestamp:        w.clock.Now().Unix(),
	}
}

// Run loops until the context is cancelled, the stop signal is raised or the
// frame source fails for good. A stop or cancellation returns nil; a fatal
// acquisition error is returned wrapped. The frame source and the live sink
// are closed and queued side effects are finished before Run returns.
func (w *Watcher) Run(ctx context.Context) (err error) {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	w.startTime.Store(w.clock.Now().Unix())

	lgr.Logger.Info(
		"watcher starting....",
		slog.String("runID", w.runID),
		slog.String("camera", w.svcs.CfgSvc.GetCamera()),
		slog.String("rotation", w.svcs.CfgSvc.GetRotation().String()),
		slog.Float64("threshold", w.svcs.CfgSvc.GetThreshold()),
		slog.Duration("delay", w.svcs.CfgSvc.GetDelay()),
		slog.Bool("alert", w.svcs.CfgSvc.IsAlertEnabled()),
		slog.Bool("save", w.svcs.CfgSvc.IsSaveEnabled()),
		slog.String("detectorFailurePolicy", w.svcs.CfgSvc.GetDetectorFailurePolicy()),
	)

	alerts := w.startAlerter(ctx)

	defer func() {
		alerts.close()

		if cErr := w.svcs.CaptureSvc.Close(); cErr != nil {
			w.recordError("watcher", cErr, nil, "error closing capture")
		}

		if w.svcs.LiveSvc != nil {
			if cErr := w.svcs.LiveSvc.Close(); cErr != nil {
				w.recordError("watcher", cErr, nil, "error closing live output")
			}
		}

		stats := w.Stats()
		if sErr := w.svcs.DataSvc.NewWatcherStats(stats); sErr != nil {
			lgr.Logger.Error(
				"failed to store watcher stats",
				slog.Any("stats", stats),
				slog.Any("error", sErr),
			)
		}

		lgr.Logger.Info(
			"watcher stopped",
			slog.String("runID", w.runID),
			slog.Int64("iterations", stats.Iterations),
			slog.Int64("risingEdges", stats.RisingEdges),
			slog.Any("error", err),
		)
	}()

	for iteration := int64(0); ; iteration++ {
		done, err := w.iterate(ctx, iteration, alerts)
		if err != nil {
			w.recordError("watcher", err, map[string]interface{}{"iteration": iteration}, "frame acquisition failed")
			return xerrors.Errorf("acquiring frame %d: %w", iteration, err)
		}

		if done || w.stopRequested(ctx) {
			return nil
		}

		if err := w.sleep(ctx, w.svcs.CfgSvc.GetDelay()); err != nil {
			return nil
		}
	}
}

// Probe acquires and evaluates a single frame without touching the loop
// state or dispatching anything.
func (w *Watcher) Probe(ctx context.Context) (model.DetectionResult, error) {
	frame, err := w.acquire(ctx, 0)
	if err != nil {
		return model.DetectionResult{}, xerrors.Errorf("acquiring frame: %w", err)
	}

	frame = Rotate(frame, w.svcs.CfgSvc.GetRotation())
	detections, err := w.detect(ctx, frame)
	if err != nil {
		return model.DetectionResult{Frame: frame}, xerrors.Errorf("detecting: %w", err)
	}

	return model.DetectionResult{
		Count:      len(detections),
		Detections: detections,
		Frame:      w.render(frame, detections),
	}, nil
}

// iterate runs one pass of the loop. done reports a clean stop; err is a
// fatal acquisition failure.
func (w *Watcher) iterate(ctx context.Context, iteration int64, alerts *alerter) (done bool, err error) {
	ctx, span := w.tracer.Start(ctx, "watcher.iteration")
	defer span.End()

	frame, err := w.acquire(ctx, iteration)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		span.RecordError(err)
		return false, err
	}

	w.iterations.Inc()
	frame = Rotate(frame, w.svcs.CfgSvc.GetRotation())

	report := model.IterationReport{
		Iteration: iteration,
		Previous:  w.previous,
	}

	out := frame
	current := w.previous
	detections, dErr := w.detect(ctx, frame)
	if dErr != nil {
		if ctx.Err() != nil {
			return true, nil
		}

		span.RecordError(dErr)
		w.detectorErrors.Inc()
		report.DetectorError = true
		w.recordError("watcher_detector", dErr, map[string]interface{}{"iteration": iteration}, "detection failed")

		if w.svcs.CfgSvc.GetDetectorFailurePolicy() == config.FailurePolicySkip {
			report.Skipped = true
			report.Current = w.previous
			w.notifyObserver(report)
			return false, nil
		}
	} else {
		current = len(detections)
		out = w.render(frame, detections)
	}

	report.Current = current
	if current > w.previous {
		report.Fired = true
		w.fire(ctx, iteration, w.previous, current, out, alerts)
	}

	w.previous = current
	w.lastCount.Store(int64(current))

	if w.svcs.LiveSvc != nil {
		if err := w.svcs.LiveSvc.Emit(out); err != nil {
			w.sideEffectFailed("live", err, iteration)
		}
	}

	lgr.Logger.DebugContext(ctx,
		"iteration done",
		slog.Int64("iteration", iteration),
		slog.Int("previous", report.Previous),
		slog.Int("current", current),
		slog.Bool("fired", report.Fired),
	)

	w.notifyObserver(report)
	return false, nil
}

// detect calls the detector, turning a panic into an error.
func (w *Watcher) detect(ctx context.Context, frame image.Image) (detections []model.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			detections = nil
			err = errorFromPanic(r)
		}
	}()

	return w.svcs.InferenceSvc.Detect(ctx, frame, w.svcs.CfgSvc.GetThreshold())
}

func (w *Watcher) render(frame image.Image, detections []model.Detection) image.Image {
	if !w.svcs.CfgSvc.IsAnnotationEnabled() || w.annotate == nil {
		return frame
	}
	return w.annotate(frame, detections)
}

// fire handles a rising edge. The latest snapshot is written before fire
// returns; alert, save and journal are queued for the alerter.
func (w *Watcher) fire(ctx context.Context, iteration int64, previous, current int, frame image.Image, alerts *alerter) {
	w.risingEdges.Inc()
	now := w.clock.Now()

	t := model.Transition{
		RunID:      w.runID,
		Camera:     w.svcs.CfgSvc.GetCamera(),
		Iteration:  iteration,
		Previous:   previous,
		Current:    current,
		Identifier: w.ids.next(now),
		Timestamp:  now.UnixMilli(),
	}

	lgr.Logger.InfoContext(ctx,
		"detected new person",
		slog.String("runID", w.runID),
		slog.Int64("iteration", iteration),
		slog.Int("previous", previous),
		slog.Int("current", current),
	)

	path, err := w.svcs.StorageSvc.StoreLatest(frame)
	if err != nil {
		w.sideEffectFailed("latest", err, iteration)
	} else {
		t.LatestPath = path
	}

	queued := alerts.enqueue(AlertData{
		Transition: t,
		Frame:      frame,
		Alert:      w.svcs.CfgSvc.IsAlertEnabled(),
		Save:       w.svcs.CfgSvc.IsSaveEnabled(),
	})
	if !queued {
		w.droppedAlerts.Inc()
		w.sideEffectFailed("alerter", xerrors.New("alert queue full, dropping alert"), iteration)
	}
}

func (w *Watcher) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return w.stop != nil && w.stop.Stopped()
}

func (w *Watcher) notifyObserver(report model.IterationReport) {
	if w.observer != nil {
		w.observer(report)
	}
}

func (w *Watcher) sideEffectFailed(effect string, err error, iteration int64) {
	w.sideEffectErrors.Inc()
	w.recordError("watcher_"+effect, err, map[string]interface{}{"iteration": iteration}, "%s side effect failed", effect)
}

// recordError logs err and persists it through the data service. Failing to
// persist is only logged.
func (w *Watcher) recordError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) {
	custom := model.GenError(proc, err, misc, messagef, args...)

	lgr.Logger.Error(
		custom.Message,
		slog.String("processor", proc),
		slog.String("runID", w.runID),
		slog.Any("error", lgr.WithStack(err)),
	)

	if pErr := w.svcs.DataSvc.NewError(custom); pErr != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", pErr),
		)
	}
}

func errorFromPanic(r interface{}) error {
	if err, ok := r.(error); ok {
		return xerrors.Errorf("recovered panic: %w", err)
	}
	return xerrors.New(fmt.Sprintf("recovered panic: %v", r))
}

// Uptime is how long the current run has been going.
func (w *Watcher) Uptime() time.Duration {
	start := w.startTime.Load()
	if start == 0 {
		return 0
	}
	return w.clock.Since(time.Unix(start, 0))
}
