package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

// alerter runs the slow side effects of a rising edge (alert, webhook
// notification, timestamped save, journal) off the detection loop. close drains whatever
// is queued.
type alerter struct {
	w    *Watcher
	ctx  context.Context
	in   chan AlertData
	wg   sync.WaitGroup
	once sync.Once
}

func (w *Watcher) startAlerter(ctx context.Context) *alerter {
	a := &alerter{
		w: w,
		// queued side effects finish even when the loop was cancelled
		ctx: context.WithoutCancel(ctx),
		in:  make(chan AlertData, w.svcs.CfgSvc.GetAlertQueueSize()),
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for alert := range a.in {
			a.proc(alert)
		}
	}()

	return a
}

// enqueue never blocks. It reports false when the queue was full and the
// alert dropped.
func (a *alerter) enqueue(alert AlertData) bool {
	select {
	case a.in <- alert:
		return true
	default:
		return false
	}
}

func (a *alerter) close() {
	a.once.Do(func() {
		close(a.in)
		a.wg.Wait()
	})
}

func (a *alerter) proc(alert AlertData) {
	defer func() {
		if r := recover(); r != nil {
			a.w.sideEffectFailed("alerter", errorFromPanic(r), alert.Transition.Iteration)
		}
	}()

	t := alert.Transition

	if alert.Alert && a.w.svcs.AlertSvc != nil {
		if err := a.w.svcs.AlertSvc.Notify(a.ctx, t); err != nil {
			a.w.sideEffectFailed("alert", err, t.Iteration)
		}
	}

	if a.w.svcs.NotifySvc != nil {
		if err := a.w.svcs.NotifySvc.Notify(a.ctx, t); err != nil {
			a.w.sideEffectFailed("notify", err, t.Iteration)
		}
	}

	if alert.Save {
		path, err := a.w.svcs.StorageSvc.StoreFrame(alert.Frame, t.Identifier)
		if err != nil {
			a.w.sideEffectFailed("save", err, t.Iteration)
		} else {
			t.SavedPath = path
		}
	}

	if err := a.w.svcs.DataSvc.NewTransition(t); err != nil {
		a.w.sideEffectFailed("journal", err, t.Iteration)
	}

	lgr.Logger.Info(
		"rising edge handled",
		slog.String("runID", t.RunID),
		slog.Int64("iteration", t.Iteration),
		slog.Int("previous", t.Previous),
		slog.Int("current", t.Current),
		slog.String("identifier", t.Identifier),
		slog.String("savedPath", t.SavedPath),
	)
}
