package pipeline

import (
	"context"
	"image"
	"log/slog"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/service/capture"
	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

const maxBackoff = 30 * time.Second

// acquire reads one frame. Transient failures are retried with exponential
// backoff; once MaxTransientRetries retries failed in a row the last error
// is returned as fatal.
func (w *Watcher) acquire(ctx context.Context, iteration int64) (image.Image, error) {
	maxRetries := w.svcs.CfgSvc.GetMaxTransientRetries()
	wait := w.svcs.CfgSvc.GetTransientBackoff()
	failures := 0

	for {
		frame, err := w.svcs.CaptureSvc.Read(ctx)
		if err == nil {
			if frame == nil {
				err = capture.Transient(xerrors.New("capture returned no frame"))
			} else {
				return frame, nil
			}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if !capture.IsTransient(err) {
			return nil, err
		}

		failures++
		w.transientErrors.Inc()
		w.recordError("watcher_framer", err, map[string]interface{}{
			"iteration": iteration,
			"failures":  failures,
		}, "transient capture failure")

		if failures > maxRetries {
			return nil, xerrors.Errorf("giving up after %d consecutive transient capture failures: %w", failures, err)
		}

		lgr.Logger.Warn(
			"transient capture failure, retrying",
			slog.Int64("iteration", iteration),
			slog.Int("failures", failures),
			slog.Duration("backoff", wait),
			slog.Any("error", err),
		)

		if err := w.sleep(ctx, wait); err != nil {
			return nil, err
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

// sleep waits on the watcher clock. It returns early with the context error
// when ctx is cancelled.
func (w *Watcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := w.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
