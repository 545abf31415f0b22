package mode

import (
	"context"
	"log/slog"
	"time"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/pipeline"
	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

// statsPeriod is how often a running watcher reports its counters.
var statsPeriod = time.Minute

// Watch runs the detection loop until the frame source ends, the stop signal
// is raised or canxCtx is cancelled. The inference service is closed once the
// watcher has returned, never while it may still be detecting.
func Watch(canxCtx context.Context, svcs pipeline.ServicesFactory, opts ...pipeline.Option) error {
	watcher, err := pipeline.NewWatcher(svcs, opts...)
	if err != nil {
		return err
	}

	closeInference := func() {
		if err := svcs.InferenceSvc.Close(); err != nil {
			procError(svcs.DataSvc, model.GenError("watch",
				err,
				map[string]interface{}{},
				"error closing inference service"))
		}
	}

	runResult := make(chan error, 1)
	go func() {
		runResult <- watcher.Run(canxCtx)
	}()

	ticker := time.NewTicker(statsPeriod)
	defer ticker.Stop()

	// Wait for cancellation, the watcher or the stats ticker
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"watch context cancelled",
			)
			goto resume

		case err := <-runResult:
			closeInference()
			return err

		case <-ticker.C:
			stats := watcher.Stats()
			lgr.Logger.Info(
				"watcher stats",
				slog.String("runID", stats.RunID),
				slog.Int64("iterations", stats.Iterations),
				slog.Int64("risingEdges", stats.RisingEdges),
				slog.Int64("detectorErrors", stats.DetectorErrors),
				slog.Int64("droppedAlerts", stats.DroppedAlerts),
				slog.Int("lastCount", stats.LastCount),
			)
		}
	}

	// The watcher finishes its queued alerts before Run returns. Give it the
	// configured shutdown time to do so.
resume:
	lgr.Logger.Info(
		"watch is waiting for the watcher to exit",
	)

	timer := time.NewTimer(svcs.CfgSvc.GetModeMaxShutdownTime())
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Warn(
			"watch shutdown waiting period expired. Exiting now",
			slog.Duration("period", svcs.CfgSvc.GetModeMaxShutdownTime()),
		)
		procStats(svcs.DataSvc, watcher.Stats())

		// Run may still be inside Detect
		go func() {
			<-runResult
			closeInference()
		}()

		// the stop was asked for, a slow detector does not make it a failure
		return nil

	case err := <-runResult:
		closeInference()
		return err
	}
}
