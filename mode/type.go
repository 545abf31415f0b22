package mode

import (
	"context"
	"log/slog"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/pipeline"
	"github.com/khaledhikmat/vs-sentry/service/data"
	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

// Processor runs one mode of the program until it is done or canxCtx is
// cancelled.
type Processor func(canxCtx context.Context, svcs pipeline.ServicesFactory, opts ...pipeline.Option) error

func procStats(datasvc data.IService, stats model.WatcherStats) {
	err := datasvc.NewWatcherStats(stats)
	if err != nil {
		lgr.Logger.Error(
			"failed to store watcher stats",
			slog.Any("stats", stats),
			slog.Any("error", err),
		)
	}
}

func procError(datasvc data.IService, err interface{}) {
	errTemp := datasvc.NewError(err)
	if errTemp != nil {
		lgr.Logger.Error(
			"failed to store error",
			slog.Any("error", errTemp),
		)
	}
}
