package mode

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/pipeline"
	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

// NewProbe returns a processor that evaluates a single frame, prints the
// count to out and writes the rendered frame to the latest snapshot.
func NewProbe(out io.Writer) Processor {
	return func(canxCtx context.Context, svcs pipeline.ServicesFactory, opts ...pipeline.Option) error {
		watcher, err := pipeline.NewWatcher(svcs, opts...)
		if err != nil {
			return err
		}

		defer svcs.CaptureSvc.Close()
		defer svcs.InferenceSvc.Close()

		result, err := watcher.Probe(canxCtx)
		if err != nil {
			return err
		}

		path, err := svcs.StorageSvc.StoreLatest(result.Frame)
		if err != nil {
			return xerrors.Errorf("storing probe frame: %w", err)
		}

		lgr.Logger.Info(
			"probe done",
			slog.String("camera", svcs.CfgSvc.GetCamera()),
			slog.Int("count", result.Count),
			slog.String("latestPath", path),
		)

		if _, err := color.New(color.FgHiGreen).Fprintf(out, "people: %d\n", result.Count); err != nil {
			return err
		}
		for i, d := range result.Detections {
			fmt.Fprintf(out, "  %d. %s %.2f at %v\n", i+1, d.Label, d.Confidence, d.Box)
		}
		return nil
	}
}
