package mode

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/pipeline"
	"github.com/khaledhikmat/vs-sentry/service/alert"
)

// Chime fires the configured alert and notifiers once for a fake 0 -> 1
// transition, to check the speakers or the webhooks without a camera.
func Chime(canxCtx context.Context, svcs pipeline.ServicesFactory, _ ...pipeline.Option) error {
	targets := []alert.IService{}
	for _, svc := range []alert.IService{svcs.AlertSvc, svcs.NotifySvc} {
		if svc != nil {
			targets = append(targets, svc)
		}
	}
	if len(targets) == 0 {
		return xerrors.New("no alert service configured")
	}

	t := model.Transition{
		RunID:      "chime",
		Camera:     svcs.CfgSvc.GetCamera(),
		Previous:   0,
		Current:    1,
		Identifier: "chime",
		Timestamp:  time.Now().UnixMilli(),
	}

	var err error
	for _, target := range targets {
		err = multierr.Append(err, target.Notify(canxCtx, t))
	}
	if err != nil {
		procError(svcs.DataSvc, model.GenError("chime",
			err,
			map[string]interface{}{},
			"error sending test alert"))
	}
	return err
}
