package alert

import (
	"context"

	"go.uber.org/multierr"

	"github.com/khaledhikmat/vs-sentry/model"
)

type multiService struct {
	alerters []IService
}

// NewMulti notifies every alerter, collecting their failures.
func NewMulti(alerters ...IService) IService {
	return &multiService{
		alerters: alerters,
	}
}

func (svc *multiService) Notify(ctx context.Context, t model.Transition) error {
	var err error
	for _, a := range svc.alerters {
		err = multierr.Append(err, a.Notify(ctx, t))
	}
	return err
}
