package alert

import (
	"context"

	"github.com/khaledhikmat/vs-sentry/model"
)

// IService announces a rising edge of the occupancy count.
type IService interface {
	Notify(ctx context.Context, t model.Transition) error
}
