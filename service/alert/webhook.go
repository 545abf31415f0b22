package alert

import (
	"context"
	"time"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/service/webhook"
)

type webhookService struct {
	webhookSvc webhook.IService
}

// NewWebhook forwards every transition to a webhook receiver.
func NewWebhook(webhookSvc webhook.IService) IService {
	return &webhookService{
		webhookSvc: webhookSvc,
	}
}

func (svc *webhookService) Notify(ctx context.Context, t model.Transition) error {
	return svc.webhookSvc.Post(ctx, Payload(t))
}

func Payload(t model.Transition) map[string]interface{} {
	return map[string]interface{}{
		"source":     t.Camera,
		"runId":      t.RunID,
		"iteration":  t.Iteration,
		"label":      "person",
		"previous":   t.Previous,
		"current":    t.Current,
		"identifier": t.Identifier,
		"latestPath": t.LatestPath,
		"savedPath":  t.SavedPath,
		"timestamp":  time.UnixMilli(t.Timestamp).UTC().Format(time.RFC3339Nano),
	}
}
