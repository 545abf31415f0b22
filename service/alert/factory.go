package alert

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/khaledhikmat/vs-sentry/service/config"
	"github.com/khaledhikmat/vs-sentry/service/webhook"
)

// NewAudible builds the chime from the notifier settings. Nothing is
// rendered and nil is returned when alerts are disabled, unless force is set.
func NewAudible(cfgSvc config.IService, out io.Writer, force bool) (IService, error) {
	if !cfgSvc.IsAlertEnabled() && !force {
		return nil, nil
	}

	notifier := cfgSvc.GetNotifierParameters()
	return NewChime(filepath.Clean(notifier.ChimeCacheDir), notifier.Players, out)
}

// NewNotifier combines the configured webhooks into one service, or returns
// nil when there are none. The webhooks are returned even on error so the
// caller can close them.
func NewNotifier(cfgSvc config.IService) (IService, []webhook.IService, error) {
	notifier := cfgSvc.GetNotifierParameters()
	timeout := time.Duration(notifier.TimeoutSeconds) * time.Second

	notifiers := []IService{}
	webhooks := []webhook.IService{}

	if notifier.WebhookURL != "" {
		w := webhook.NewHTTP(notifier.WebhookURL, timeout)
		webhooks = append(webhooks, w)
		notifiers = append(notifiers, NewWebhook(w))
	}

	if notifier.MQTTBroker != "" {
		clientID := fmt.Sprintf("vs-sentry-%d", os.Getpid())
		w, err := webhook.NewMQTT(notifier.MQTTBroker, notifier.MQTTTopic, clientID, timeout)
		if err != nil {
			return nil, webhooks, err
		}
		webhooks = append(webhooks, w)
		notifiers = append(notifiers, NewWebhook(w))
	}

	switch len(notifiers) {
	case 0:
		return nil, webhooks, nil
	case 1:
		return notifiers[0], webhooks, nil
	}
	return NewMulti(notifiers...), webhooks, nil
}
