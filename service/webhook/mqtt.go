package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttQuiesceMillis  = 250
)

// publisher is the part of mqtt.Client the service needs.
type publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type mqttService struct {
	client  publisher
	topic   string
	timeout time.Duration
}

// NewMQTT connects to broker (host:port or a full tcp:// URL) and publishes
// every payload as JSON to topic with QoS 1.
func NewMQTT(broker, topic, clientID string, timeout time.Duration) (IService, error) {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(_ mqtt.Client) {
		lgr.Logger.Info(
			"mqtt connection established",
			slog.String("broker", broker),
			slog.String("clientID", clientID),
		)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		lgr.Logger.Warn(
			"mqtt connection lost, will auto-reconnect",
			slog.String("broker", broker),
			slog.Any("error", err),
		)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		client.Disconnect(mqttQuiesceMillis)
		return nil, xerrors.Errorf("mqtt connection to %s timed out", broker)
	}

	if err := token.Error(); err != nil {
		return nil, xerrors.Errorf("mqtt connection to %s failed: %w", broker, err)
	}

	return newMQTT(client, topic, timeout), nil
}

func newMQTT(client publisher, topic string, timeout time.Duration) *mqttService {
	return &mqttService{
		client:  client,
		topic:   topic,
		timeout: timeout,
	}
}

func (svc *mqttService) Post(ctx context.Context, payload map[string]interface{}) error {
	if !svc.client.IsConnected() {
		return xerrors.New("mqtt not connected")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return xerrors.Errorf("marshalling mqtt payload: %w", err)
	}

	token := svc.client.Publish(svc.topic, 1, false, body)

	timer := time.NewTimer(svc.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return xerrors.Errorf("mqtt publish to %s timed out", svc.topic)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := token.Error(); err != nil {
		return xerrors.Errorf("mqtt publish to %s failed: %w", svc.topic, err)
	}
	return nil
}

func (svc *mqttService) Close() error {
	if svc.client.IsConnected() {
		svc.client.Disconnect(mqttQuiesceMillis)
	}
	return nil
}
