package webhook

import "context"

// IService delivers an alert payload to an external receiver.
type IService interface {
	Post(ctx context.Context, payload map[string]interface{}) error
	Close() error
}
