package inference

import (
	"context"
	"image"

	"github.com/khaledhikmat/vs-sentry/model"
)

// IService finds people in a frame. Only detections whose confidence clears
// the threshold are returned; their count is the occupancy of the frame.
type IService interface {
	Detect(ctx context.Context, frame image.Image, threshold float64) ([]model.Detection, error)
	Close() error
}
