package pipeline

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/khaledhikmat/vs-sentry/model"
)

// Rotate returns the frame turned by r. The input is never modified; for
// RotationNone it is returned as is.
func Rotate(frame image.Image, r model.Rotation) image.Image {
	switch r {
	case model.RotationCCW90:
		return imaging.Rotate90(frame)
	case model.Rotation180:
		return imaging.Rotate180(frame)
	case model.RotationCW90:
		return imaging.Rotate270(frame)
	default:
		return frame
	}
}
