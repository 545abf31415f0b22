package pipeline

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"

	"github.com/khaledhikmat/vs-sentry/model"
)

const (
	boxLineWidth = 2
	statusX      = 40
	statusY      = 40
	totalY       = 70
)

// Annotate draws a green box and a red label per detection plus the blue
// status and total lines onto a copy of the frame.
func Annotate(frame image.Image, detections []model.Detection) image.Image {
	dc := gg.NewContextForImage(frame)
	origin := frame.Bounds().Min
	dc.SetLineWidth(boxLineWidth)

	for i, d := range detections {
		box := d.Box.Sub(origin)
		x, y := float64(box.Min.X), float64(box.Min.Y)

		dc.SetRGB(0, 1, 0)
		dc.DrawRectangle(x, y, float64(box.Dx()), float64(box.Dy()))
		dc.Stroke()

		dc.SetRGB(1, 0, 0)
		dc.DrawString(fmt.Sprintf("person %d, probability %.2f", i+1, d.Confidence), x, y)
	}

	dc.SetRGB(0, 0, 1)
	dc.DrawString("Status : Detecting ", statusX, statusY)
	dc.DrawString(fmt.Sprintf("Total Persons : %d", len(detections)), statusX, totalY)

	return dc.Image()
}
