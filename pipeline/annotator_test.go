package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"go.viam.com/test"

	"github.com/khaledhikmat/vs-sentry/model"
)

func TestAnnotateDrawsOnACopy(t *testing.T) {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	frame := imaging.New(200, 120, white)
	detections := []model.Detection{
		{Label: "person", Confidence: 0.8, Box: image.Rect(100, 60, 180, 110)},
	}

	out := Annotate(frame, detections)

	test.That(t, out.Bounds().Size(), test.ShouldResemble, frame.Bounds().Size())

	// the bottom edge of the box is green
	r, g, b, _ := out.At(140, 109).RGBA()
	test.That(t, g, test.ShouldBeGreaterThan, r)
	test.That(t, g, test.ShouldBeGreaterThan, b)

	// inside the box nothing is drawn
	test.That(t, out.At(140, 85), test.ShouldResemble, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	// the source frame is untouched
	for _, p := range []image.Point{{140, 60}, {40, 40}} {
		test.That(t, frame.NRGBAAt(p.X, p.Y), test.ShouldResemble, white)
	}
}

func TestAnnotateWithoutDetections(t *testing.T) {
	frame := imaging.New(200, 120, color.NRGBA{A: 255})
	out := Annotate(frame, nil)
	test.That(t, out.Bounds().Size(), test.ShouldResemble, frame.Bounds().Size())
}
