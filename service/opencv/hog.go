package opencv

import (
	"context"
	"image"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/service/inference"
)

// HOG people detector settings: sliding window stride, padding and pyramid
// scale step.
var (
	hogWinStride = image.Pt(4, 4)
	hogPadding   = image.Pt(8, 8)
)

const (
	hogScale          = 1.03
	hogFinalThreshold = 2.0
)

type hogService struct {
	hog gocv.HOGDescriptor
	mu  sync.Mutex
}

// NewHOG returns the OpenCV HOG + linear SVM pedestrian detector. The
// confidence threshold is used as the SVM hit threshold.
func NewHOG() (inference.IService, error) {
	hog := gocv.NewHOGDescriptor()
	if err := hog.SetSVMDetector(gocv.HOGDefaultPeopleDetector()); err != nil {
		hog.Close()
		return nil, xerrors.Errorf("loading default people detector: %w", err)
	}

	return &hogService{
		hog: hog,
	}, nil
}

func (svc *hogService) Detect(ctx context.Context, frame image.Image, threshold float64) ([]model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := toMat(frame)
	defer mat.Close()
	if err != nil {
		return nil, err
	}

	// HOGDescriptor is not safe for concurrent use
	svc.mu.Lock()
	rects := svc.hog.DetectMultiScaleWithParams(mat, threshold, hogWinStride, hogPadding, hogScale, hogFinalThreshold, false)
	svc.mu.Unlock()

	detections := make([]model.Detection, 0, len(rects))
	for _, r := range rects {
		// OpenCV does not expose per-window weights here, so every hit
		// is reported at the threshold it cleared.
		detections = append(detections, model.Detection{
			Label:      "person",
			Confidence: threshold,
			Box:        r,
		})
	}
	return detections, nil
}

func (svc *hogService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.hog.Close()
}
