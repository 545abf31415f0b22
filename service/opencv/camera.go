package opencv

import (
	"context"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/service/capture"
	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

type cameraService struct {
	selector string
	file     bool
	webcam   *gocv.VideoCapture
	mu       sync.Mutex
}

// NewCamera opens a capture device. A numeric selector is a device index;
// anything else is handed to OpenCV as a URL (rtsp, http) or a video file.
func NewCamera(selector string) (capture.IService, error) {
	var device interface{} = selector
	if idx, err := strconv.Atoi(strings.TrimSpace(selector)); err == nil {
		device = idx
	}

	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, xerrors.Errorf("opening capture device %s: %w", selector, err)
	}

	if !webcam.IsOpened() {
		webcam.Close()
		return nil, xerrors.Errorf("capture device %s did not open", selector)
	}

	lgr.Logger.Info(
		"capture device opened",
		slog.String("camera", selector),
		slog.String("openCV", gocv.Version()),
	)

	return &cameraService{
		selector: selector,
		file:     isVideoFile(selector),
		webcam:   webcam,
	}, nil
}

func (svc *cameraService) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.webcam == nil {
		return nil, capture.ErrEndOfStream
	}

	img := gocv.NewMat()
	defer img.Close() // Crucial to close the image to avoid memory leaks

	if ok := svc.webcam.Read(&img); !ok || img.Empty() {
		// A file has nothing more to give; a live device may recover
		if svc.file || !svc.webcam.IsOpened() {
			return nil, capture.ErrEndOfStream
		}
		return nil, capture.Transient(xerrors.Errorf("empty frame from %s", svc.selector))
	}

	frame, err := img.ToImage()
	if err != nil {
		return nil, capture.Transient(xerrors.Errorf("decoding frame from %s: %w", svc.selector, err))
	}
	return frame, nil
}

func (svc *cameraService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.webcam == nil {
		return nil
	}

	err := svc.webcam.Close()
	svc.webcam = nil
	return err
}

func isVideoFile(selector string) bool {
	s := strings.ToLower(selector)
	if strings.Contains(s, "://") {
		return false
	}
	for _, ext := range []string{".mp4", ".avi", ".mov", ".mkv", ".mjpg", ".webm"} {
		if strings.HasSuffix(s, ext) {
			return true
		}
	}
	return false
}
