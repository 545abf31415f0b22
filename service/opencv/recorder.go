package opencv

import (
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/service/lgr"
	"github.com/khaledhikmat/vs-sentry/service/live"
)

// WARNING:
// GoCV writes uncompressed MJPG frames, so long recordings get large.
type recorderService struct {
	filename string
	fps      float64
	writer   *gocv.VideoWriter
	size     image.Point
	frames   int
	mu       sync.Mutex
}

// NewRecorder writes every emitted frame to an MJPG video file. The writer is
// created lazily from the first frame's dimensions; later frames of another
// size are resized to match.
func NewRecorder(filename string, fps float64) live.IService {
	return &recorderService{
		filename: filename,
		fps:      fps,
	}
}

func (svc *recorderService) Emit(frame image.Image) error {
	mat, err := toMat(frame)
	defer mat.Close()
	if err != nil {
		return err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.writer == nil {
		writer, err := gocv.VideoWriterFile(svc.filename, "MJPG", svc.fps, mat.Cols(), mat.Rows(), true)
		if err != nil {
			return xerrors.Errorf("error creating video writer %s: %w", svc.filename, err)
		}
		svc.writer = writer
		svc.size = image.Pt(mat.Cols(), mat.Rows())

		lgr.Logger.Info(
			"video recorder started",
			slog.String("file", svc.filename),
			slog.Int("cols", mat.Cols()),
			slog.Int("rows", mat.Rows()),
		)
	}

	if mat.Cols() != svc.size.X || mat.Rows() != svc.size.Y {
		resized := gocv.NewMat()
		defer resized.Close()
		if err := gocv.Resize(mat, &resized, svc.size, 0, 0, gocv.InterpolationLinear); err != nil {
			return xerrors.Errorf("error resizing frame: %w", err)
		}
		return svc.write(resized)
	}

	return svc.write(mat)
}

func (svc *recorderService) write(mat gocv.Mat) error {
	if err := svc.writer.Write(mat); err != nil {
		return xerrors.Errorf("error writing frame: %w", err)
	}
	svc.frames++
	return nil
}

func (svc *recorderService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.writer == nil {
		return nil
	}

	lgr.Logger.Info(
		"video recorder closed",
		slog.String("file", svc.filename),
		slog.Int("frames", svc.frames),
	)

	err := svc.writer.Close()
	svc.writer = nil
	return err
}
