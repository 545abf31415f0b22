package opencv

import (
	"context"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/service/inference"
	"github.com/khaledhikmat/vs-sentry/service/lgr"
)

type dnnService struct {
	net         gocv.Net
	personClass int
	mu          sync.Mutex
}

// NewDNN loads an SSD style network (Caffe, TensorFlow or Darknet) whose
// output rows are [batch, class, confidence, x1, y1, x2, y2] in relative
// coordinates. Only rows of personClass are reported.
func NewDNN(modelPath, configPath string, personClass int) (inference.IService, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, xerrors.Errorf("model file not found: %s", modelPath)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, xerrors.Errorf("model config file not found: %s", configPath)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, xerrors.Errorf("error reading network %s", modelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, xerrors.Errorf("error setting backend: %w", err)
	}

	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, xerrors.Errorf("error setting target: %w", err)
	}

	lgr.Logger.Info(
		"detection network loaded",
		slog.String("model", modelPath),
		slog.String("config", configPath),
		slog.Int("personClass", personClass),
	)

	return &dnnService{
		net:         net,
		personClass: personClass,
	}, nil
}

func (svc *dnnService) Detect(ctx context.Context, frame image.Image, threshold float64) ([]model.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := toMat(frame)
	defer mat.Close()
	if err != nil {
		return nil, err
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	// WARNING: net is not thread-safe
	svc.mu.Lock()
	svc.net.SetInput(blob, "")
	output := svc.net.Forward("")
	svc.mu.Unlock()
	defer output.Close()

	if output.Total()%7 != 0 {
		return nil, xerrors.Errorf("unexpected network output size %d", output.Total())
	}

	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	cols := float32(mat.Cols())
	height := float32(mat.Rows())
	detections := []model.Detection{}
	for i := 0; i < rows.Rows(); i++ {
		if int(rows.GetFloatAt(i, 1)) != svc.personClass {
			continue
		}

		confidence := float64(rows.GetFloatAt(i, 2))
		if confidence < threshold {
			continue
		}

		box := image.Rect(
			int(rows.GetFloatAt(i, 3)*cols),
			int(rows.GetFloatAt(i, 4)*height),
			int(rows.GetFloatAt(i, 5)*cols),
			int(rows.GetFloatAt(i, 6)*height),
		).Intersect(frame.Bounds())

		detections = append(detections, model.Detection{
			Label:      "person",
			Confidence: confidence,
			Box:        box,
		})
	}
	return detections, nil
}

func (svc *dnnService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.net.Close()
}
