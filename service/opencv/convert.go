package opencv

import (
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

// toMat converts a frame into a BGR Mat. The caller owns the returned Mat.
func toMat(frame image.Image) (gocv.Mat, error) {
	if frame == nil {
		return gocv.NewMat(), xerrors.New("nil frame")
	}

	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return mat, xerrors.Errorf("converting frame to mat: %w", err)
	}

	if mat.Empty() {
		return mat, xerrors.New("converted frame is empty")
	}
	return mat, nil
}
