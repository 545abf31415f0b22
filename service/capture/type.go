package capture

import (
	"context"
	"errors"
	"image"
)

// ErrEndOfStream reports that the source has no more frames and never will.
var ErrEndOfStream = errors.New("capture: end of stream")

// IService is a source of frames. Constructors open the underlying device;
// Close releases it.
type IService interface {
	Read(ctx context.Context) (image.Image, error)
	Close() error
}

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return "transient capture error: " + e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient marks err as recoverable: the next Read may succeed.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
