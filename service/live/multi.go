package live

import (
	"image"

	"go.uber.org/multierr"
)

type multiService struct {
	sinks []IService
}

// NewMulti fans every frame out to all sinks. A failing sink does not keep
// the others from receiving the frame.
func NewMulti(sinks ...IService) IService {
	return &multiService{
		sinks: sinks,
	}
}

func (svc *multiService) Emit(frame image.Image) error {
	var err error
	for _, s := range svc.sinks {
		err = multierr.Append(err, s.Emit(frame))
	}
	return err
}

func (svc *multiService) Close() error {
	var err error
	for _, s := range svc.sinks {
		err = multierr.Append(err, s.Close())
	}
	return err
}
