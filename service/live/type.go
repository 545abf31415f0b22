package live

import "image"

// IService receives the (annotated) frame of every iteration.
type IService interface {
	Emit(frame image.Image) error
	Close() error
}
