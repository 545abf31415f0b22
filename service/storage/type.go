package storage

import "image"

// IService persists frames. StoreLatest overwrites the single "latest"
// snapshot; StoreFrame keeps a new artifact per identifier.
type IService interface {
	StoreLatest(frame image.Image) (string, error)
	StoreFrame(frame image.Image, identifier string) (string, error)
}
