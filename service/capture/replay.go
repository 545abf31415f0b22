package capture

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/xerrors"
)

var replayExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
}

type replayService struct {
	files  []string
	next   int
	mu     sync.Mutex
	closed bool
}

// NewReplay plays back the images of a directory in lexical order, one per
// Read. Once the directory is exhausted Read returns ErrEndOfStream.
func NewReplay(dir string) (IService, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, xerrors.Errorf("opening replay directory %s: %w", dir, err)
	}

	files := []string{}
	for _, e := range entries {
		if e.IsDir() || !replayExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	return &replayService{files: files}, nil
}

func (svc *replayService) Read(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.closed || svc.next >= len(svc.files) {
		return nil, ErrEndOfStream
	}

	file := svc.files[svc.next]
	svc.next++

	img, err := imaging.Open(file, imaging.AutoOrientation(true))
	if err != nil {
		// A corrupt file does not end the replay; the next one may decode.
		return nil, Transient(xerrors.Errorf("decoding %s: %w", file, err))
	}
	return img, nil
}

func (svc *replayService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.closed = true
	return nil
}
