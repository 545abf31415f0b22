package storage

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/xerrors"
)

const defaultExt = ".png"

type diskService struct {
	latestPath string
	folder     string
	ext        string
	mu         sync.Mutex
}

// NewDisk stores the latest snapshot at latestPath and saved frames under
// folder, encoded in the format of latestPath's extension.
func NewDisk(latestPath, folder string) (IService, error) {
	if latestPath == "" {
		return nil, xerrors.New("latest snapshot path is required")
	}

	ext := strings.ToLower(filepath.Ext(latestPath))
	if _, err := imaging.FormatFromExtension(ext); err != nil {
		ext = defaultExt
	}

	return &diskService{
		latestPath: latestPath,
		folder:     folder,
		ext:        ext,
	}, nil
}

// StoreLatest encodes into a sibling temp file and renames it over the
// target, so readers never observe a partially written snapshot.
func (svc *diskService) StoreLatest(frame image.Image) (string, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	dir := filepath.Dir(svc.latestPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", xerrors.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".latest-*"+svc.ext)
	if err != nil {
		return "", xerrors.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	format, _ := imaging.FormatFromExtension(svc.ext)
	if err := imaging.Encode(tmp, frame, format); err != nil {
		tmp.Close()
		return "", xerrors.Errorf("encoding latest snapshot: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return "", xerrors.Errorf("closing temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, svc.latestPath); err != nil {
		return "", xerrors.Errorf("replacing %s: %w", svc.latestPath, err)
	}

	return svc.latestPath, nil
}

func (svc *diskService) StoreFrame(frame image.Image, identifier string) (string, error) {
	if svc.folder == "" {
		return "", xerrors.New("no recordings folder configured")
	}

	if identifier == "" || strings.ContainsAny(identifier, `/\`) || identifier == "." || identifier == ".." {
		return "", xerrors.Errorf("invalid frame identifier %q", identifier)
	}

	if err := os.MkdirAll(svc.folder, 0o755); err != nil {
		return "", xerrors.Errorf("creating %s: %w", svc.folder, err)
	}

	path := filepath.Join(svc.folder, identifier+svc.ext)
	if _, err := os.Stat(path); err == nil {
		return "", xerrors.Errorf("frame %s already exists", path)
	}

	if err := imaging.Save(frame, path); err != nil {
		return "", xerrors.Errorf("saving frame %s: %w", path, err)
	}

	return path, nil
}
