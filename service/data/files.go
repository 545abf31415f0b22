package data

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/model"
	"github.com/khaledhikmat/vs-sentry/service/config"
)

const (
	errorsEntity      = "errors"
	statsEntity       = "watcher-stats"
	transitionsEntity = "transitions"

	maxRecordSize = 4 * 1024 * 1024
)

type filesDBService struct {
	CfgSvc config.IService
	mu     sync.Mutex
}

// NewFilesDB keeps one JSON lines file per entity in the configured input
// folder.
func NewFilesDB(cfgsvc config.IService) IService {
	return &filesDBService{
		CfgSvc: cfgsvc,
	}
}

func (svc *filesDBService) NewError(err interface{}) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(toErrorRecord(err, time.Now().Unix()), errorsEntity, svc.CfgSvc)
}

func (svc *filesDBService) NewWatcherStats(stats model.WatcherStats) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, statsEntity, svc.CfgSvc)
}

func (svc *filesDBService) NewTransition(t model.Transition) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(t, transitionsEntity, svc.CfgSvc)
}

func (svc *filesDBService) Close() error {
	return nil
}

func entityFile(filename string, cfgsvc config.IService) string {
	return filepath.Join(cfgsvc.GetInputFolder(), fmt.Sprintf("%s.jsonl", filename))
}

// newEntity appends entity as one JSON line. The existing file is never read,
// so the cost of a write does not depend on how much was journaled before.
func newEntity[T any](entity T, filename string, cfgsvc config.IService) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return xerrors.Errorf("marshalling %s: %w", filename, err)
	}

	if err := os.MkdirAll(cfgsvc.GetInputFolder(), 0o755); err != nil {
		return xerrors.Errorf("creating %s: %w", cfgsvc.GetInputFolder(), err)
	}

	output := entityFile(filename, cfgsvc)
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return xerrors.Errorf("opening %s: %w", output, err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return xerrors.Errorf("writing %s: %w", output, err)
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("closing %s: %w", output, err)
	}

	return nil
}

func retrieveEntities[T any](filename string, cfgsvc config.IService) ([]T, error) {
	entities := []T{}

	f, err := os.Open(entityFile(filename, cfgsvc))
	if os.IsNotExist(err) {
		// WARNING: File not found, return empty slice
		return entities, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("reading %s: %w", filename, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// error records carry stack traces
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entity T
		if err := json.Unmarshal(line, &entity); err != nil {
			return nil, xerrors.Errorf("decoding %s: %w", filename, err)
		}
		entities = append(entities, entity)
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("scanning %s: %w", filename, err)
	}

	return entities, nil
}
