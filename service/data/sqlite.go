package data

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-sentry/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	camera TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	previous_count INTEGER NOT NULL,
	current_count INTEGER NOT NULL,
	identifier TEXT NOT NULL,
	latest_path TEXT NOT NULL DEFAULT '',
	saved_path TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS watcher_stats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	camera TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	rising_edges INTEGER NOT NULL,
	detector_errors INTEGER NOT NULL,
	transient_errors INTEGER NOT NULL,
	side_effect_errors INTEGER NOT NULL,
	dropped_alerts INTEGER NOT NULL,
	last_count INTEGER NOT NULL,
	uptime INTEGER NOT NULL,
	timestamp INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS errors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	processor TEXT NOT NULL,
	inner_error TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	stack_trace TEXT NOT NULL DEFAULT '',
	misc TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_transitions_run_id ON transitions(run_id);
CREATE INDEX IF NOT EXISTS idx_watcher_stats_run_id ON watcher_stats(run_id);
`

type sqliteDBService struct {
	conn *sql.DB
	mu   sync.Mutex
}

// NewSqliteDB opens (or creates) an append-only journal database.
func NewSqliteDB(dbPath string) (IService, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, xerrors.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, xerrors.Errorf("failed to migrate database: %w", err)
	}

	return &sqliteDBService{
		conn: conn,
	}, nil
}

func (svc *sqliteDBService) NewError(err interface{}) error {
	record := toErrorRecord(err, time.Now().Unix())

	misc, mErr := json.Marshal(record.Misc)
	if mErr != nil || record.Misc == nil {
		misc = []byte("{}")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	_, execErr := svc.conn.Exec(
		`INSERT INTO errors (timestamp, processor, inner_error, message, stack_trace, misc) VALUES (?, ?, ?, ?, ?, ?)`,
		record.Timestamp, record.Processor, record.Inner, record.Message, record.StackTrace, string(misc),
	)
	if execErr != nil {
		return xerrors.Errorf("inserting error: %w", execErr)
	}
	return nil
}

func (svc *sqliteDBService) NewWatcherStats(stats model.WatcherStats) error {
	stats.Timestamp = time.Now().Unix()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	_, err := svc.conn.Exec(
		`INSERT INTO watcher_stats (run_id, camera, iterations, rising_edges, detector_errors, transient_errors,
			side_effect_errors, dropped_alerts, last_count, uptime, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.RunID, stats.Camera, stats.Iterations, stats.RisingEdges, stats.DetectorErrors, stats.TransientErrors,
		stats.SideEffectErrors, stats.DroppedAlerts, stats.LastCount, stats.Uptime, stats.Timestamp,
	)
	if err != nil {
		return xerrors.Errorf("inserting watcher stats: %w", err)
	}
	return nil
}

func (svc *sqliteDBService) NewTransition(t model.Transition) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	_, err := svc.conn.Exec(
		`INSERT INTO transitions (run_id, camera, iteration, previous_count, current_count, identifier, latest_path, saved_path, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.Camera, t.Iteration, t.Previous, t.Current, t.Identifier, t.LatestPath, t.SavedPath, t.Timestamp,
	)
	if err != nil {
		return xerrors.Errorf("inserting transition: %w", err)
	}
	return nil
}

func (svc *sqliteDBService) Close() error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.conn.Close()
}
