// Package metrics records one SQLite row per improvement request so local
// runs can be inspected after the fact. Writes are best-effort: a metrics
// failure never fails the request.
package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// Row is one recorded request.
type Row struct {
	ID             int64
	Timestamp      time.Time
	Intent         types.Intent
	Complexity     types.Complexity
	Preset         types.Preset
	Model          string
	Attempt        int
	UsedRepair     bool
	UsedExtraction bool
	LatencyMS      int64
	Confidence     float64
	CacheHit       bool
	Optimizer      string
	Score          float64
}

// Store is the SQLite-backed metrics sink.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (and creates if needed) the metrics database at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create metrics dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts DATETIME NOT NULL,
		intent TEXT NOT NULL,
		complexity TEXT NOT NULL,
		preset TEXT NOT NULL,
		model TEXT,
		attempt INTEGER NOT NULL,
		used_repair INTEGER NOT NULL,
		used_extraction INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		confidence REAL NOT NULL,
		cache_hit INTEGER NOT NULL,
		optimizer TEXT,
		score REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_ts ON requests(ts);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create metrics schema: %w", err)
	}
	return nil
}

// Record inserts one row. Failures are logged and swallowed.
func (s *Store) Record(row Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO requests
			(ts, intent, complexity, preset, model, attempt, used_repair,
			 used_extraction, latency_ms, confidence, cache_hit, optimizer, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Timestamp, string(row.Intent), string(row.Complexity), string(row.Preset),
		row.Model, row.Attempt, row.UsedRepair, row.UsedExtraction,
		row.LatencyMS, row.Confidence, row.CacheHit, row.Optimizer, row.Score,
	)
	if err != nil {
		logging.Metrics("Failed to record request row: %v", err)
	}
}

// Recent returns the latest rows, newest first.
func (s *Store) Recent(limit int) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, ts, intent, complexity, preset, model, attempt, used_repair,
		       used_extraction, latency_ms, confidence, cache_hit, optimizer, score
		FROM requests ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var intent, complexity, preset string
		if err := rows.Scan(&r.ID, &r.Timestamp, &intent, &complexity, &preset, &r.Model,
			&r.Attempt, &r.UsedRepair, &r.UsedExtraction, &r.LatencyMS,
			&r.Confidence, &r.CacheHit, &r.Optimizer, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan metrics row: %w", err)
		}
		r.Intent = types.Intent(intent)
		r.Complexity = types.Complexity(complexity)
		r.Preset = types.Preset(preset)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
