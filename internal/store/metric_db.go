package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/cwbudde/srviewer/internal/metrics"
)

const metricSchema = `
CREATE TABLE IF NOT EXISTS metric_results (
	ground_truth TEXT NOT NULL,
	candidate    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	params       TEXT NOT NULL,
	result       TEXT NOT NULL,
	created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (ground_truth, candidate, kind, params)
)`

// MetricDB persists finished metric results in SQLite so a later run does
// not recompute them. It implements metrics.Memo.
type MetricDB struct {
	db *sql.DB
}

// OpenMetricDB opens or creates the database at path. ":memory:" keeps it in
// memory.
func OpenMetricDB(path string) (*MetricDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(metricSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	slog.Debug("Metric database opened", "path", path)
	return &MetricDB{db: db}, nil
}

// Lookup implements metrics.Memo.
func (m *MetricDB) Lookup(ctx context.Context, key metrics.Key) (metrics.Result, bool, error) {
	var raw string
	err := m.db.QueryRowContext(ctx,
		`SELECT result FROM metric_results WHERE ground_truth = ? AND candidate = ? AND kind = ? AND params = ?`,
		key.GroundTruth, key.Candidate, string(key.Kind), key.Params,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return metrics.Result{}, false, nil
	}
	if err != nil {
		return metrics.Result{}, false, fmt.Errorf("failed to query metric: %w", err)
	}
	var res metrics.Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return metrics.Result{}, false, fmt.Errorf("failed to decode metric: %w", err)
	}
	return res, true, nil
}

// Save implements metrics.Memo. An existing row for the key is replaced.
func (m *MetricDB) Save(ctx context.Context, key metrics.Key, res metrics.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode metric: %w", err)
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO metric_results (ground_truth, candidate, kind, params, result) VALUES (?, ?, ?, ?, ?)`,
		key.GroundTruth, key.Candidate, string(key.Kind), key.Params, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save metric: %w", err)
	}
	return nil
}

// Count returns the number of stored results.
func (m *MetricDB) Count(ctx context.Context) (int, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metric_results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count metrics: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (m *MetricDB) Close() error {
	return m.db.Close()
}
