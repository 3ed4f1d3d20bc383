// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sqlitestore persists measurements in SQLite using modernc.org/sqlite
// (pure Go).
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite database of runs and their measurements.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets readers summarize while a run is still recording.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Init creates the schema tables.
func (s *Store) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		mode        TEXT NOT NULL,
		particles   INTEGER NOT NULL,
		seed        INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL DEFAULT 'running',
		completed   INTEGER NOT NULL DEFAULT 0,
		started_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS measurements (
		id      INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id  TEXT NOT NULL,
		seq     INTEGER NOT NULL,
		weight  REAL NOT NULL,
		value   REAL NOT NULL DEFAULT 0,
		result  TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_measurements_run ON measurements(run_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run describes one runner invocation.
type Run struct {
	ID        string
	Mode      string
	Particles int
	Seed      uint64
	Status    string
	Completed int
	StartedAt time.Time
}

// InsertRun records the start of a run.
func (s *Store) InsertRun(r Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, mode, particles, seed, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Mode, r.Particles, int64(r.Seed), r.StartedAt,
	)
	return err
}

// FinishRun marks a run finished with the given status.
func (s *Store) FinishRun(runID, status string, completed int) error {
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, completed = ?, finished_at = ? WHERE run_id = ?`,
		status, completed, time.Now(), runID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sqlitestore: run %q not found", runID)
	}
	return nil
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(runID string) (Run, error) {
	var r Run
	var seed int64
	err := s.db.QueryRow(
		`SELECT run_id, mode, particles, seed, status, completed, started_at FROM runs WHERE run_id = ?`,
		runID,
	).Scan(&r.ID, &r.Mode, &r.Particles, &seed, &r.Status, &r.Completed, &r.StartedAt)
	if err != nil {
		return Run{}, err
	}
	r.Seed = uint64(seed)
	return r, nil
}

// Summary aggregates the measurements of one run.
type Summary struct {
	Count        int
	TotalWeight  float64
	WeightedMean float64
}

// Summary returns the count, total weight, and weighted mean of the
// recorded values of a run. WeightedMean is NaN for a weightless run.
func (s *Store) Summary(runID string) (Summary, error) {
	var sum Summary
	var weighted float64
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(weight), 0), COALESCE(SUM(weight * value), 0)
		 FROM measurements WHERE run_id = ?`,
		runID,
	).Scan(&sum.Count, &sum.TotalWeight, &weighted)
	if err != nil {
		return Summary{}, err
	}
	sum.WeightedMean = math.NaN()
	if sum.TotalWeight != 0 {
		sum.WeightedMean = weighted / sum.TotalWeight
	}
	return sum, nil
}

// Recorder writes the measurements of one run inside a single transaction.
// Record has the smc.Sink signature; the first failure is kept and
// reported by Commit.
type Recorder[R any] struct {
	tx    *sql.Tx
	stmt  *sql.Stmt
	runID string
	value func(R) float64
	seq   int
	err   error
}

// NewRecorder starts a transaction recording measurements for runID.
// value maps a result to the number summarized by Store.Summary; a nil
// value stores 0.
func NewRecorder[R any](s *Store, runID string, value func(R) float64) (*Recorder[R], error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO measurements (run_id, seq, weight, value, result) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return &Recorder[R]{tx: tx, stmt: stmt, runID: runID, value: value}, nil
}

// Record inserts one measurement.
func (r *Recorder[R]) Record(weight float64, result R) {
	if r.err != nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		r.err = fmt.Errorf("sqlitestore: encode result %d: %w", r.seq, err)
		return
	}
	var v float64
	if r.value != nil {
		v = r.value(result)
	}
	if _, err := r.stmt.Exec(r.runID, r.seq, weight, v, string(data)); err != nil {
		r.err = fmt.Errorf("sqlitestore: insert measurement %d: %w", r.seq, err)
		return
	}
	r.seq++
}

// Len returns the number of measurements recorded so far.
func (r *Recorder[R]) Len() int { return r.seq }

// Commit ends the transaction. If any Record failed, the transaction is
// rolled back and the first error is returned.
func (r *Recorder[R]) Commit() error {
	r.stmt.Close()
	if r.err != nil {
		r.tx.Rollback()
		return r.err
	}
	return r.tx.Commit()
}

// Rollback abandons the transaction.
func (r *Recorder[R]) Rollback() error {
	r.stmt.Close()
	return r.tx.Rollback()
}
