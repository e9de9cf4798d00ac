package infty

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// RunStatus is the catalog state of a run.
type RunStatus string

const (
	RunCreated     RunStatus = "created"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// RunRecord is one catalog row.
type RunRecord struct {
	RunID           string
	Root            string
	Objective       string
	Status          RunStatus
	DeliverablePath string
	Summary         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ErrRunNotFound means the catalog has no row for the run id.
var ErrRunNotFound = errors.New("run not found")

// RunIndex is a SQLite catalog of runs under a runs root. It backs the
// list/show CLI verbs and records each run's terminal state.
type RunIndex struct {
	db *sql.DB
}

// OpenRunIndex opens or creates the catalog database at the given path.
func OpenRunIndex(path string) (*RunIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run index: %w", err)
	}
	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("open run index: %w", err)
	}

	idx := &RunIndex{db: db}
	if err := idx.init(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// init creates the schema.
func (idx *RunIndex) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id           TEXT PRIMARY KEY,
		root             TEXT NOT NULL,
		objective        TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT 'created',
		deliverable_path TEXT NOT NULL DEFAULT '',
		summary          TEXT NOT NULL DEFAULT '',
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL
	);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return fmt.Errorf("init run index: %w", err)
	}
	return nil
}

// Close closes the catalog.
func (idx *RunIndex) Close() error {
	return idx.db.Close()
}

// RecordCreated inserts a fresh run row.
func (idx *RunIndex) RecordCreated(runID, root, objective string) error {
	now := time.Now().UTC()
	_, err := idx.db.Exec(
		`INSERT INTO runs (run_id, root, objective, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, root, objective, string(RunCreated), now, now,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", runID, err)
	}
	return nil
}

// RecordOutcome transitions a run to its terminal state.
func (idx *RunIndex) RecordOutcome(runID string, status RunStatus, deliverablePath, summary string) error {
	result, err := idx.db.Exec(
		`UPDATE runs SET status = ?, deliverable_path = ?, summary = ?, updated_at = ? WHERE run_id = ?`,
		string(status), deliverablePath, summary, time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("record outcome for run %s: %w", runID, err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("record outcome for run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// List returns all runs, newest first.
func (idx *RunIndex) List() ([]RunRecord, error) {
	rows, err := idx.db.Query(
		`SELECT run_id, root, objective, status, deliverable_path, summary, created_at, updated_at
		 FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var status string
		if err := rows.Scan(&rec.RunID, &rec.Root, &rec.Objective, &status, &rec.DeliverablePath, &rec.Summary, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		rec.Status = RunStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns the record for one run.
func (idx *RunIndex) Get(runID string) (RunRecord, error) {
	row := idx.db.QueryRow(
		`SELECT run_id, root, objective, status, deliverable_path, summary, created_at, updated_at
		 FROM runs WHERE run_id = ?`, runID)

	var rec RunRecord
	var status string
	err := row.Scan(&rec.RunID, &rec.Root, &rec.Objective, &status, &rec.DeliverablePath, &rec.Summary, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("show run %s: %w", runID, err)
	}
	rec.Status = RunStatus(status)
	return rec, nil
}
