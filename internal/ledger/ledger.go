// Copyright Bio312 course staff, 2026. All rights reserved.

// Package ledger persists per-record fetch outcomes in a SQLite
// database so re-runs of the batch can be compared after the fact.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Bio312/labfiles/pkg/types"
)

const dbFile = "structfetch.db"

// Store manages the run-ledger SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger database at dir/structfetch.db,
// creating the schema if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			reference_id TEXT NOT NULL,
			cross_ref_id TEXT,
			status TEXT NOT NULL,
			reason TEXT,
			mechanism TEXT,
			source_id TEXT,
			files TEXT,
			fetched_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run_id ON outcomes(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_reference_id ON outcomes(reference_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BeginRun inserts a new run row and returns its id.
func (s *Store) BeginRun() (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO runs (started_at) VALUES (?)`,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return res.LastInsertId()
}

// RecordOutcome appends one per-record outcome to a run.
func (s *Store) RecordOutcome(runID int64, o types.Outcome) error {
	var mechanism, sourceID, files, fetchedAt string
	if o.Artifact != nil {
		mechanism = string(o.Artifact.Mechanism)
		sourceID = o.Artifact.SourceID
		fetchedAt = o.Artifact.FetchedAt.Format(time.RFC3339)

		encoded, err := json.Marshal(o.Artifact.Files())
		if err != nil {
			return fmt.Errorf("encoding file list: %w", err)
		}
		files = string(encoded)
	}

	_, err := s.db.Exec(
		`INSERT INTO outcomes (run_id, reference_id, cross_ref_id, status, reason, mechanism, source_id, files, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, o.Record.ReferenceID, o.Record.CrossRefID,
		string(o.Status), string(o.Reason), mechanism, sourceID, files, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting outcome for %s: %w", o.Record.ReferenceID, err)
	}
	return nil
}

// RunSummary aggregates one run for display.
type RunSummary struct {
	ID        int64
	StartedAt string
	Resolved  int
	Skipped   int
	Failed    int
}

// Total returns the number of records in the run.
func (r RunSummary) Total() int {
	return r.Resolved + r.Skipped + r.Failed
}

// RecentRuns returns up to limit run summaries, newest first.
func (s *Store) RecentRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT r.id, r.started_at,
			COALESCE(SUM(o.status = 'resolved'), 0),
			COALESCE(SUM(o.status = 'skipped'), 0),
			COALESCE(SUM(o.status = 'failed'), 0)
		 FROM runs r LEFT JOIN outcomes o ON o.run_id = r.id
		 GROUP BY r.id ORDER BY r.id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.ID, &rs.StartedAt, &rs.Resolved, &rs.Skipped, &rs.Failed); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		summaries = append(summaries, rs)
	}
	return summaries, rows.Err()
}

// Outcomes returns the outcome rows for one run in insertion order.
func (s *Store) Outcomes(runID int64) ([]types.Outcome, error) {
	rows, err := s.db.Query(
		`SELECT reference_id, cross_ref_id, status, reason, mechanism, source_id, files, fetched_at
		 FROM outcomes WHERE run_id = ? ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []types.Outcome
	for rows.Next() {
		var o types.Outcome
		var status, reason, mechanism, sourceID, files, fetchedAt string
		if err := rows.Scan(&o.Record.ReferenceID, &o.Record.CrossRefID,
			&status, &reason, &mechanism, &sourceID, &files, &fetchedAt); err != nil {
			return nil, fmt.Errorf("scanning outcome row: %w", err)
		}
		o.Status = types.Status(status)
		o.Reason = types.FailReason(reason)

		if mechanism != "" {
			art := &types.Artifact{SourceID: sourceID, Mechanism: types.Mechanism(mechanism)}
			if fetchedAt != "" {
				if t, parseErr := time.Parse(time.RFC3339, fetchedAt); parseErr == nil {
					art.FetchedAt = t
				}
			}
			var fileList []string
			if files != "" {
				if err := json.Unmarshal([]byte(files), &fileList); err != nil {
					return nil, fmt.Errorf("decoding file list for %s: %w", o.Record.ReferenceID, err)
				}
			}
			if len(fileList) > 0 {
				art.StructureFile = fileList[0]
				art.AuxFiles = fileList[1:]
			}
			o.Artifact = art
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
