// Package sqlite keeps the run ledger: one row per pass, with the per-row
// classification outcomes and per-bucket merge outcomes it produced.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Run is one recorded pass.
type Run struct {
	ID         string
	Task       string
	Project    string
	Status     string
	Summary    string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

const (
	StatusRunning  = "running"
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// RowOutcome is the ledger form of one classified parts-list row.
type RowOutcome struct {
	Line      int
	Part      string
	Reason    string
	Material  string
	Thickness string
	Source    string
	Files     int
	Converted int
	Error     string
}

// MergeOutcome is the ledger form of one merged bucket.
type MergeOutcome struct {
	Bucket   string
	Output   string
	Placed   int
	Excluded int
	Error    string
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		task        TEXT NOT NULL,
		project     TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'running',
		summary     TEXT DEFAULT '',
		started_at  DATETIME NOT NULL,
		finished_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS row_outcomes (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    TEXT NOT NULL,
		line      INTEGER NOT NULL,
		part      TEXT DEFAULT '',
		reason    TEXT NOT NULL,
		material  TEXT DEFAULT '',
		thickness TEXT DEFAULT '',
		source    TEXT DEFAULT '',
		files     INTEGER DEFAULT 0,
		error     TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_row_outcomes_run ON row_outcomes(run_id);

	CREATE TABLE IF NOT EXISTS merge_outcomes (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id   TEXT NOT NULL,
		bucket   TEXT NOT NULL,
		output   TEXT DEFAULT '',
		placed   INTEGER DEFAULT 0,
		excluded INTEGER DEFAULT 0,
		error    TEXT DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_merge_outcomes_run ON merge_outcomes(run_id);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}

	// Migration: ledgers created before conversion support lack the column.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('row_outcomes') WHERE name = 'converted'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE row_outcomes ADD COLUMN converted INTEGER DEFAULT 0`)
	}

	return db, nil
}

// StartRun records a new running pass and returns it with its id set.
func StartRun(db *sql.DB, task, project string, at time.Time) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Task:      task,
		Project:   project,
		Status:    StatusRunning,
		StartedAt: at,
	}
	_, err := db.Exec(
		`INSERT INTO runs (id, task, project, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Task, run.Project, run.Status, run.StartedAt,
	)
	return run, err
}

// FinishRun stores the final status and summary of a pass.
func FinishRun(db *sql.DB, id, status, summary string, at time.Time) error {
	_, err := db.Exec(
		`UPDATE runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		status, summary, at, id,
	)
	return err
}

func InsertRowOutcomes(db *sql.DB, runID string, outcomes []RowOutcome) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO row_outcomes (run_id, line, part, reason, material, thickness, source, files, converted, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, o := range outcomes {
		_, err := stmt.Exec(runID, o.Line, o.Part, o.Reason, o.Material, o.Thickness, o.Source, o.Files, o.Converted, o.Error)
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, tx.Commit()
}

func InsertMergeOutcomes(db *sql.DB, runID string, outcomes []MergeOutcome) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO merge_outcomes (run_id, bucket, output, placed, excluded, error) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, o := range outcomes {
		if _, err := stmt.Exec(runID, o.Bucket, o.Output, o.Placed, o.Excluded, o.Error); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, tx.Commit()
}

func GetRun(db *sql.DB, id string) (Run, error) {
	var r Run
	err := db.QueryRow(
		`SELECT id, task, project, status, summary, started_at, finished_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Task, &r.Project, &r.Status, &r.Summary, &r.StartedAt, &r.FinishedAt)
	return r, err
}

// GetRecentRuns returns up to limit runs, newest first.
func GetRecentRuns(db *sql.DB, limit int) ([]Run, error) {
	rows, err := db.Query(
		`SELECT id, task, project, status, summary, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Task, &r.Project, &r.Status, &r.Summary, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func GetRowOutcomes(db *sql.DB, runID string) ([]RowOutcome, error) {
	rows, err := db.Query(
		`SELECT line, part, reason, material, thickness, source, files, converted, error
		 FROM row_outcomes WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RowOutcome
	for rows.Next() {
		var o RowOutcome
		if err := rows.Scan(&o.Line, &o.Part, &o.Reason, &o.Material, &o.Thickness, &o.Source, &o.Files, &o.Converted, &o.Error); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func GetMergeOutcomes(db *sql.DB, runID string) ([]MergeOutcome, error) {
	rows, err := db.Query(
		`SELECT bucket, output, placed, excluded, error FROM merge_outcomes WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MergeOutcome
	for rows.Next() {
		var o MergeOutcome
		if err := rows.Scan(&o.Bucket, &o.Output, &o.Placed, &o.Excluded, &o.Error); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CountReasons tallies the row outcomes of a run by reason.
func CountReasons(db *sql.DB, runID string) (map[string]int, error) {
	rows, err := db.Query(
		`SELECT reason, COUNT(*) FROM row_outcomes WHERE run_id = ? GROUP BY reason`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		counts[reason] = n
	}
	return counts, rows.Err()
}
