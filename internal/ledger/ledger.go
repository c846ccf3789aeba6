package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the run ledger, a small SQLite database tracking what every batch
// run did to every recording.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to enable foreign keys: %w", err)
	}

	migration := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    root TEXT NOT NULL,
    glob TEXT NOT NULL,
    workers INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fovs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    tif TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('processed', 'skipped', 'failed')),
    cells INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    recorded_at TIMESTAMP NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS idx_run_fovs ON fovs(run_id);
CREATE INDEX IF NOT EXISTS idx_fov_status ON fovs(status);
`
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: failed to run migrations: %w", err)
	}

	return &DB{db}, nil
}

// Run is one batch invocation.
type Run struct {
	ID        string
	StartedAt time.Time
	Root      string
	Glob      string
	Workers   int
}

// FovEntry is the outcome of one recording within a run.
type FovEntry struct {
	RunID      string
	Tif        string
	Status     string
	Cells      int
	Error      string
	RecordedAt time.Time
}

// RecordRun inserts the run row. Call it once, before the recordings.
func (d *DB) RecordRun(ctx context.Context, run Run) error {
	_, err := d.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, root, glob, workers) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.Root, run.Glob, run.Workers)
	if err != nil {
		return fmt.Errorf("ledger: record run: %w", err)
	}

	return nil
}

// RecordFov appends one recording outcome to a run.
func (d *DB) RecordFov(ctx context.Context, entry FovEntry) error {
	var errText sql.NullString
	if entry.Error != "" {
		errText = sql.NullString{String: entry.Error, Valid: true}
	}

	_, err := d.ExecContext(ctx,
		`INSERT INTO fovs (run_id, tif, status, cells, error, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Tif, entry.Status, entry.Cells, errText, entry.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("ledger: record fov: %w", err)
	}

	return nil
}

// Summary counts a run's recordings per status.
func (d *DB) Summary(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM fovs WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: summary: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("ledger: summary: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: summary: %w", err)
	}

	return counts, nil
}
