package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestMigrations(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"runs", "fovs"} {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "table %s not found", table)
	}
}

func TestRecordRunAndFovs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := Run{
		ID:        "run-1",
		StartedAt: time.Now(),
		Root:      "/data",
		Glob:      "*.tif",
		Workers:   4,
	}
	require.NoError(t, db.RecordRun(ctx, run))

	require.NoError(t, db.RecordFov(ctx, FovEntry{
		RunID: "run-1", Tif: "a.tif", Status: "processed", Cells: 42, RecordedAt: time.Now(),
	}))
	require.NoError(t, db.RecordFov(ctx, FovEntry{
		RunID: "run-1", Tif: "b.tif", Status: "failed", Error: "boom", RecordedAt: time.Now(),
	}))
	require.NoError(t, db.RecordFov(ctx, FovEntry{
		RunID: "run-1", Tif: "c.tif", Status: "skipped", Error: "", RecordedAt: time.Now(),
	}))

	var cells int
	err := db.QueryRow(`SELECT cells FROM fovs WHERE tif = 'a.tif'`).Scan(&cells)
	require.NoError(t, err)
	require.Equal(t, 42, cells)

	var errText string
	err = db.QueryRow(`SELECT error FROM fovs WHERE tif = 'b.tif'`).Scan(&errText)
	require.NoError(t, err)
	require.Equal(t, "boom", errText)
}

func TestRecordFovRejectsBadStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordRun(ctx, Run{ID: "run-1", StartedAt: time.Now()}))

	err := db.RecordFov(ctx, FovEntry{
		RunID: "run-1", Tif: "a.tif", Status: "exploded", RecordedAt: time.Now(),
	})
	require.Error(t, err)
}

func TestRecordFovNeedsRun(t *testing.T) {
	db := newTestDB(t)

	err := db.RecordFov(context.Background(), FovEntry{
		RunID: "missing", Tif: "a.tif", Status: "processed", RecordedAt: time.Now(),
	})
	require.Error(t, err)
}

func TestSummary(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordRun(ctx, Run{ID: "run-1", StartedAt: time.Now()}))
	require.NoError(t, db.RecordRun(ctx, Run{ID: "run-2", StartedAt: time.Now()}))

	entries := []FovEntry{
		{RunID: "run-1", Tif: "a.tif", Status: "processed"},
		{RunID: "run-1", Tif: "b.tif", Status: "processed"},
		{RunID: "run-1", Tif: "c.tif", Status: "failed", Error: "boom"},
		{RunID: "run-2", Tif: "d.tif", Status: "skipped"},
	}
	for _, e := range entries {
		e.RecordedAt = time.Now()
		require.NoError(t, db.RecordFov(ctx, e))
	}

	counts, err := db.Summary(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"processed": 2, "failed": 1}, counts)

	counts, err = db.Summary(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"skipped": 1}, counts)
}
