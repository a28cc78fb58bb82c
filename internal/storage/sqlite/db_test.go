package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "bomsort-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInitDBAddsConvertedColumn(t *testing.T) {
	db := newTestDB(t)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('row_outcomes') WHERE name = 'converted'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInitDBIsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := InitDB(path)
	require.NoError(t, err)
	_, err = StartRun(db, "classify", "/p", time.Now())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDB(path)
	require.NoError(t, err)
	defer db.Close()
	runs, err := GetRecentRuns(db, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunLifecycle(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().UTC().Truncate(time.Second)

	first, err := StartRun(db, "classify", "/projects/a", base)
	require.NoError(t, err)
	assert.Len(t, first.ID, 36)
	second, err := StartRun(db, "merge", "/projects/a", base.Add(time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err := GetRun(db, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.False(t, got.FinishedAt.Valid)

	require.NoError(t, FinishRun(db, first.ID, StatusDone, "Classified 1 of 1 rows, 1 files placed.", base.Add(30*time.Second)))
	got, err = GetRun(db, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, "Classified 1 of 1 rows, 1 files placed.", got.Summary)
	assert.True(t, got.FinishedAt.Valid)

	runs, err := GetRecentRuns(db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	runs, err = GetRecentRuns(db, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRowAndMergeOutcomes(t *testing.T) {
	db := newTestDB(t)
	run, err := StartRun(db, "run", "/projects/b", time.Now())
	require.NoError(t, err)

	rows := []RowOutcome{
		{Line: 5, Part: "P001", Reason: "classified", Material: "铝板", Thickness: "2.0", Source: "primary", Files: 2, Converted: 1},
		{Line: 6, Part: "P002", Reason: "no_file", Material: "铝板", Thickness: "2.0", Source: "primary"},
		{Line: 7, Part: "P003", Reason: "no_file"},
		{Line: 8, Part: "P004", Reason: "copy_failed", Error: "permission denied"},
	}
	n, err := InsertRowOutcomes(db, run.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, err := GetRowOutcomes(db, run.ID)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	counts, err := CountReasons(db, run.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"classified": 1, "no_file": 2, "copy_failed": 1}, counts)

	merges := []MergeOutcome{
		{Bucket: "铝板/2.0", Output: "/out/铝板_2.0_merged.dxf", Placed: 3, Excluded: 1},
		{Bucket: "钢板/3", Error: "consolidate: no drawings merged"},
	}
	n, err = InsertMergeOutcomes(db, run.ID, merges)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	gotMerges, err := GetMergeOutcomes(db, run.ID)
	require.NoError(t, err)
	assert.Equal(t, merges, gotMerges)

	other, err := GetRowOutcomes(db, "missing")
	require.NoError(t, err)
	assert.Empty(t, other)
}
