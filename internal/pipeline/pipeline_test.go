package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"bomsort/internal/bom"
	"bomsort/internal/classify"
	"bomsort/internal/config"
	"bomsort/internal/dxf"
	"bomsort/internal/metrics"
	"bomsort/internal/storage/sqlite"
)

type fixture struct {
	root string
	pool string
	cfg  config.Config
}

func writeWorkbook(t *testing.T, path string, rows [][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		vals := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &vals))
	}
	require.NoError(t, f.SaveAs(path))
}

func writeDrawing(t *testing.T, path string, w, h float64) {
	t.Helper()
	doc := dxf.New()
	doc.Codepage = "ANSI_936"
	doc.Model = []dxf.Entity{
		&dxf.Line{Start: r2.Vec{X: 0, Y: 0}, End: r2.Vec{X: w, Y: h}},
	}
	require.NoError(t, doc.WriteFile(path))
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	pool := filepath.Join(root, "pool")
	require.NoError(t, os.MkdirAll(filepath.Join(pool, "sub"), 0o755))

	writeWorkbook(t, filepath.Join(root, "parts.xlsx"), [][]interface{}{
		{"零件清单"},
		{"序号", "图号", "名称", "材料", "数量"},
		{1, "P001", "面板", "铝板 T=2.0", 3},
		{2, "P002", "支架", "钢板 T=3", 1},
		{3, "P404", "盖", "铝板 T=2.0", 1},
		{4, "P003", "螺钉", "螺钉 M4", 4},
	})
	writeDrawing(t, filepath.Join(pool, "P001.dxf"), 200, 80)
	writeDrawing(t, filepath.Join(pool, "sub", "P002.dxf"), 120, 40)
	writeDrawing(t, filepath.Join(pool, "P003.dxf"), 10, 10)

	cfgPath := filepath.Join(root, "config.yaml")
	yaml := "project_dir: " + root + "\n" +
		"source_dir: " + pool + "\n" +
		"source_recursive: true\n" +
		"metrics_textfile: " + filepath.Join(root, "bomsort.prom") + "\n" +
		"timezone: UTC\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	t.Setenv("CONFIG_PATH", "")
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	return fixture{root: root, pool: pool, cfg: cfg}
}

type notice struct{ title, summary string }

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Notify(_ context.Context, title, summary string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{title, summary})
	return nil
}

func TestExecuteRun(t *testing.T) {
	fx := newFixture(t)
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()
	notifier := &recordingNotifier{}

	r := NewRunner(fx.cfg, Deps{
		Logger:   zap.NewNop(),
		DB:       db,
		Metrics:  metrics.New(),
		Notifier: notifier,
	})
	var tasks []Task
	r.OnProgress(func(e Event) {
		if len(tasks) == 0 || tasks[len(tasks)-1] != e.Task {
			tasks = append(tasks, e.Task)
		}
	})

	rep, err := r.Execute(context.Background(), TaskRun)
	require.NoError(t, err)
	assert.Equal(t, []Task{TaskClassify, TaskAnnotate, TaskMerge}, tasks)
	assert.Equal(t, filepath.Join(fx.root, "parts.xlsx"), rep.BOMFile)

	require.NotNil(t, rep.Classify)
	assert.Equal(t, 4, rep.Classify.Rows)
	assert.Equal(t, 2, rep.Classify.Classified)
	assert.Equal(t, 1, rep.Classify.Skips[classify.SkipNoFile])
	assert.Equal(t, 1, rep.Classify.Skips[classify.SkipUnmatchedMaterial])

	layout := r.Layout()
	assert.FileExists(t, filepath.Join(layout.Classified, "铝板", "2.0", "(3)P001.dxf"))
	assert.FileExists(t, filepath.Join(layout.Classified, "钢板", "3", "(1)P002.dxf"))

	require.NotNil(t, rep.Annotate)
	assert.Equal(t, 2, rep.Annotate.Annotated)
	assert.FileExists(t, filepath.Join(layout.Annotated, "铝板", "2.0", "processed_(3)P001.dxf"))
	assert.FileExists(t, filepath.Join(layout.Annotated, "钢板", "3", "processed_(1)P002.dxf"))

	require.NotNil(t, rep.Merge)
	assert.Equal(t, 2, rep.Merge.Succeeded)
	assert.Zero(t, rep.Merge.Failed)
	merged := filepath.Join(layout.Merged, "铝板_2.0_merged.dxf")
	assert.FileExists(t, merged)
	assert.FileExists(t, filepath.Join(layout.Merged, "钢板_3_merged.dxf"))

	doc, err := dxf.ReadFile(merged)
	require.NoError(t, err)
	var labels []string
	for _, e := range doc.Model {
		if txt, ok := e.(*dxf.Text); ok {
			labels = append(labels, txt.Value)
		}
	}
	assert.Equal(t, []string{"P001"}, labels)

	assert.False(t, rep.Failed())
	assert.False(t, rep.Canceled())
	assert.Contains(t, rep.Summary(), "Classified 2 of 4 rows")
	assert.Contains(t, rep.Summary(), "Annotated 2 of 2 drawings.")
	assert.Contains(t, rep.Summary(), "Merge finished: 2 succeeded, 0 failed.")

	run, err := sqlite.GetRun(db, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, sqlite.StatusDone, run.Status)
	assert.Equal(t, "run", run.Task)
	assert.Equal(t, rep.Summary(), run.Summary)
	counts, err := sqlite.CountReasons(db, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"classified": 2, "no_file": 1, "unmatched_material": 1}, counts)
	merges, err := sqlite.GetMergeOutcomes(db, rep.RunID)
	require.NoError(t, err)
	require.Len(t, merges, 2)
	assert.Equal(t, "铝板_2.0", merges[0].Bucket)
	assert.Equal(t, 1, merges[0].Placed)

	prom, err := os.ReadFile(fx.cfg.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `bomsort_rows_total{outcome="classified"} 2`)
	assert.Contains(t, string(prom), `bomsort_merges_total{status="ok"} 2`)

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "bomsort run ("+filepath.Base(fx.root)+")", notifier.notices[0].title)
	assert.Equal(t, rep.Summary(), notifier.notices[0].summary)
}

func TestExecuteIsRepeatable(t *testing.T) {
	fx := newFixture(t)
	r := NewRunner(fx.cfg, Deps{})

	_, err := r.Execute(context.Background(), TaskRun)
	require.NoError(t, err)
	stale := filepath.Join(r.Layout().Annotated, "stale.dxf")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	rep, err := r.Execute(context.Background(), TaskRun)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Classify.FilesPlaced)
	assert.NoFileExists(t, stale, "annotation tree is rebuilt")
	assert.Equal(t, 2, rep.Annotate.Annotated)
}

func TestExecuteDetectionFailures(t *testing.T) {
	t.Run("no workbook", func(t *testing.T) {
		fx := newFixture(t)
		require.NoError(t, os.Remove(filepath.Join(fx.root, "parts.xlsx")))
		db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "ledger.db"))
		require.NoError(t, err)
		defer db.Close()

		rep, err := NewRunner(fx.cfg, Deps{DB: db}).Execute(context.Background(), TaskClassify)
		require.ErrorIs(t, err, ErrNoBOM)
		assert.Nil(t, rep.Classify)

		run, err := sqlite.GetRun(db, rep.RunID)
		require.NoError(t, err)
		assert.Equal(t, sqlite.StatusFailed, run.Status)
		assert.Contains(t, run.Summary, "no parts list found")
	})

	t.Run("no header", func(t *testing.T) {
		fx := newFixture(t)
		writeWorkbook(t, filepath.Join(fx.root, "parts.xlsx"), [][]interface{}{
			{},
			{4.5, "-6", 7},
		})
		_, err := NewRunner(fx.cfg, Deps{}).Execute(context.Background(), TaskClassify)
		assert.ErrorIs(t, err, bom.ErrNoHeader)
	})

	t.Run("missing column", func(t *testing.T) {
		fx := newFixture(t)
		fx.cfg.Columns.Material = "材质"
		_, err := NewRunner(fx.cfg, Deps{}).Execute(context.Background(), TaskClassify)
		assert.ErrorIs(t, err, bom.ErrMissingRole)
	})
}

func TestDetect(t *testing.T) {
	fx := newFixture(t)
	path, h, err := NewRunner(fx.cfg, Deps{}).Detect()
	require.NoError(t, err)
	assert.Equal(t, "parts.xlsx", filepath.Base(path))
	assert.Equal(t, 1, h.RowIndex)
	assert.Equal(t, []string{"序号", "图号", "名称", "材料", "数量"}, h.Columns)
}

func TestStartCanceled(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := NewRunner(fx.cfg, Deps{}).Start(ctx, TaskRun)
	rep, err := job.Wait()
	require.NoError(t, err)
	require.NotNil(t, rep.Classify)
	assert.True(t, rep.Classify.Canceled)
	assert.True(t, rep.Canceled())
	assert.Nil(t, rep.Annotate, "later passes do not start after cancellation")
	assert.Nil(t, rep.Merge)
	assert.Equal(t, sqlite.StatusCanceled, status(ctx, rep, nil))

	select {
	case <-job.Done():
	default:
		t.Fatal("job must be done after Wait")
	}
	job.Cancel()
}

func TestStartMergeOnly(t *testing.T) {
	fx := newFixture(t)
	r := NewRunner(fx.cfg, Deps{})
	_, err := r.Execute(context.Background(), TaskClassify)
	require.NoError(t, err)

	var events []Event
	r.OnProgress(func(e Event) { events = append(events, e) })
	rep, err := r.Start(context.Background(), TaskMerge).Wait()
	require.NoError(t, err)
	assert.Nil(t, rep.Classify)
	assert.Equal(t, 2, rep.Merge.Succeeded)
	require.Len(t, events, 2)
	assert.Equal(t, TaskMerge, events[1].Task)
	assert.Equal(t, 2, events[1].Done)
	assert.Equal(t, 2, events[1].Total)
}

func TestUnknownTask(t *testing.T) {
	_, err := NewRunner(config.Config{ProjectDir: t.TempDir()}, Deps{}).Execute(context.Background(), Task("publish"))
	assert.True(t, errors.Is(err, ErrUnknownTask))

	task, ok := ParseTask(" Merge ")
	assert.True(t, ok)
	assert.Equal(t, TaskMerge, task)
	_, ok = ParseTask("detect")
	assert.False(t, ok)
}

func TestFormatAnnotateSummary(t *testing.T) {
	assert.Equal(t, "No classified drawings to annotate.", FormatAnnotateSummary(AnnotateResult{}))
	assert.Equal(t, "Annotated 3 of 5 drawings, 1 failed, 1 skipped (canceled).",
		FormatAnnotateSummary(AnnotateResult{Files: 5, Annotated: 3, Failed: 1, Skipped: 1, Canceled: true}))
	assert.Equal(t, "Annotated 2 of 2 drawings; 4 unsupported entities dropped.",
		FormatAnnotateSummary(AnnotateResult{Files: 2, Annotated: 2, Dropped: 4}))
}
