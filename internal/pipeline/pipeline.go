// Package pipeline runs the classify, annotate and merge passes of a
// project on a background goroutine and records each pass.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"bomsort/internal/classify"
	"bomsort/internal/config"
	"bomsort/internal/consolidate"
	"bomsort/internal/convert"
	"bomsort/internal/metrics"
	"bomsort/internal/project"
)

var (
	// ErrNoBOM is returned when the project holds no parts-list workbook.
	ErrNoBOM = errors.New("pipeline: no parts list found")
	// ErrUnknownTask is returned for a task name Execute does not know.
	ErrUnknownTask = errors.New("pipeline: unknown task")
)

// Task names one pass, or the combined run.
type Task string

const (
	TaskClassify Task = "classify"
	TaskAnnotate Task = "annotate"
	TaskMerge    Task = "merge"
	// TaskRun is classify, then annotate, then merge.
	TaskRun Task = "run"
)

// ParseTask resolves a task from its name.
func ParseTask(s string) (Task, bool) {
	switch t := Task(strings.ToLower(strings.TrimSpace(s))); t {
	case TaskClassify, TaskAnnotate, TaskMerge, TaskRun:
		return t, true
	}
	return "", false
}

// Event is delivered after each unit of work.
type Event struct {
	Task  Task
	Done  int
	Total int
	Line  string
}

// Notifier receives the summary of every finished pass.
type Notifier interface {
	Notify(ctx context.Context, title, summary string) error
}

// Deps are the optional collaborators of a Runner. Nil fields are skipped.
type Deps struct {
	Logger    *zap.Logger
	DB        *sql.DB
	Metrics   *metrics.Recorder
	Notifier  Notifier
	Converter *convert.Runner
	Guesser   classify.MaterialGuesser
}

// Report is the outcome of one Execute call. Only the sections of the passes
// that ran are set.
type Report struct {
	Task     Task
	RunID    string
	BOMFile  string
	Classify *classify.Result
	Annotate *AnnotateResult
	Merge    *consolidate.BatchResult
}

// Failed reports whether any unit of the passes failed.
func (r Report) Failed() bool {
	return (r.Classify != nil && r.Classify.Failures > 0) ||
		(r.Annotate != nil && r.Annotate.Failed > 0) ||
		(r.Merge != nil && r.Merge.Failed > 0)
}

// Canceled reports whether any pass stopped early.
func (r Report) Canceled() bool {
	return (r.Classify != nil && r.Classify.Canceled) ||
		(r.Annotate != nil && r.Annotate.Canceled) ||
		(r.Merge != nil && r.Merge.Canceled)
}

// Summary joins the summaries of the passes that ran.
func (r Report) Summary() string {
	var parts []string
	if r.Classify != nil {
		parts = append(parts, classify.FormatSummary(*r.Classify))
	}
	if r.Annotate != nil {
		parts = append(parts, FormatAnnotateSummary(*r.Annotate))
	}
	if r.Merge != nil {
		parts = append(parts, consolidate.FormatBatchSummary(*r.Merge))
	}
	return strings.Join(parts, "\n")
}

// Runner executes passes over one project.
type Runner struct {
	cfg      config.Config
	deps     Deps
	logger   *zap.Logger
	layout   project.Layout
	progress func(Event)
}

// NewRunner returns a Runner for the project in cfg.ProjectDir.
func NewRunner(cfg config.Config, deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		layout: project.New(cfg.ProjectDir),
	}
}

// OnProgress registers a progress callback. It is called on the pass goroutine.
func (r *Runner) OnProgress(fn func(Event)) { r.progress = fn }

// Layout returns the project layout the Runner writes to.
func (r *Runner) Layout() project.Layout { return r.layout }

func (r *Runner) emit(e Event) {
	if r.progress != nil {
		r.progress(e)
	}
}

// Execute runs task to completion on the calling goroutine. The error is
// set only for failures that stop a pass before it starts, such as a
// missing parts list or header; per-unit problems are in the Report.
func (r *Runner) Execute(ctx context.Context, task Task) (Report, error) {
	rep := Report{Task: task}
	switch task {
	case TaskClassify, TaskAnnotate, TaskMerge, TaskRun:
	default:
		return rep, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}

	start := time.Now()
	rep.RunID = r.startRun(task, start)
	r.logger.Info("pass started", zap.String("task", string(task)), zap.String("project", r.layout.Root))

	var err error
	switch task {
	case TaskClassify:
		err = r.classify(ctx, &rep)
	case TaskAnnotate:
		r.annotate(ctx, &rep)
	case TaskMerge:
		r.merge(ctx, &rep)
	case TaskRun:
		err = r.classify(ctx, &rep)
		if err == nil && ctx.Err() == nil {
			r.annotate(ctx, &rep)
		}
		if err == nil && ctx.Err() == nil {
			r.merge(ctx, &rep)
		}
	}

	r.finish(ctx, rep, err, start)
	return rep, err
}

// Job is a pass running in the background.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}
	report Report
	err    error
}

// Start runs task on a new goroutine.
func (r *Runner) Start(ctx context.Context, task Task) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(j.done)
		defer cancel()
		j.report, j.err = r.Execute(ctx, task)
	}()
	return j
}

// Cancel asks the pass to stop after the current unit.
func (j *Job) Cancel() { j.cancel() }

// Done is closed when the pass has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the pass has finished and returns its outcome.
func (j *Job) Wait() (Report, error) {
	<-j.done
	return j.report, j.err
}
