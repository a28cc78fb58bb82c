package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"bomsort/internal/consolidate"
	"bomsort/internal/storage/sqlite"
)

func (r *Runner) startRun(task Task, at time.Time) string {
	if r.deps.DB == nil {
		return ""
	}
	run, err := sqlite.StartRun(r.deps.DB, string(task), r.layout.Root, at)
	if err != nil {
		r.logger.Warn("ledger: start run failed", zap.Error(err))
		return ""
	}
	return run.ID
}

func status(ctx context.Context, rep Report, err error) string {
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return sqlite.StatusCanceled
	case err != nil:
		return sqlite.StatusFailed
	case rep.Canceled() || ctx.Err() != nil:
		return sqlite.StatusCanceled
	case rep.Failed():
		return sqlite.StatusFailed
	}
	return sqlite.StatusDone
}

// finish logs the pass, stores it in the ledger, updates metrics and posts
// the summary. None of these steps can fail the pass.
func (r *Runner) finish(ctx context.Context, rep Report, err error, start time.Time) {
	now := time.Now()
	st := status(ctx, rep, err)
	summary := rep.Summary()
	if err != nil {
		summary = strings.TrimSpace(summary + "\nError: " + err.Error())
	}

	fields := []zap.Field{
		zap.String("task", string(rep.Task)),
		zap.String("status", st),
		zap.Duration("elapsed", now.Sub(start)),
	}
	if rep.RunID != "" {
		fields = append(fields, zap.String("run_id", rep.RunID))
	}
	if err != nil {
		r.logger.Error("pass failed", append(fields, zap.Error(err))...)
	} else {
		r.logger.Info("pass finished", fields...)
	}

	r.record(rep, st, summary, now)
	r.observe(rep, st, now.Sub(start), now)

	if r.deps.Notifier != nil {
		title := fmt.Sprintf("bomsort %s (%s)", rep.Task, filepath.Base(r.layout.Root))
		if nerr := r.deps.Notifier.Notify(context.WithoutCancel(ctx), title, summary); nerr != nil {
			r.logger.Warn("notification failed", zap.Error(nerr))
		}
	}
}

func (r *Runner) record(rep Report, st, summary string, at time.Time) {
	db := r.deps.DB
	if db == nil || rep.RunID == "" {
		return
	}
	if rep.Classify != nil && len(rep.Classify.Outcomes) > 0 {
		rows := make([]sqlite.RowOutcome, 0, len(rep.Classify.Outcomes))
		for _, o := range rep.Classify.Outcomes {
			row := sqlite.RowOutcome{
				Line:      o.Line,
				Part:      o.Part,
				Reason:    o.Reason.String(),
				Material:  o.Material,
				Thickness: o.Thickness,
				Source:    string(o.Source),
				Files:     len(o.Files),
				Converted: o.Converted,
			}
			if o.Err != nil {
				row.Error = o.Err.Error()
			}
			rows = append(rows, row)
		}
		if _, err := sqlite.InsertRowOutcomes(db, rep.RunID, rows); err != nil {
			r.logger.Warn("ledger: storing row outcomes failed", zap.Error(err))
		}
	}
	if rep.Merge != nil && len(rep.Merge.Merges) > 0 {
		if _, err := sqlite.InsertMergeOutcomes(db, rep.RunID, mergeOutcomes(*rep.Merge)); err != nil {
			r.logger.Warn("ledger: storing merge outcomes failed", zap.Error(err))
		}
	}
	if err := sqlite.FinishRun(db, rep.RunID, st, summary, at); err != nil {
		r.logger.Warn("ledger: finish run failed", zap.Error(err))
	}
}

func mergeOutcomes(res consolidate.BatchResult) []sqlite.MergeOutcome {
	outputs := make([]string, 0, len(res.Merges))
	for out := range res.Merges {
		outputs = append(outputs, out)
	}
	sort.Strings(outputs)

	merges := make([]sqlite.MergeOutcome, 0, len(outputs))
	for _, out := range outputs {
		mr := res.Merges[out]
		m := sqlite.MergeOutcome{
			Bucket:   strings.TrimSuffix(filepath.Base(out), consolidate.MergedSuffix),
			Placed:   len(mr.Placed),
			Excluded: len(mr.Excluded),
		}
		if err := res.Errors[out]; err != nil {
			m.Error = err.Error()
		} else {
			m.Output = out
		}
		merges = append(merges, m)
	}
	return merges
}

func (r *Runner) observe(rep Report, st string, elapsed time.Duration, at time.Time) {
	m := r.deps.Metrics
	if m == nil {
		return
	}
	if c := rep.Classify; c != nil {
		for _, o := range c.Outcomes {
			m.RecordRow(o.Reason.String())
		}
		m.RecordFiles(c.FilesPlaced-c.Converted, c.Converted)
	}
	if b := rep.Merge; b != nil {
		for out, mr := range b.Merges {
			m.RecordMerge(b.Errors[out] == nil, len(mr.Placed))
		}
	}
	m.RecordPass(string(rep.Task), elapsed, st == sqlite.StatusDone, at)

	if path := r.cfg.MetricsTextfile; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			r.logger.Warn("writing metrics textfile failed", zap.String("path", path), zap.Error(err))
		}
	}
}
