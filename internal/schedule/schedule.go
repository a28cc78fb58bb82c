// Package schedule runs a job on a 5-field cron schedule until canceled.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parse reads a standard 5-field cron expression (minute hour day-of-month
// month day-of-week), e.g. "0 18 * * 1-5" for weekdays at 18:00.
func Parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule '%s': %w", expr, err)
	}
	return sched, nil
}

// Loop waits for each activation of sched in loc and runs job, one run at a
// time, until ctx is done. A failing job is logged and the loop continues.
// It returns the number of completed runs.
func Loop(ctx context.Context, sched cron.Schedule, loc *time.Location, logger *zap.Logger, job func(context.Context) error) int {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	runs := 0
	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		if next.IsZero() {
			logger.Warn("schedule has no further activations")
			return runs
		}
		wait := next.Sub(now)
		logger.Info("next sweep", zap.Time("at", next), zap.Duration("in", wait.Round(time.Second)))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return runs
		case <-timer.C:
		}

		if err := job(ctx); err != nil {
			logger.Error("sweep failed", zap.Error(err))
		}
		runs++
	}
}
