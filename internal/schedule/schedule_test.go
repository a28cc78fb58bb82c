package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	sched, err := Parse("0 18 * * 1-5")
	require.NoError(t, err)

	friday := time.Date(2026, 10, 16, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC), sched.Next(friday))

	_, err = Parse("")
	assert.Error(t, err)
	_, err = Parse("0 18 * *")
	assert.Error(t, err)
	_, err = Parse("@every 1m")
	assert.Error(t, err, "descriptors are not accepted")
}

type tick time.Duration

func (d tick) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

type never struct{}

func (never) Next(time.Time) time.Time { return time.Time{} }

func TestLoopRunsUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	job := func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		if calls == 2 {
			return errors.New("bucket locked")
		}
		return nil
	}

	runs := Loop(ctx, tick(time.Millisecond), time.UTC, nil, job)
	assert.Equal(t, 3, runs)
	assert.Equal(t, 3, calls)
}

func TestLoopStopsWithoutActivations(t *testing.T) {
	runs := Loop(context.Background(), never{}, nil, nil, func(context.Context) error {
		t.Fatal("job must not run")
		return nil
	})
	assert.Zero(t, runs)
}

func TestLoopCanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	runs := Loop(ctx, tick(time.Hour), nil, nil, func(context.Context) error { return nil })
	assert.Zero(t, runs)
}
