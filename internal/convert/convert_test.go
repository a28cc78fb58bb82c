package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverter struct {
	calls [][2]string
	err   error
}

func (f *fakeConverter) Convert(_ context.Context, in, out string) error {
	f.calls = append(f.calls, [2]string{in, out})
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(out, []byte("0\nEOF\n"), 0o644)
}

func TestRunnerSingleSession(t *testing.T) {
	r := NewRunner(&fakeConverter{}, nil)
	s, err := r.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	s.Release()
	s.Release()
	s2, err := r.Acquire(context.Background())
	require.NoError(t, err)
	s2.Release()

	assert.ErrorIs(t, s.Convert(context.Background(), "a", "b"), ErrReleased)
}

func TestRunnerConvertReleasesOnError(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeConverter{err: boom}
	r := NewRunner(fake, nil)
	dir := t.TempDir()

	err := r.Convert(context.Background(), "in.slddrw", filepath.Join(dir, "x", "out.dxf"))
	assert.ErrorIs(t, err, boom)
	assert.DirExists(t, filepath.Join(dir, "x"))

	fake.err = nil
	require.NoError(t, r.Convert(context.Background(), "in.slddrw", filepath.Join(dir, "out.dxf")))
	assert.Len(t, fake.calls, 2)
}

func TestCommandBackend(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX tools")
	}
	dir := t.TempDir()
	in := filepath.Join(dir, "part.slddrw")
	require.NoError(t, os.WriteFile(in, []byte("drawing"), 0o644))
	out := filepath.Join(dir, "part.dxf")

	b := ParseCommand("cp {in} {out}")
	require.NoError(t, b.Convert(context.Background(), in, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "drawing", string(data))

	assert.ErrorIs(t, ParseCommand("true").Convert(context.Background(), in, filepath.Join(dir, "none.dxf")), ErrNoOutput)
	assert.Error(t, ParseCommand("false").Convert(context.Background(), in, out))
	assert.ErrorIs(t, CommandBackend{}.Convert(context.Background(), in, out), ErrNotConfigured)
}
