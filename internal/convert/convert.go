// Package convert drives the external CAD converter that turns native
// drawings into DXF. At most one conversion session is open at a time.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotConfigured is returned when no converter command is set.
	ErrNotConfigured = errors.New("convert: no converter configured")
	// ErrReleased is returned when a released session is used.
	ErrReleased = errors.New("convert: session released")
	// ErrNoOutput is returned when the converter exits cleanly without writing the output file.
	ErrNoOutput = errors.New("convert: converter produced no output")
)

// Converter turns the drawing at in into a DXF file at out.
type Converter interface {
	Convert(ctx context.Context, in, out string) error
}

// Runner serializes access to a Converter.
type Runner struct {
	backend Converter
	slot    chan struct{}
	logger  *zap.Logger
}

// NewRunner wraps backend. A nil logger discards log output.
func NewRunner(backend Converter, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{backend: backend, slot: make(chan struct{}, 1), logger: logger}
}

// Session is exclusive use of the converter. Release it when done.
type Session struct {
	r        *Runner
	released bool
}

// Acquire waits for the converter to be free.
func (r *Runner) Acquire(ctx context.Context) (*Session, error) {
	select {
	case r.slot <- struct{}{}:
		r.logger.Debug("converter session opened")
		return &Session{r: r}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release frees the converter. Calling it more than once is harmless.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true
	<-s.r.slot
	s.r.logger.Debug("converter session closed")
}

// Convert runs one conversion inside the session, creating out's directory.
func (s *Session) Convert(ctx context.Context, in, out string) error {
	if s.released {
		return ErrReleased
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := s.r.backend.Convert(ctx, in, out); err != nil {
		return fmt.Errorf("convert %s: %w", filepath.Base(in), err)
	}
	return nil
}

// Convert opens a session for a single conversion.
func (r *Runner) Convert(ctx context.Context, in, out string) error {
	s, err := r.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.Release()
	return s.Convert(ctx, in, out)
}

// CommandBackend runs an external program per conversion. Arguments may
// contain the placeholders {in} and {out}.
type CommandBackend struct {
	Command []string
	Timeout time.Duration
}

// ParseCommand splits a configured command line on whitespace.
func ParseCommand(line string) CommandBackend {
	return CommandBackend{Command: strings.Fields(line)}
}

func (b CommandBackend) Convert(ctx context.Context, in, out string) error {
	if len(b.Command) == 0 {
		return ErrNotConfigured
	}
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}
	r := strings.NewReplacer("{in}", in, "{out}", out)
	args := make([]string, len(b.Command))
	for i, a := range b.Command {
		args[i] = r.Replace(a)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	if _, err := os.Stat(out); err != nil {
		return ErrNoOutput
	}
	return nil
}
