// Package classify sorts the drawings of a parts list into a
// material/thickness directory taxonomy.
package classify

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"bomsort/internal/bom"
	"bomsort/internal/convert"
	"bomsort/internal/match"
	"bomsort/internal/project"
)

// Policy decides what happens to a row whose material cannot be parsed.
type Policy string

const (
	PolicySkip    Policy = "skip"
	PolicyDefault Policy = "default"
)

const (
	DefaultMaterialLabel  = "未分类材料"
	DefaultThicknessLabel = "未知厚度"
	DefaultQuantity       = "1"
)

// MaterialGuesser suggests a material bucket for a row neither material
// column could be parsed from.
type MaterialGuesser interface {
	GuessMaterial(ctx context.Context, part, description string) (bom.MaterialSpec, bool, error)
}

// Options configures an Engine.
type Options struct {
	// Root is the taxonomy root directory.
	Root             string
	Policy           Policy
	DefaultMaterial  string
	DefaultThickness string
	// NativeExtensions are converted to DXF when a converter is set.
	NativeExtensions []string
}

// ProgressFunc is called after each row.
type ProgressFunc func(done, total int, line string)

// Engine classifies parts-list rows against an index of drawing files.
type Engine struct {
	opts      Options
	index     *match.Index
	converter *convert.Runner
	guesser   MaterialGuesser
	logger    *zap.Logger
	progress  ProgressFunc
}

// NewEngine returns an Engine over idx. A nil logger discards log output.
func NewEngine(opts Options, idx *match.Index, logger *zap.Logger) *Engine {
	if opts.Policy == "" {
		opts.Policy = PolicySkip
	}
	if opts.DefaultMaterial == "" {
		opts.DefaultMaterial = DefaultMaterialLabel
	}
	if opts.DefaultThickness == "" {
		opts.DefaultThickness = DefaultThicknessLabel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, index: idx, logger: logger}
}

// WithConverter enables conversion of native drawings.
func (e *Engine) WithConverter(r *convert.Runner) *Engine {
	e.converter = r
	return e
}

// WithGuesser enables material suggestions for unparseable rows.
func (e *Engine) WithGuesser(g MaterialGuesser) *Engine {
	e.guesser = g
	return e
}

// OnProgress registers a per-row progress callback.
func (e *Engine) OnProgress(fn ProgressFunc) { e.progress = fn }

// Run classifies rows in order. Each matched file is copied, or converted,
// to <Root>/<material>/<thickness>/(<qty>)<name>; existing files of the same
// name are overwritten. Cancellation is checked between rows.
func (e *Engine) Run(ctx context.Context, rows []bom.Row) Result {
	res := Result{Rows: len(rows), Skips: map[Reason]int{}}
	var session *convert.Session
	defer func() {
		if session != nil {
			session.Release()
		}
	}()

	for i, row := range rows {
		if ctx.Err() != nil {
			res.Canceled = true
			res.Lines = append(res.Lines, fmt.Sprintf("Canceled after %d of %d rows", i, len(rows)))
			break
		}
		o := e.classifyRow(ctx, row, &session, &res)
		res.record(o)
		line := formatOutcome(o, res.Classified)
		if line != "" {
			res.Lines = append(res.Lines, line)
		}
		if e.progress != nil {
			e.progress(i+1, len(rows), line)
		}
	}
	e.logger.Info("classification finished",
		zap.Int("rows", res.Rows),
		zap.Int("classified", res.Classified),
		zap.Int("files", res.FilesPlaced),
		zap.Int("skipped", res.Skipped()),
		zap.Int("failed", res.Failures))
	return res
}

func (e *Engine) classifyRow(ctx context.Context, row bom.Row, session **convert.Session, res *Result) Outcome {
	part := row.Value(bom.RolePart)
	o := Outcome{Line: row.Line, Part: part}
	if bom.IsMissing(part) {
		o.Reason = SkipEmptyPart
		return o
	}

	spec, source, ok := e.material(ctx, row)
	if !ok {
		o.Reason = SkipUnmatchedMaterial
		return o
	}
	o.Material, o.Thickness, o.Source = spec.Material, spec.Thickness, source

	group, ok := match.Match(part, e.index)
	if !ok {
		o.Reason = SkipNoFile
		return o
	}

	qty := row.Value(bom.RoleQuantity)
	if bom.IsMissing(qty) {
		qty = DefaultQuantity
	}
	dest := filepath.Join(e.opts.Root, project.SanitizeFilename(spec.Material), project.SanitizeFilename(spec.Thickness))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		o.Reason, o.Err = FailCopy, err
		return o
	}

	o.Reason = Classified
	for _, src := range group.Paths {
		out, converted, err := e.place(ctx, src, dest, qty, session)
		if err != nil {
			o.Reason, o.Err = FailCopy, err
			e.logger.Warn("placing file failed", zap.String("part", part), zap.String("file", src), zap.Error(err))
			return o
		}
		if converted {
			res.Converted++
			o.Converted++
		}
		o.Files = append(o.Files, out)
	}
	return o
}

// material walks the fallback chain: primary column, backup column,
// suggestion, then the default labels when the policy allows it.
func (e *Engine) material(ctx context.Context, row bom.Row) (bom.MaterialSpec, MaterialSource, bool) {
	if spec, ok := bom.ParseMaterial(row.Value(bom.RoleMaterial)); ok {
		return spec, SourcePrimary, true
	}
	if spec, ok := bom.ParseMaterial(row.Value(bom.RoleBackupMaterial)); ok {
		return spec, SourceBackup, true
	}
	if e.guesser != nil {
		desc := strings.TrimSpace(strings.Join([]string{
			row.Value(bom.RoleName), row.Value(bom.RoleMaterial), row.Value(bom.RoleBackupMaterial),
		}, " "))
		spec, ok, err := e.guesser.GuessMaterial(ctx, row.Value(bom.RolePart), desc)
		if err != nil {
			e.logger.Debug("material suggestion failed", zap.Int("line", row.Line), zap.Error(err))
		} else if ok {
			return spec, SourceSuggested, true
		}
	}
	if e.opts.Policy == PolicyDefault {
		return bom.MaterialSpec{Material: e.opts.DefaultMaterial, Thickness: e.opts.DefaultThickness}, SourceDefault, true
	}
	return bom.MaterialSpec{}, "", false
}

// place writes one source file into dest and reports whether it was converted.
func (e *Engine) place(ctx context.Context, src, dest, qty string, session **convert.Session) (string, bool, error) {
	prefix := "(" + qty + ")"
	if e.converter != nil && e.native(src) {
		if *session == nil {
			s, err := e.converter.Acquire(ctx)
			if err != nil {
				return "", false, err
			}
			*session = s
		}
		out := filepath.Join(dest, project.SanitizeFilename(prefix+match.Stem(src)+".dxf"))
		if err := (*session).Convert(ctx, src, out); err != nil {
			return "", false, err
		}
		return out, true, nil
	}
	out := filepath.Join(dest, project.SanitizeFilename(prefix+filepath.Base(src)))
	if err := copyFile(src, out); err != nil {
		return "", false, err
	}
	return out, false, nil
}

func (e *Engine) native(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, n := range e.opts.NativeExtensions {
		if strings.ToLower(n) == ext {
			return true
		}
	}
	return false
}

// copyFile copies src to dst, overwriting dst, and carries over the
// permission bits and modification time.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func formatOutcome(o Outcome, n int) string {
	switch o.Reason {
	case Classified:
		return fmt.Sprintf("[%d] %s -> %s/%s/ (%d files)", n, o.Part, o.Material, o.Thickness, len(o.Files))
	case FailCopy:
		return fmt.Sprintf("%s: copy failed: %v", o.Part, o.Err)
	case SkipUnmatchedMaterial:
		return fmt.Sprintf("%s: no material/thickness, skipped", o.Part)
	case SkipNoFile:
		return fmt.Sprintf("%s: no matching file, skipped", o.Part)
	}
	return ""
}
