package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"bomsort/internal/bom"
	"bomsort/internal/classify"
	"bomsort/internal/consolidate"
	"bomsort/internal/match"
	"bomsort/internal/project"
)

// bomFile returns the configured parts list, or the first workbook in the
// project directory.
func (r *Runner) bomFile() (string, error) {
	if r.cfg.BOMFile != "" {
		if filepath.IsAbs(r.cfg.BOMFile) {
			return r.cfg.BOMFile, nil
		}
		return filepath.Join(r.layout.Root, r.cfg.BOMFile), nil
	}
	files, err := project.FindBOMFiles(r.layout.Root)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoBOM, r.layout.Root)
	}
	if len(files) > 1 {
		r.logger.Warn("several parts lists found, using the first",
			zap.String("file", files[0]), zap.Int("count", len(files)))
	}
	return files[0], nil
}

// Detect locates the header of the project's parts list.
func (r *Runner) Detect() (string, bom.HeaderResult, error) {
	path, err := r.bomFile()
	if err != nil {
		return "", bom.HeaderResult{}, err
	}
	table, err := bom.Open(path)
	if err != nil {
		return path, bom.HeaderResult{}, err
	}
	table.MaxRows = r.cfg.HeaderMaxRows
	h, err := table.Header()
	return path, h, err
}

func (r *Runner) classify(ctx context.Context, rep *Report) error {
	if err := r.layout.Ensure(); err != nil {
		return err
	}
	path, err := r.bomFile()
	if err != nil {
		return err
	}
	rep.BOMFile = path

	table, err := bom.Open(path)
	if err != nil {
		return fmt.Errorf("open parts list: %w", err)
	}
	table.MaxRows = r.cfg.HeaderMaxRows
	mapping, err := r.cfg.Mapping()
	if err != nil {
		return err
	}
	rows, err := table.Rows(mapping)
	if err != nil {
		return fmt.Errorf("read parts list %s: %w", filepath.Base(path), err)
	}

	idx, err := match.Scan(r.cfg.SourceDir, match.ScanOptions{
		Recursive:  r.cfg.SourceRecursive,
		Extensions: r.cfg.SourceExts,
		Exclude:    []string{r.layout.Result},
	})
	if err != nil {
		return err
	}
	r.logger.Info("indexed source pool",
		zap.String("dir", r.cfg.SourceDir),
		zap.Int("stems", idx.Len()),
		zap.Int("files", idx.Files()),
		zap.Int("rows", len(rows)))

	engine := classify.NewEngine(classify.Options{
		Root:             r.layout.Classified,
		Policy:           classify.Policy(r.cfg.UnmatchedPolicy),
		DefaultMaterial:  r.cfg.DefaultMaterial,
		DefaultThickness: r.cfg.DefaultThickness,
		NativeExtensions: r.cfg.NativeExtensions,
	}, idx, r.logger)
	if r.deps.Converter != nil {
		engine.WithConverter(r.deps.Converter)
	}
	if r.deps.Guesser != nil {
		engine.WithGuesser(r.deps.Guesser)
	}
	engine.OnProgress(func(done, total int, line string) {
		r.emit(Event{Task: TaskClassify, Done: done, Total: total, Line: line})
	})

	res := engine.Run(ctx, rows)
	rep.Classify = &res
	return nil
}

// AnnotateResult reports an annotation pass.
type AnnotateResult struct {
	Files     int
	Annotated int
	Failed    int
	// Skipped counts files not attempted because the pass was canceled.
	Skipped  int
	Canceled bool
	// Dropped counts source entities the annotated copies do not carry.
	Dropped int
	Outputs []string
	Lines   []string
}

// FormatAnnotateSummary renders a one-paragraph summary of an annotation pass.
func FormatAnnotateSummary(r AnnotateResult) string {
	if r.Files == 0 {
		if len(r.Lines) > 0 {
			return strings.Join(r.Lines, "\n")
		}
		return "No classified drawings to annotate."
	}
	msg := fmt.Sprintf("Annotated %d of %d drawings", r.Annotated, r.Files)
	if r.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", r.Failed)
	}
	if r.Canceled {
		msg += fmt.Sprintf(", %d skipped (canceled)", r.Skipped)
	}
	if r.Dropped > 0 {
		msg += fmt.Sprintf("; %d unsupported entities dropped", r.Dropped)
	}
	return msg + "."
}

// annotate labels every classified drawing into the annotation tree,
// mirroring its relative directory. The tree is cleared first.
func (r *Runner) annotate(ctx context.Context, rep *Report) {
	res := AnnotateResult{}
	rep.Annotate = &res
	if err := r.layout.ResetAnnotated(); err != nil {
		res.Lines = append(res.Lines, fmt.Sprintf("Cannot prepare annotation directory: %v", err))
		return
	}
	files, err := listDrawings(r.layout.Classified)
	if err != nil {
		res.Lines = append(res.Lines, fmt.Sprintf("Classified directory unavailable: %v", err))
		return
	}
	res.Files = len(files)

	cons := r.consolidator()
	for i, src := range files {
		if ctx.Err() != nil {
			res.Canceled = true
			res.Skipped = len(files) - i
			res.Lines = append(res.Lines, fmt.Sprintf("Canceled: %d annotated, %d skipped", res.Annotated, res.Skipped))
			break
		}
		rel, err := filepath.Rel(r.layout.Classified, filepath.Dir(src))
		if err != nil {
			rel = "."
		}
		var line string
		a, err := cons.AnnotateFile(src, filepath.Join(r.layout.Annotated, rel))
		if err != nil {
			res.Failed++
			line = fmt.Sprintf("%s: %v", filepath.Base(src), err)
			r.logger.Warn("annotation failed", zap.String("file", src), zap.Error(err))
		} else {
			res.Annotated++
			res.Outputs = append(res.Outputs, a.Output)
			line = fmt.Sprintf("[%d] %s", res.Annotated, filepath.Join(rel, filepath.Base(a.Output)))
			if len(a.Dropped) > 0 {
				for _, n := range a.Dropped {
					res.Dropped += n
				}
				line += ", dropped " + consolidate.FormatDropped(a.Dropped)
			}
		}
		res.Lines = append(res.Lines, line)
		r.emit(Event{Task: TaskAnnotate, Done: i + 1, Total: len(files), Line: line})
	}
}

func (r *Runner) merge(ctx context.Context, rep *Report) {
	cons := r.consolidator()
	cons.OnProgress(func(done, total int, line string) {
		r.emit(Event{Task: TaskMerge, Done: done, Total: total, Line: line})
	})
	res := cons.MergeTaxonomy(ctx, r.layout.Classified, r.layout.Merged)
	rep.Merge = &res
}

func (r *Runner) consolidator() *consolidate.Consolidator {
	d := r.cfg.Drawing
	return consolidate.New(consolidate.Options{
		TextHeight:      d.TextHeight,
		TextLayer:       d.TextLayer,
		TextColor:       d.TextColor,
		Spacing:         d.Spacing,
		VisibleLayers:   d.VisibleLayers,
		HideOtherLayers: r.cfg.HideOtherLayers(),
		Codepage:        d.Codepage,
	}, r.logger)
}

// listDrawings returns the DXF files under root, sorted by path.
func listDrawings(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".dxf") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
