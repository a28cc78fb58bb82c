package consolidate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// MergedSuffix ends the name of every per-bucket merged drawing.
const MergedSuffix = "_merged.dxf"

// BatchResult reports a MergeTaxonomy pass.
type BatchResult struct {
	Succeeded int
	Failed    int
	// Skipped counts buckets not finished because the pass was canceled.
	Skipped  int
	// Dropped counts source entities no merged drawing carries.
	Dropped  int
	Canceled bool
	Outputs  []string
	Lines    []string
	// Merges holds the result of each attempted bucket, keyed by output path.
	Merges map[string]MergeResult
	// Errors holds the failure of each failed bucket, keyed by output path.
	Errors map[string]error
}

type bucket struct {
	material, thickness string
	dir                 string
}

// MergeTaxonomy merges every root/<material>/<thickness> directory into
// outDir/<material>_<thickness>_merged.dxf. Buckets are visited in sorted
// order. A failing bucket is counted and the pass continues. Cancellation
// stops the pass; a bucket interrupted mid-merge counts as skipped.
func (c *Consolidator) MergeTaxonomy(ctx context.Context, root, outDir string) BatchResult {
	res := BatchResult{Merges: map[string]MergeResult{}, Errors: map[string]error{}}
	buckets, err := listBuckets(root)
	if err != nil {
		res.Lines = append(res.Lines, fmt.Sprintf("Source directory unavailable: %v", err))
		return res
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		res.Lines = append(res.Lines, fmt.Sprintf("Cannot create output directory: %v", err))
		return res
	}

	for i, b := range buckets {
		if ctx.Err() != nil {
			res.Canceled = true
			res.Skipped = len(buckets) - i
			res.Lines = append(res.Lines, fmt.Sprintf("Canceled: %d merged, %d skipped", i, res.Skipped))
			break
		}
		res.Lines = append(res.Lines, fmt.Sprintf("Merging %s - %s", b.material, b.thickness))
		output := filepath.Join(outDir, b.material+"_"+b.thickness+MergedSuffix)
		mr, err := c.MergeDirectory(ctx, b.dir, output)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res.Canceled = true
			res.Skipped = len(buckets) - i
			res.Lines = append(res.Lines, fmt.Sprintf("Canceled: %d merged, %d skipped", i, res.Skipped))
			break
		}
		res.Merges[output] = mr
		var line string
		if err != nil {
			res.Failed++
			res.Errors[output] = err
			line = fmt.Sprintf("  failed: %v", err)
			c.logger.Warn("bucket merge failed",
				zap.String("material", b.material),
				zap.String("thickness", b.thickness),
				zap.Error(err))
		} else {
			res.Succeeded++
			res.Outputs = append(res.Outputs, output)
			line = fmt.Sprintf("  merged %d of %d drawings into %s", len(mr.Placed), mr.Scanned, filepath.Base(output))
			if n := countDropped(mr.Dropped); n > 0 {
				res.Dropped += n
				line += fmt.Sprintf(", dropped %s", FormatDropped(mr.Dropped))
			}
		}
		res.Lines = append(res.Lines, line)
		if c.progress != nil {
			c.progress(i+1, len(buckets), line)
		}
	}
	return res
}

func listBuckets(root string) ([]bucket, error) {
	materials, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []bucket
	for _, m := range materials {
		if !m.IsDir() {
			continue
		}
		thicknesses, err := os.ReadDir(filepath.Join(root, m.Name()))
		if err != nil {
			return nil, err
		}
		for _, t := range thicknesses {
			if !t.IsDir() {
				continue
			}
			out = append(out, bucket{
				material:  m.Name(),
				thickness: t.Name(),
				dir:       filepath.Join(root, m.Name(), t.Name()),
			})
		}
	}
	return out, nil
}

// FormatBatchSummary renders a one-paragraph summary of a merge pass.
func FormatBatchSummary(res BatchResult) string {
	if res.Succeeded == 0 && res.Failed == 0 && !res.Canceled {
		if len(res.Lines) > 0 {
			return strings.Join(res.Lines, "\n")
		}
		return "No material/thickness directories to merge."
	}
	msg := fmt.Sprintf("Merge finished: %d succeeded, %d failed", res.Succeeded, res.Failed)
	if res.Canceled {
		msg += fmt.Sprintf(", %d skipped (canceled)", res.Skipped)
	}
	if res.Dropped > 0 {
		msg += fmt.Sprintf("; %d unsupported entities dropped", res.Dropped)
	}
	return msg + "."
}
