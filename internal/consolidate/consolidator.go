// Package consolidate lays out a directory of DXF drawings side by side in
// one document, each labelled with its part name, and runs that merge over a
// material/thickness taxonomy.
package consolidate

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"

	"bomsort/internal/dxf"
	"bomsort/internal/match"
)

// ProgressFunc is called after each unit of work with the number of units
// done, the total, and a message for display.
type ProgressFunc func(done, total int, line string)

// Consolidator merges and annotates drawings.
type Consolidator struct {
	opts     Options
	logger   *zap.Logger
	progress ProgressFunc
}

// New returns a Consolidator. A nil logger discards log output.
func New(opts Options, logger *zap.Logger) *Consolidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidator{opts: opts.withDefaults(), logger: logger}
}

// OnProgress registers a progress callback for MergeTaxonomy.
func (c *Consolidator) OnProgress(fn ProgressFunc) { c.progress = fn }

// Options returns the effective options.
func (c *Consolidator) Options() Options { return c.opts }

// Placement describes one drawing placed in a merged document.
type Placement struct {
	Source string
	Block  string
	Offset float64
	Width  float64
	Height float64
	// Dropped counts source entity types that could not be carried over.
	Dropped map[string]int
}

// MergeResult reports one MergeDirectory call.
type MergeResult struct {
	Output   string
	Scanned  int
	Placed   []Placement
	Excluded []string
	// Dropped sums Placement.Dropped over all placed drawings.
	Dropped map[string]int
}

// layout is the left-to-right packing state of one merge. Offsets only grow.
type layout struct {
	offset  float64
	spacing float64
}

// next returns the x offset for a drawing of the given width and advances.
func (l *layout) next(width float64) float64 {
	x := l.offset
	l.offset += width + l.spacing
	return x
}

// MergeDirectory places every drawing under dir into one new document and
// writes it to output. Drawings that cannot be read or have no extents are
// left out. It fails with ErrNotDirectory, ErrNoDrawings or ErrNothingMerged.
func (c *Consolidator) MergeDirectory(ctx context.Context, dir, output string) (MergeResult, error) {
	res := MergeResult{Output: output, Dropped: map[string]int{}}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return res, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	files, err := c.scan(dir)
	if err != nil {
		return res, fmt.Errorf("scan %s: %w", dir, err)
	}
	res.Scanned = len(files)
	if len(files) == 0 {
		return res, fmt.Errorf("%w: %s", ErrNoDrawings, dir)
	}

	doc := dxf.New()
	doc.Codepage = c.opts.Codepage
	lay := &layout{spacing: c.opts.Spacing}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p, err := c.place(doc, path, len(res.Placed), lay)
		if err != nil {
			c.logger.Debug("drawing left out of merge", zap.String("file", path), zap.Error(err))
			res.Excluded = append(res.Excluded, path)
			continue
		}
		res.Placed = append(res.Placed, p)
		for kind, n := range p.Dropped {
			res.Dropped[kind] += n
		}
	}
	if len(res.Placed) == 0 {
		return res, fmt.Errorf("%w: %s", ErrNothingMerged, dir)
	}

	if c.opts.HideOtherLayers {
		doc.HideLayersExcept(c.opts.VisibleLayers...)
	}
	doc.ZoomExtents()
	c.checkEncodable(doc, dir)
	if err := doc.WriteFile(output); err != nil {
		return res, fmt.Errorf("write merged drawing: %w", err)
	}
	if n := countDropped(res.Dropped); n > 0 {
		c.logger.Warn("unsupported entities dropped",
			zap.String("dir", dir),
			zap.Int("count", n),
			zap.String("types", FormatDropped(res.Dropped)))
	}
	c.logger.Info("merged drawings",
		zap.String("dir", dir),
		zap.String("output", output),
		zap.Int("placed", len(res.Placed)),
		zap.Int("excluded", len(res.Excluded)))
	return res, nil
}

// place imports one drawing into doc as a block and inserts it at the next
// layout offset with its label.
func (c *Consolidator) place(doc *dxf.Document, path string, n int, lay *layout) (Placement, error) {
	src, err := dxf.ReadFile(path)
	if err != nil {
		return Placement{}, err
	}
	if len(src.Model) == 0 {
		return Placement{}, errEmptyDrawing
	}
	ext := dxf.Extent(src, src.Model)
	if !ext.HasData() {
		return Placement{}, errNoExtents
	}

	ents, err := dxf.Import(src, src.Model, doc, dxf.ImportOptions{MergeLayers: c.opts.VisibleLayers})
	if err != nil {
		return Placement{}, err
	}
	stem := match.Stem(path)
	name := c.blockName(stem, n)
	blk, err := doc.NewBlock(name, ext.Min())
	if err != nil {
		return Placement{}, err
	}
	blk.Entities = ents

	w, h := ext.Width(), ext.Height()
	x := lay.next(w)
	if _, err := doc.AddBlockRef(name, r2.Vec{X: x, Y: 0}); err != nil {
		return Placement{}, err
	}
	c.label(doc, labelFor(stem), x, h)
	return Placement{Source: path, Block: name, Offset: x, Width: w, Height: h, Dropped: src.Skipped}, nil
}

// label writes text one text height above top, starting at x.
func (c *Consolidator) label(doc *dxf.Document, text string, x, top float64) *dxf.Text {
	return doc.AddText(text, r2.Vec{X: x, Y: top + c.opts.TextHeight}, c.opts.TextHeight, c.opts.TextLayer, c.opts.TextColor)
}

const illegalBlockChars = `<>/\":;?*|=,'`

// blockName builds block_<stem>_<n> with whitespace and characters DXF
// forbids in symbol names replaced by '_'. The stem is cut so the whole name
// fits MaxBlockName runes and the _<n> suffix is always kept.
func (c *Consolidator) blockName(stem string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	base := []rune(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(illegalBlockChars, r) {
			return '_'
		}
		return r
	}, "block_"+stem))
	if limit := c.opts.MaxBlockName - len(suffix); len(base) > limit && limit > 0 {
		base = base[:limit]
	}
	return string(base) + suffix
}

// scan lists drawing files under dir, recursively, sorted by path.
func (c *Consolidator) scan(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), c.opts.Extension) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
