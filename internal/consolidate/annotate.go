package consolidate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"bomsort/internal/dxf"
	"bomsort/internal/match"
)

// AnnotatedPrefix is prepended to the names of annotated copies.
const AnnotatedPrefix = "processed_"

var (
	quantityPrefix = regexp.MustCompile(`\((\d+)\)`)
	leadingCount   = regexp.MustCompile(`^\(\d+\)\s*`)
)

// labelFor returns the label text for a drawing stem: the stem without the
// leading "(N)" quantity of classified files.
func labelFor(stem string) string {
	if label := leadingCount.ReplaceAllString(stem, ""); label != "" {
		return label
	}
	return stem
}

// Quantity returns the count encoded as "(N)" in a classified file name, or 1.
func Quantity(name string) int {
	if m := quantityPrefix.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 1
}

// Annotation reports one AnnotateFile call.
type Annotation struct {
	Output string
	// Dropped counts source entity types the written copy does not carry.
	Dropped map[string]int
}

// AnnotateFile labels a single drawing with its part name above the extents
// of its layer 0 entities and writes outDir/processed_<name>.
func (c *Consolidator) AnnotateFile(src, outDir string) (Annotation, error) {
	doc, err := dxf.ReadFile(src)
	if err != nil {
		return Annotation{}, err
	}
	ents := doc.EntitiesOnLayer(dxf.LayerZero)
	if len(ents) == 0 {
		return Annotation{}, fmt.Errorf("%w: %s", ErrNoLayerZero, filepath.Base(src))
	}
	ext := dxf.Extent(doc, ents)
	if !ext.HasData() {
		return Annotation{}, fmt.Errorf("%w: %s", ErrNoLayerZero, filepath.Base(src))
	}

	c.label(doc, labelFor(match.Stem(src)), ext.Min().X, ext.Max().Y)
	doc.ZoomExtents()
	if doc.Version >= "AC1021" || doc.Codepage == "" || !doc.Encodable(doc.Codepage) {
		doc.Codepage = c.opts.Codepage
	}
	c.checkEncodable(doc, src)

	a := Annotation{
		Output:  filepath.Join(outDir, AnnotatedPrefix+filepath.Base(src)),
		Dropped: doc.Skipped,
	}
	if err := doc.WriteFile(a.Output); err != nil {
		return Annotation{}, fmt.Errorf("write annotated drawing: %w", err)
	}
	if n := countDropped(a.Dropped); n > 0 {
		c.logger.Warn("unsupported entities dropped",
			zap.String("file", src),
			zap.Int("count", n),
			zap.String("types", FormatDropped(a.Dropped)))
	}
	c.logger.Debug("annotated drawing", zap.String("file", src), zap.String("output", a.Output))
	return a, nil
}

func (c *Consolidator) checkEncodable(doc *dxf.Document, src string) {
	if !doc.Encodable(doc.Codepage) {
		c.logger.Warn("text not representable in codepage, characters will be replaced",
			zap.String("file", src), zap.String("codepage", doc.Codepage))
	}
}

func countDropped(m map[string]int) int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

// FormatDropped renders dropped entity counts as "HATCH x2, WIPEOUT x1".
func FormatDropped(m map[string]int) string {
	kinds := make([]string, 0, len(m))
	for k, n := range m {
		if n > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s x%d", k, m[k])
	}
	return strings.Join(parts, ", ")
}
