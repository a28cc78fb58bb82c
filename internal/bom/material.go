package bom

import (
	"regexp"
	"strings"
)

// MissingSentinel is the text spreadsheet exports use for an empty cell.
const MissingSentinel = "nan"

// materialPattern matches "<name>板 T=<thickness>", e.g. "铝板 T=2.0".
var materialPattern = regexp.MustCompile(`(.+?板)\s*T=(\d+(?:\.\d+)?)`)

// MaterialSpec is a parsed material bucket. Thickness keeps the source text
// so "2.0" and "2" remain distinct buckets.
type MaterialSpec struct {
	Material  string
	Thickness string
}

// String renders the spec in the form ParseMaterial accepts.
func (m MaterialSpec) String() string {
	return m.Material + " T=" + m.Thickness
}

// IsMissing reports whether a cell is empty or holds the missing sentinel.
func IsMissing(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, MissingSentinel)
}

// ParseMaterial extracts material and thickness from text. The second result
// is false when the text is empty or does not follow the pattern.
func ParseMaterial(text string) (MaterialSpec, bool) {
	text = strings.TrimSpace(text)
	if IsMissing(text) {
		return MaterialSpec{}, false
	}
	m := materialPattern.FindStringSubmatch(text)
	if m == nil {
		return MaterialSpec{}, false
	}
	return MaterialSpec{
		Material:  strings.TrimSpace(m[1]),
		Thickness: strings.TrimSpace(m[2]),
	}, true
}
