package bom

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultHeaderRows is the number of leading rows inspected when looking for a header.
const DefaultHeaderRows = 20

const (
	minHeaderCells = 3
	keywordBonus   = 5
)

// headerKeywords are fragments of typical BOM column names. A cell containing
// any of them is strong evidence for a header row.
var headerKeywords = []string{
	"名称", "材料", "材质", "厚度", "数量", "零件", "图号",
	"part", "material", "thickness", "qty", "quantity", "drawing",
}

// HeaderResult is the located header row and its usable column labels.
type HeaderResult struct {
	RowIndex int
	Columns  []string
}

// Found reports whether the result carries at least one column.
func (h HeaderResult) Found() bool { return len(h.Columns) > 0 }

// column is a header label together with its grid position.
type column struct {
	name        string
	index       int
	placeholder bool
}

// LocateHeader returns the best scoring header row among the first maxRows
// rows of grid. Only rows with at least three non-numeric cells qualify and
// ties keep the earlier row; when nothing qualifies row 0 is used. An empty
// Columns slice means no header could be found.
func LocateHeader(grid Grid, maxRows int) HeaderResult {
	if maxRows <= 0 {
		maxRows = DefaultHeaderRows
	}

	bestRow, bestScore := 0, 0
	for i := 0; i < maxRows && i < len(grid); i++ {
		score, validCols := scoreRow(grid[i])
		if score > bestScore && validCols >= minHeaderCells {
			bestRow, bestScore = i, score
		}
	}

	var names []string
	for _, c := range headerColumns(grid, bestRow) {
		if !c.placeholder {
			names = append(names, c.name)
		}
	}
	return HeaderResult{RowIndex: bestRow, Columns: names}
}

func scoreRow(row []string) (score, validCols int) {
	for _, raw := range row {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if !isNumericLiteral(val) {
			score++
			validCols++
		}
		lower := strings.ToLower(val)
		for _, kw := range headerKeywords {
			if strings.Contains(lower, kw) {
				score += keywordBonus
				break
			}
		}
	}
	return score, validCols
}

// isNumericLiteral reports whether s consists of digits once every '.' and
// '-' is removed. "1.5", "-3" and "2024-01" are numeric, "-" alone is not.
func isNumericLiteral(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r == '.' || r == '-':
		case unicode.IsDigit(r):
			digits++
		default:
			return false
		}
	}
	return digits > 0
}

// headerColumns re-reads row as a header, using the following row as a
// schema probe for the table width. Empty header cells get a placeholder
// label and duplicate labels get a ".N" suffix, so the result is unique.
func headerColumns(grid Grid, row int) []column {
	width := grid.Width(row)
	if w := grid.Width(row + 1); w > width {
		width = w
	}

	seen := make(map[string]int, width)
	cols := make([]column, 0, width)
	for i := 0; i < width; i++ {
		name := grid.Cell(row, i)
		if name == "" {
			cols = append(cols, column{name: fmt.Sprintf("Unnamed: %d", i), index: i, placeholder: true})
			continue
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols
}
