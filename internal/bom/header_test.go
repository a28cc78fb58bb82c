package bom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateHeader_KeywordRowBeatsNoise(t *testing.T) {
	grid := Grid{
		{},
		{"1", "2", "3", "4"},
		{"", "2024-01", "3.5", "-"},
		{"图号", "材料", "数量", "备注"},
		{"P001", "铝板 T=2.0", "3", ""},
	}

	h := LocateHeader(grid, 0)

	assert.Equal(t, 3, h.RowIndex)
	assert.Equal(t, []string{"图号", "材料", "数量", "备注"}, h.Columns)
	assert.True(t, h.Found())
}

func TestLocateHeader_TieKeepsEarlierRow(t *testing.T) {
	grid := Grid{
		{"only", "two"},
		{"alpha", "beta", "gamma"},
		{"delta", "epsilon", "zeta"},
	}

	h := LocateHeader(grid, DefaultHeaderRows)

	assert.Equal(t, 1, h.RowIndex)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, h.Columns)
}

func TestLocateHeader_RespectsMaxRows(t *testing.T) {
	grid := Grid{
		{"", ""},
		{"", ""},
		{"图号", "材料", "数量"},
	}

	h := LocateHeader(grid, 2)

	assert.Equal(t, 0, h.RowIndex)
	assert.False(t, h.Found())
}

func TestLocateHeader_NoQualifyingRowFallsBackToRowZero(t *testing.T) {
	grid := Grid{
		{"10", "20"},
		{"1.5", "2.5", "3.5"},
	}

	h := LocateHeader(grid, 0)

	assert.Equal(t, 0, h.RowIndex)
	assert.Equal(t, []string{"10", "20"}, h.Columns)
}

func TestLocateHeader_DropsPlaceholdersAndDedupes(t *testing.T) {
	grid := Grid{
		{"零件", "", "材料", "零件", "数量"},
		{"P1", "x", "铝板 T=1", "y", "2", "extra"},
	}

	h := LocateHeader(grid, 0)

	require.Equal(t, 0, h.RowIndex)
	assert.Equal(t, []string{"零件", "材料", "零件.1", "数量"}, h.Columns)
}

func TestIsNumericLiteral(t *testing.T) {
	cases := map[string]bool{
		"12":      true,
		"1.5":     true,
		"-3":      true,
		"2024-01": true,
		"-":       false,
		".":       false,
		"A12":     false,
		"12mm":    false,
		"数量":      false,
	}
	for in, want := range cases {
		assert.Equal(t, want, isNumericLiteral(in), "input %q", in)
	}
}

func TestScoreRow(t *testing.T) {
	score, valid := scoreRow([]string{"图号", "12", " ", "note"})
	assert.Equal(t, 2, valid)
	assert.Equal(t, 2+keywordBonus, score)
}
