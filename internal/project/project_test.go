package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutEnsureAndReset(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	assert.Equal(t, filepath.Join(root, "result", "1_classified"), l.Classified)
	assert.Equal(t, filepath.Join(root, "result", "2_annotated"), l.Annotated)
	assert.Equal(t, filepath.Join(root, "result", "3_merged"), l.Merged)

	require.NoError(t, l.Ensure())
	for _, dir := range []string{l.Classified, l.Annotated, l.Merged} {
		assert.DirExists(t, dir)
	}

	stale := filepath.Join(l.Annotated, "old", "processed_x.dxf")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, nil, 0o644))
	require.NoError(t, l.ResetAnnotated())
	assert.NoFileExists(t, stale)
	assert.DirExists(t, l.Annotated)
}

func TestFindBOMFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.xls", "a.xlsx", "~$a.xlsx", "notes.txt", "c.XLSX"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.xlsx"), 0o755))

	got, err := FindBOMFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.xlsx"),
		filepath.Join(dir, "b.xls"),
		filepath.Join(dir, "c.XLSX"),
	}, got)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"铝板":          "铝板",
		"a/b\\c:d":    "a_b_c_d",
		`q?"<>|*`:     "q______",
		" 2.0 ":       "2.0",
		"...":         "_",
		"不锈钢板 (304)": "不锈钢板 (304)",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}
