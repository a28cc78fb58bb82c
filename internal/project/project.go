// Package project owns the on-disk layout of a working directory: the
// parts-list workbooks at its root and the result tree the passes write.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bomsort/internal/bom"
)

const (
	ResultDir     = "result"
	ClassifiedDir = "1_classified"
	AnnotatedDir  = "2_annotated"
	MergedDir     = "3_merged"
)

// Layout holds the absolute paths of a project's result tree.
type Layout struct {
	Root       string
	Result     string
	Classified string
	Annotated  string
	Merged     string
}

// New returns the layout rooted at root without touching the filesystem.
func New(root string) Layout {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	result := filepath.Join(root, ResultDir)
	return Layout{
		Root:       root,
		Result:     result,
		Classified: filepath.Join(result, ClassifiedDir),
		Annotated:  filepath.Join(result, AnnotatedDir),
		Merged:     filepath.Join(result, MergedDir),
	}
}

// Ensure creates the result directories.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Classified, l.Annotated, l.Merged} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// ResetAnnotated empties the annotation directory.
func (l Layout) ResetAnnotated() error {
	if err := os.RemoveAll(l.Annotated); err != nil {
		return fmt.Errorf("clear %s: %w", l.Annotated, err)
	}
	return os.MkdirAll(l.Annotated, 0o755)
}

// FindBOMFiles lists the workbooks directly inside dir, sorted by name.
// Office lock files (~$name.xlsx) are ignored.
func FindBOMFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		if bom.IsWorkbook(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

var filenameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")

// SanitizeFilename replaces characters that are illegal in file names on
// common filesystems. Leading and trailing spaces and dots are dropped.
func SanitizeFilename(s string) string {
	s = strings.Trim(filenameReplacer.Replace(s), " .")
	if s == "" {
		return "_"
	}
	return s
}
