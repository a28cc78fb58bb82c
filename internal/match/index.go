// Package match indexes a pool of drawing files by stem and maps part
// identifiers onto it.
package match

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Group is every file sharing one stem, in discovery order.
type Group struct {
	Stem  string
	Paths []string
}

// Index is a multi-valued map from file stem to paths that remembers the
// order in which stems were first discovered. Stems are case-sensitive.
type Index struct {
	order  []string
	groups map[string]*Group
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{groups: make(map[string]*Group)}
}

// Stem returns the file name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Add records path under its stem.
func (idx *Index) Add(path string) {
	stem := Stem(path)
	g, ok := idx.groups[stem]
	if !ok {
		g = &Group{Stem: stem}
		idx.groups[stem] = g
		idx.order = append(idx.order, stem)
	}
	g.Paths = append(g.Paths, path)
}

// Len returns the number of distinct stems.
func (idx *Index) Len() int { return len(idx.order) }

// Files returns the total number of indexed paths.
func (idx *Index) Files() int {
	n := 0
	for _, g := range idx.groups {
		n += len(g.Paths)
	}
	return n
}

// Lookup returns the group for an exact stem.
func (idx *Index) Lookup(stem string) (Group, bool) {
	g, ok := idx.groups[stem]
	if !ok {
		return Group{}, false
	}
	return *g, true
}

// Each calls fn for every group in discovery order until fn returns false.
func (idx *Index) Each(fn func(Group) bool) {
	for _, stem := range idx.order {
		if !fn(*idx.groups[stem]) {
			return
		}
	}
}

// ScanOptions controls which files Scan indexes.
type ScanOptions struct {
	Recursive bool
	// Extensions filters by lower-case extension including the dot. Empty
	// means every regular file.
	Extensions []string
	// Exclude lists directories that are never descended into.
	Exclude []string
}

// Scan indexes the files under root. Files are discovered in lexical walk
// order, which fixes the iteration order used by Match.
func Scan(root string, opts ScanOptions) (*Index, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan source pool: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan source pool: %s is not a directory", root)
	}

	exclude := make(map[string]bool, len(opts.Exclude))
	for _, dir := range opts.Exclude {
		if abs, err := filepath.Abs(dir); err == nil {
			exclude[abs] = true
		}
	}

	idx := NewIndex()
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !opts.Recursive {
				return filepath.SkipDir
			}
			if abs, err := filepath.Abs(path); err == nil && exclude[abs] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !hasExtension(path, opts.Extensions) {
			return nil
		}
		idx.Add(path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan source pool: %w", err)
	}
	return idx, nil
}

func hasExtension(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
