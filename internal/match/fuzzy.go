package match

import "strings"

// Match returns the first group, in discovery order, whose stem contains the
// part identifier or is contained in it. Iteration stops at the first hit: a
// short generic stem discovered early shadows a more precise later one.
func Match(part string, idx *Index) (Group, bool) {
	part = strings.TrimSpace(part)
	if part == "" || idx == nil {
		return Group{}, false
	}

	var found Group
	ok := false
	idx.Each(func(g Group) bool {
		if g.Stem == "" {
			return true
		}
		if strings.Contains(g.Stem, part) || strings.Contains(part, g.Stem) {
			found, ok = g, true
			return false
		}
		return true
	})
	return found, ok
}
