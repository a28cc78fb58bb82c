package dxf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ImportOptions tunes how resources are reconciled by Import.
type ImportOptions struct {
	// MergeLayers are layers that always map onto the destination layer of
	// the same name, even when their properties differ. Layer 0 and
	// DEFPOINTS always merge.
	MergeLayers []string
}

// Import copies ents, which belong to src, into dst's resource namespace and
// returns the copies. Every layer, linetype, text style and block the
// entities reference is defined in dst: an identical existing definition is
// reused, a conflicting one causes the incoming definition to be added under
// a fresh name. The returned entities are not added to dst.Model. src is
// never modified.
func Import(src *Document, ents []Entity, dst *Document, opts ImportOptions) ([]Entity, error) {
	im := &importer{
		src:     src,
		dst:     dst,
		protect: map[string]bool{LayerZero: true, LayerDefpoints: true},
		layers:  map[string]string{},
		ltypes:  map[string]string{},
		styles:  map[string]string{},
		blocks:  map[string]string{},
		active:  map[string]bool{},
	}
	for _, name := range opts.MergeLayers {
		im.protect[tableKey(name)] = true
	}
	return im.entities(ents)
}

type importer struct {
	src, dst *Document
	protect  map[string]bool

	layers, ltypes, styles, blocks map[string]string
	active                         map[string]bool
}

func (im *importer) entities(ents []Entity) ([]Entity, error) {
	out := make([]Entity, 0, len(ents))
	for _, e := range ents {
		c, err := im.entity(e)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (im *importer) entity(e Entity) (Entity, error) {
	c := e.Clone()
	a := c.Common()
	if a.Layer == "" {
		a.Layer = LayerZero
	}
	a.Layer = im.layer(a.Layer)
	if a.Linetype != "" {
		a.Linetype = im.linetype(a.Linetype)
	}
	switch v := c.(type) {
	case *Text:
		if v.Style != "" {
			v.Style = im.style(v.Style)
		}
	case *Insert:
		name, err := im.block(v.Block)
		if err != nil {
			return nil, err
		}
		v.Block = name
	case *Raw:
		if ref, ok := v.blockName(); ok {
			name, err := im.block(ref)
			if err != nil {
				return nil, err
			}
			v.setBlockName(name)
		}
		for i, t := range v.tags {
			if t.code == 7 {
				v.tags[i].value = im.style(t.text())
			}
		}
	}
	return c, nil
}

func (im *importer) layer(name string) string {
	key := tableKey(name)
	if mapped, ok := im.layers[key]; ok {
		return mapped
	}
	in, ok := im.src.Layers.Get(name)
	if !ok {
		in = &Layer{Name: name, Color: ColorWhite, Linetype: "Continuous"}
	}
	cp := *in
	if cp.Linetype != "" {
		cp.Linetype = im.linetype(cp.Linetype)
	}
	var mapped string
	if im.protect[key] {
		if existing, ok := im.dst.Layers.Get(name); ok {
			mapped = existing.Name
		} else {
			im.dst.Layers.Put(name, &cp)
			mapped = cp.Name
		}
	} else {
		mapped = resolve(im.dst.Layers, name, &cp, sameLayer, func(l *Layer, n string) { l.Name = n })
	}
	im.layers[key] = mapped
	return mapped
}

func (im *importer) linetype(name string) string {
	key := tableKey(name)
	if key == LinetypeByLayer || key == LinetypeByBlock || key == LinetypeContinuous {
		if !im.dst.Linetypes.Has(name) {
			im.dst.Linetypes.Put(name, &Linetype{Name: name})
		}
		return name
	}
	if mapped, ok := im.ltypes[key]; ok {
		return mapped
	}
	in, ok := im.src.Linetypes.Get(name)
	if !ok {
		in = &Linetype{Name: name}
	}
	cp := *in
	cp.Pattern = append([]float64(nil), in.Pattern...)
	mapped := resolve(im.dst.Linetypes, name, &cp, sameLinetype, func(l *Linetype, n string) { l.Name = n })
	im.ltypes[key] = mapped
	return mapped
}

func (im *importer) style(name string) string {
	key := tableKey(name)
	if key == StyleStandard {
		if !im.dst.Styles.Has(name) {
			im.dst.Styles.Put(name, &Style{Name: name, Font: "txt", Width: 1})
		}
		return name
	}
	if mapped, ok := im.styles[key]; ok {
		return mapped
	}
	in, ok := im.src.Styles.Get(name)
	if !ok {
		in = &Style{Name: name, Font: "txt", Width: 1}
	}
	cp := *in
	mapped := resolve(im.dst.Styles, name, &cp, sameStyle, func(s *Style, n string) { s.Name = n })
	im.styles[key] = mapped
	return mapped
}

func (im *importer) block(name string) (string, error) {
	key := tableKey(name)
	if mapped, ok := im.blocks[key]; ok {
		return mapped, nil
	}
	in, ok := im.src.Blocks.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUndefinedBlock, name)
	}
	if im.active[key] {
		return "", fmt.Errorf("%w: block %q references itself", ErrMalformed, name)
	}
	im.active[key] = true
	ents, err := im.entities(in.Entities)
	delete(im.active, key)
	if err != nil {
		return "", err
	}
	cp := &Block{Name: in.Name, Base: in.Base, Entities: ents}
	mapped := resolve(im.dst.Blocks, in.Name, cp, sameBlock, func(b *Block, n string) { b.Name = n })
	im.blocks[key] = mapped
	return mapped, nil
}

// resolve finds or creates the destination entry for an incoming definition
// and returns its name. Candidates are tried in order: name, then fresh
// names from renamed until one is free or holds an identical definition.
func resolve[T any](table *Table[T], name string, in T, same func(a, b T) bool, rename func(T, string)) string {
	for n := 0; ; n++ {
		candidate := renamed(name, n)
		existing, ok := table.Get(candidate)
		if !ok {
			rename(in, candidate)
			table.Put(candidate, in)
			return candidate
		}
		if same(existing, in) {
			return candidate
		}
	}
}

// renamed returns the n-th alternative for name: name itself for n == 0,
// name_n otherwise. Anonymous block names (*D1, *U4) keep their prefix and
// get a new number instead.
func renamed(name string, n int) string {
	if n == 0 {
		return name
	}
	if strings.HasPrefix(name, "*") {
		prefix := strings.TrimRightFunc(name, unicode.IsDigit)
		return prefix + strconv.Itoa(n)
	}
	return name + "_" + strconv.Itoa(n)
}

func sameLayer(a, b *Layer) bool {
	return a.Color == b.Color && tableKey(a.Linetype) == tableKey(b.Linetype) &&
		a.Off == b.Off && a.Frozen == b.Frozen
}

func sameLinetype(a, b *Linetype) bool {
	if a.Length != b.Length || len(a.Pattern) != len(b.Pattern) {
		return false
	}
	for i := range a.Pattern {
		if a.Pattern[i] != b.Pattern[i] {
			return false
		}
	}
	return true
}

func sameStyle(a, b *Style) bool {
	return strings.EqualFold(a.Font, b.Font) && strings.EqualFold(a.BigFont, b.BigFont) &&
		a.Height == b.Height && a.Width == b.Width
}

func sameBlock(a, b *Block) bool {
	return a.Base == b.Base && bytes.Equal(encodeEntities(a.Entities), encodeEntities(b.Entities))
}

func encodeEntities(ents []Entity) []byte {
	var buf bytes.Buffer
	tw := &tagWriter{w: &buf}
	for _, e := range ents {
		e.encode(tw)
	}
	return buf.Bytes()
}
