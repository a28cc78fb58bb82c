package dxf

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// Standard resource names every document provides.
const (
	LayerZero          = "0"
	LayerDefpoints     = "DEFPOINTS"
	LinetypeByLayer    = "BYLAYER"
	LinetypeByBlock    = "BYBLOCK"
	LinetypeContinuous = "CONTINUOUS"
	StyleStandard      = "STANDARD"

	// ColorByLayer marks an entity that inherits its layer color.
	ColorByLayer = 0
	// ColorByBlock marks an entity that inherits the color of its INSERT.
	ColorByBlock = -1
	// ColorWhite is the default layer color.
	ColorWhite = 7
	// ColorYellow is ACI 2.
	ColorYellow = 2
)

// Table is an insertion-ordered symbol table with case-insensitive names.
type Table[T any] struct {
	order []string
	items map[string]T
}

func newTable[T any]() *Table[T] {
	return &Table[T]{items: make(map[string]T)}
}

func tableKey(name string) string { return strings.ToUpper(strings.TrimSpace(name)) }

// Get returns the entry called name.
func (t *Table[T]) Get(name string) (T, bool) {
	v, ok := t.items[tableKey(name)]
	return v, ok
}

// Has reports whether name is defined.
func (t *Table[T]) Has(name string) bool {
	_, ok := t.items[tableKey(name)]
	return ok
}

// Put adds or replaces the entry called name. Replacing keeps the original position.
func (t *Table[T]) Put(name string, v T) {
	key := tableKey(name)
	if _, ok := t.items[key]; !ok {
		t.order = append(t.order, key)
	}
	t.items[key] = v
}

// Len returns the number of entries.
func (t *Table[T]) Len() int { return len(t.order) }

// All returns the entries in insertion order.
func (t *Table[T]) All() []T {
	out := make([]T, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.items[k])
	}
	return out
}

// Layer is a LAYER table entry.
type Layer struct {
	Name     string
	Color    int
	Linetype string
	Off      bool
	Frozen   bool
}

// Linetype is an LTYPE table entry.
type Linetype struct {
	Name        string
	Description string
	Length      float64
	Pattern     []float64
}

// Style is a text STYLE table entry.
type Style struct {
	Name    string
	Font    string
	BigFont string
	Height  float64
	Width   float64
}

// Block is a named, reusable group of entities.
type Block struct {
	Name     string
	Base     r2.Vec
	Entities []Entity
}

// Viewport is the active model-space view.
type Viewport struct {
	Center r2.Vec
	Height float64
	Aspect float64
}

// Document is an in-memory drawing.
type Document struct {
	Version   string
	Codepage  string
	Layers    *Table[*Layer]
	Linetypes *Table[*Linetype]
	Styles    *Table[*Style]
	Blocks    *Table[*Block]
	Model     []Entity
	View      *Viewport
	// Skipped counts entity types dropped while reading.
	Skipped map[string]int

	extMin, extMax r2.Vec
}

// New returns an empty document with the standard layer, linetypes and text style.
func New() *Document {
	doc := &Document{
		Version:   "AC1009",
		Codepage:  "ANSI_1252",
		Layers:    newTable[*Layer](),
		Linetypes: newTable[*Linetype](),
		Styles:    newTable[*Style](),
		Blocks:    newTable[*Block](),
	}
	doc.Linetypes.Put(LinetypeByBlock, &Linetype{Name: "ByBlock"})
	doc.Linetypes.Put(LinetypeByLayer, &Linetype{Name: "ByLayer"})
	doc.Linetypes.Put(LinetypeContinuous, &Linetype{Name: "Continuous", Description: "Solid line"})
	doc.Layers.Put(LayerZero, &Layer{Name: LayerZero, Color: ColorWhite, Linetype: "Continuous"})
	doc.Styles.Put(StyleStandard, &Style{Name: "Standard", Font: "txt", Width: 1})
	return doc
}

// AddLayer defines a layer unless it already exists and returns the entry.
func (d *Document) AddLayer(name string, color int) *Layer {
	if l, ok := d.Layers.Get(name); ok {
		return l
	}
	if color == 0 {
		color = ColorWhite
	}
	l := &Layer{Name: name, Color: color, Linetype: "Continuous"}
	d.Layers.Put(name, l)
	return l
}

// NewBlock creates an empty block definition.
func (d *Document) NewBlock(name string, base r2.Vec) (*Block, error) {
	if d.Blocks.Has(name) {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateBlock, name)
	}
	b := &Block{Name: name, Base: base}
	d.Blocks.Put(name, b)
	return b, nil
}

// AddBlockRef appends an INSERT of block name to model space.
func (d *Document) AddBlockRef(name string, at r2.Vec) (*Insert, error) {
	if !d.Blocks.Has(name) {
		return nil, fmt.Errorf("%w: %q", ErrUndefinedBlock, name)
	}
	ins := &Insert{
		Attrs: Attrs{Layer: LayerZero, Color: ColorByLayer},
		Block: name,
		At:    at,
		Scale: r2.Vec{X: 1, Y: 1},
	}
	d.Model = append(d.Model, ins)
	return ins, nil
}

// AddText appends a TEXT entity to model space.
func (d *Document) AddText(value string, at r2.Vec, height float64, layer string, color int) *Text {
	if layer == "" {
		layer = LayerZero
	}
	d.AddLayer(layer, 0)
	txt := &Text{
		Attrs:  Attrs{Layer: layer, Color: color},
		Value:  value,
		Insert: at,
		Height: height,
	}
	d.Model = append(d.Model, txt)
	return txt
}

// HideLayersExcept turns off every layer whose name is not in visible.
func (d *Document) HideLayersExcept(visible ...string) {
	keep := make(map[string]bool, len(visible))
	for _, name := range visible {
		keep[tableKey(name)] = true
	}
	for _, l := range d.Layers.All() {
		if !keep[tableKey(l.Name)] {
			l.Off = true
		}
	}
}

// ZoomExtents fits the active view to the model-space extents and records
// them in the header. It reports false when model space is empty.
func (d *Document) ZoomExtents() bool {
	ext := Extent(d, d.Model)
	if !ext.HasData() {
		return false
	}
	d.extMin, d.extMax = ext.Min(), ext.Max()
	w, h := ext.Width(), ext.Height()
	aspect := 1.0
	if h > 0 && w > 0 {
		aspect = w / h
	}
	height := h
	if height <= 0 {
		height = w
	}
	d.View = &Viewport{
		Center: r2.Vec{X: (d.extMin.X + d.extMax.X) / 2, Y: (d.extMin.Y + d.extMax.Y) / 2},
		Height: height * 1.05,
		Aspect: aspect,
	}
	return true
}

// EntitiesOnLayer returns the model-space entities on layer.
func (d *Document) EntitiesOnLayer(layer string) []Entity {
	var out []Entity
	for _, e := range d.Model {
		if tableKey(e.Common().Layer) == tableKey(layer) {
			out = append(out, e)
		}
	}
	return out
}
