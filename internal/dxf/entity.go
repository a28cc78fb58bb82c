package dxf

import (
	"math"
	"strings"
	"unicode/utf8"

	"gonum.org/v1/gonum/spatial/r2"
)

// Attrs are the properties shared by every entity.
type Attrs struct {
	Layer    string
	Linetype string
	// Color is an ACI index; ColorByLayer and ColorByBlock are the logical values.
	Color int
}

// Common returns the shared properties for in-place edits.
func (a *Attrs) Common() *Attrs { return a }

func (a *Attrs) encode(tw *tagWriter, kind string) {
	tw.str(0, kind)
	tw.handle()
	layer := a.Layer
	if layer == "" {
		layer = LayerZero
	}
	tw.str(8, layer)
	if a.Linetype != "" && tableKey(a.Linetype) != LinetypeByLayer {
		tw.str(6, a.Linetype)
	}
	switch {
	case a.Color == ColorByBlock:
		tw.integer(62, 0)
	case a.Color > 0 && a.Color < 256:
		tw.integer(62, a.Color)
	}
}

// Entity is a drawable object of a document or block.
type Entity interface {
	Type() string
	Common() *Attrs
	Clone() Entity
	bounds(b *boundsBuilder, m affine)
	encode(tw *tagWriter)
}

// Line is a LINE entity.
type Line struct {
	Attrs
	Start, End r2.Vec
}

func (e *Line) Type() string { return "LINE" }

func (e *Line) Clone() Entity { c := *e; return &c }

func (e *Line) bounds(b *boundsBuilder, m affine) {
	b.add(m.apply(e.Start))
	b.add(m.apply(e.End))
}

func (e *Line) encode(tw *tagWriter) {
	e.Attrs.encode(tw, "LINE")
	tw.point(10, e.Start.X, e.Start.Y)
	tw.point(11, e.End.X, e.End.Y)
}

// Point is a POINT entity.
type Point struct {
	Attrs
	At r2.Vec
}

func (e *Point) Type() string { return "POINT" }

func (e *Point) Clone() Entity { c := *e; return &c }

func (e *Point) bounds(b *boundsBuilder, m affine) { b.add(m.apply(e.At)) }

func (e *Point) encode(tw *tagWriter) {
	e.Attrs.encode(tw, "POINT")
	tw.point(10, e.At.X, e.At.Y)
}

// Circle is a CIRCLE entity.
type Circle struct {
	Attrs
	Center r2.Vec
	Radius float64
}

func (e *Circle) Type() string { return "CIRCLE" }

func (e *Circle) Clone() Entity { c := *e; return &c }

func (e *Circle) bounds(b *boundsBuilder, m affine) {
	b.arc(m, e.Center, e.Radius, 0, 360)
}

func (e *Circle) encode(tw *tagWriter) {
	e.Attrs.encode(tw, "CIRCLE")
	tw.point(10, e.Center.X, e.Center.Y)
	tw.num(40, e.Radius)
}

// Arc is an ARC entity; angles are in degrees, counter-clockwise.
type Arc struct {
	Attrs
	Center     r2.Vec
	Radius     float64
	StartAngle float64
	EndAngle   float64
}

func (e *Arc) Type() string { return "ARC" }

func (e *Arc) Clone() Entity { c := *e; return &c }

func (e *Arc) bounds(b *boundsBuilder, m affine) {
	b.arc(m, e.Center, e.Radius, e.StartAngle, e.EndAngle)
}

func (e *Arc) encode(tw *tagWriter) {
	e.Attrs.encode(tw, "ARC")
	tw.point(10, e.Center.X, e.Center.Y)
	tw.num(40, e.Radius)
	tw.num(50, e.StartAngle)
	tw.num(51, e.EndAngle)
}

// Vertex is a polyline vertex; Bulge is the tangent of a quarter of the
// included angle of the segment starting here.
type Vertex struct {
	Pos   r2.Vec
	Bulge float64
}

// Polyline is a 2-D LWPOLYLINE or POLYLINE.
type Polyline struct {
	Attrs
	Vertices []Vertex
	Closed   bool
}

func (e *Polyline) Type() string { return "POLYLINE" }

func (e *Polyline) Clone() Entity {
	c := *e
	c.Vertices = append([]Vertex(nil), e.Vertices...)
	return &c
}

func (e *Polyline) bounds(b *boundsBuilder, m affine) {
	n := len(e.Vertices)
	for i, v := range e.Vertices {
		b.add(m.apply(v.Pos))
		if v.Bulge == 0 {
			continue
		}
		j := i + 1
		if j == n {
			if !e.Closed {
				continue
			}
			j = 0
		}
		b.bulge(m, v.Pos, e.Vertices[j].Pos, v.Bulge)
	}
}

func (e *Polyline) encode(tw *tagWriter) {
	e.Attrs.encode(tw, "POLYLINE")
	tw.integer(66, 1)
	tw.point(10, 0, 0)
	flags := 0
	if e.Closed {
		flags = 1
	}
	tw.integer(70, flags)
	for _, v := range e.Vertices {
		vertex := Attrs{Layer: e.Layer}
		vertex.encode(tw, "VERTEX")
		tw.point(10, v.Pos.X, v.Pos.Y)
		if v.Bulge != 0 {
			tw.num(42, v.Bulge)
		}
	}
	seqend := Attrs{Layer: e.Layer}
	seqend.encode(tw, "SEQEND")
}

// Text is a single-line TEXT entity. MTEXT is read into Text as well.
type Text struct {
	Attrs
	Value    string
	Insert   r2.Vec
	Height   float64
	Rotation float64
	Style    string
	HAlign   int
	VAlign   int
	Align    r2.Vec
}

func (e *Text) Type() string { return "TEXT" }

func (e *Text) Clone() Entity { c := *e; return &c }

// SetPlacement moves the text to p with default (left, baseline) alignment.
func (e *Text) SetPlacement(p r2.Vec) *Text {
	e.Insert = p
	e.HAlign, e.VAlign = 0, 0
	e.Align = r2.Vec{}
	return e
}

func (e *Text) bounds(b *boundsBuilder, m affine) {
	h := e.Height
	w := float64(utf8.RuneCountInString(e.Value)) * h
	anchor := e.Insert
	dx, dy := 0.0, 0.0
	if e.HAlign != 0 || e.VAlign != 0 {
		anchor = e.Align
		switch e.HAlign {
		case 1, 4:
			dx = -w / 2
		case 2:
			dx = -w
		}
		switch e.VAlign {
		case 2:
			dy = -h / 2
		case 3:
			dy = -h
		}
	}
	rot := rotation(e.Rotation)
	for _, c := range []r2.Vec{{X: dx, Y: dy}, {X: dx + w, Y: dy}, {X: dx + w, Y: dy + h}, {X: dx, Y: dy + h}} {
		p := rot.apply(c)
		b.add(m.apply(r2.Vec{X: anchor.X + p.X, Y: anchor.Y + p.Y}))
	}
}

func (e *Text) encode(tw *tagWriter) {
	e.Attrs.encode(tw, "TEXT")
	tw.point(10, e.Insert.X, e.Insert.Y)
	tw.num(40, e.Height)
	tw.str(1, e.Value)
	if e.Rotation != 0 {
		tw.num(50, e.Rotation)
	}
	if e.Style != "" {
		tw.str(7, e.Style)
	}
	if e.HAlign != 0 {
		tw.integer(72, e.HAlign)
	}
	if e.HAlign != 0 || e.VAlign != 0 {
		tw.point(11, e.Align.X, e.Align.Y)
	}
	if e.VAlign != 0 {
		tw.integer(73, e.VAlign)
	}
}

// Insert is a block reference.
type Insert struct {
	Attrs
	Block    string
	At       r2.Vec
	Scale    r2.Vec
	Rotation float64
}

func (e *Insert) Type() string { return "INSERT" }

func (e *Insert) Clone() Entity { c := *e; return &c }

// transform maps block coordinates into the coordinates of the referencing space.
func (e *Insert) transform(base r2.Vec) affine {
	sx, sy := e.Scale.X, e.Scale.Y
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	rad := e.Rotation * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	m := affine{a: cos * sx, b: sin * sx, c: -sin * sy, d: cos * sy}
	m.tx = e.At.X - (m.a*base.X + m.c*base.Y)
	m.ty = e.At.Y - (m.b*base.X + m.d*base.Y)
	return m
}

func (e *Insert) bounds(b *boundsBuilder, m affine) {
	if b.doc == nil || b.depth >= maxInsertDepth {
		b.add(m.apply(e.At))
		return
	}
	blk, ok := b.doc.Blocks.Get(e.Block)
	if !ok {
		b.add(m.apply(e.At))
		return
	}
	inner := m.compose(e.transform(blk.Base))
	b.depth++
	for _, child := range blk.Entities {
		child.bounds(b, inner)
	}
	b.depth--
}

func (e *Insert) encode(tw *tagWriter) {
	e.Attrs.encode(tw, "INSERT")
	tw.str(2, e.Block)
	tw.point(10, e.At.X, e.At.Y)
	if e.Scale.X != 0 && e.Scale.X != 1 {
		tw.num(41, e.Scale.X)
	}
	if e.Scale.Y != 0 && e.Scale.Y != 1 {
		tw.num(42, e.Scale.Y)
	}
	if e.Rotation != 0 {
		tw.num(50, e.Rotation)
	}
}

// Raw is an entity the package does not interpret. Its tags are written back
// verbatim; its extents are the hull of its (10, 20) points.
type Raw struct {
	Attrs
	Kind string
	tags []tag
}

func (e *Raw) Type() string { return e.Kind }

func (e *Raw) Clone() Entity {
	c := *e
	c.tags = append([]tag(nil), e.tags...)
	return &c
}

// blockName returns the block referenced by entities that own an anonymous
// block, such as DIMENSION.
func (e *Raw) blockName() (string, bool) {
	if e.Kind != "DIMENSION" {
		return "", false
	}
	for _, t := range e.tags {
		if t.code == 2 {
			return t.text(), true
		}
	}
	return "", false
}

func (e *Raw) setBlockName(name string) {
	for i, t := range e.tags {
		if t.code == 2 {
			e.tags[i].value = name
			return
		}
	}
}

func (e *Raw) bounds(b *boundsBuilder, m affine) {
	var xs [9]float64
	var have [9]bool
	for _, t := range e.tags {
		switch {
		case t.code >= 10 && t.code <= 18:
			xs[t.code-10], have[t.code-10] = t.float(), true
		case t.code >= 20 && t.code <= 28:
			if i := t.code - 20; have[i] {
				b.add(m.apply(r2.Vec{X: xs[i], Y: t.float()}))
				have[i] = false
			}
		}
	}
}

func (e *Raw) encode(tw *tagWriter) {
	e.Attrs.encode(tw, e.Kind)
	for _, t := range e.tags {
		tw.put(t.code, t.value)
	}
}

// keepRawCode reports whether a tag survives when an entity is kept as Raw.
// Handles, owner pointers, subclass markers and post-R12 group codes refer
// to the source document or cannot be written to an R12 file.
func keepRawCode(code int) bool {
	switch code {
	case 5, 6, 8, 62, 67, 100:
		return false
	}
	return code < 300
}

func newRaw(kind string, body []tag) *Raw {
	r := &Raw{Kind: kind, Attrs: Attrs{Color: ColorByLayer}}
	inGroup := false
	for _, t := range body {
		if t.code == 102 {
			inGroup = strings.HasPrefix(t.text(), "{")
			continue
		}
		if inGroup {
			continue
		}
		switch t.code {
		case 8:
			r.Layer = t.text()
		case 6:
			r.Linetype = t.text()
		case 62:
			r.Color = readColor(t.int())
		}
		if keepRawCode(t.code) {
			r.tags = append(r.tags, t)
		}
	}
	return r
}
