package dxf

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// maxInsertDepth bounds block nesting when walking INSERT references, so a
// self-referencing block cannot recurse forever.
const maxInsertDepth = 16

// Extents is an axis-aligned bounding box that may be empty.
type Extents struct {
	box r2.Box
	ok  bool
}

// Add grows the box to contain p.
func (e *Extents) Add(p r2.Vec) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return
	}
	if !e.ok {
		e.box = r2.Box{Min: p, Max: p}
		e.ok = true
		return
	}
	e.box.Min.X = math.Min(e.box.Min.X, p.X)
	e.box.Min.Y = math.Min(e.box.Min.Y, p.Y)
	e.box.Max.X = math.Max(e.box.Max.X, p.X)
	e.box.Max.Y = math.Max(e.box.Max.Y, p.Y)
}

// Union grows the box to contain o.
func (e *Extents) Union(o Extents) {
	if !o.ok {
		return
	}
	e.Add(o.box.Min)
	e.Add(o.box.Max)
}

// HasData reports whether anything was added.
func (e Extents) HasData() bool { return e.ok }

func (e Extents) Min() r2.Vec { return e.box.Min }

func (e Extents) Max() r2.Vec { return e.box.Max }

func (e Extents) Width() float64 {
	if !e.ok {
		return 0
	}
	return e.box.Max.X - e.box.Min.X
}

func (e Extents) Height() float64 {
	if !e.ok {
		return 0
	}
	return e.box.Max.Y - e.box.Min.Y
}

// Extent returns the bounding box of ents. INSERT entities are expanded
// through doc's block definitions; doc may be nil.
func Extent(doc *Document, ents []Entity) Extents {
	b := &boundsBuilder{doc: doc}
	for _, e := range ents {
		e.bounds(b, identity)
	}
	return b.ext
}

// BlockExtent returns the bounding box of a block's entities in block coordinates.
func (d *Document) BlockExtent(name string) (Extents, bool) {
	blk, ok := d.Blocks.Get(name)
	if !ok {
		return Extents{}, false
	}
	return Extent(d, blk.Entities), true
}

type boundsBuilder struct {
	doc   *Document
	depth int
	ext   Extents
}

func (b *boundsBuilder) add(p r2.Vec) { b.ext.Add(p) }

// arc adds the end points of a circular arc and every axis extreme it passes,
// all mapped through m.
func (b *boundsBuilder) arc(m affine, center r2.Vec, r, start, end float64) {
	start = normDeg(start)
	end = normDeg(end)
	if end <= start {
		end += 360
	}
	at := func(deg float64) r2.Vec {
		rad := deg * math.Pi / 180
		return r2.Vec{X: center.X + r*math.Cos(rad), Y: center.Y + r*math.Sin(rad)}
	}
	b.add(m.apply(at(start)))
	b.add(m.apply(at(end)))
	for q := math.Ceil(start/90) * 90; q < end; q += 90 {
		b.add(m.apply(at(q)))
	}
}

// bulge adds the arc segment from p1 to p2 with the given bulge.
func (b *boundsBuilder) bulge(m affine, p1, p2 r2.Vec, bulge float64) {
	dx, dy := p2.X-p1.X, p2.Y-p1.Y
	chord := math.Hypot(dx, dy)
	if chord == 0 {
		return
	}
	offset := chord * (1 - bulge*bulge) / (4 * bulge)
	mid := r2.Vec{X: (p1.X + p2.X) / 2, Y: (p1.Y + p2.Y) / 2}
	center := r2.Vec{X: mid.X - dy/chord*offset, Y: mid.Y + dx/chord*offset}
	r := chord * (1 + bulge*bulge) / (4 * math.Abs(bulge))
	a1 := math.Atan2(p1.Y-center.Y, p1.X-center.X) * 180 / math.Pi
	a2 := math.Atan2(p2.Y-center.Y, p2.X-center.X) * 180 / math.Pi
	if bulge > 0 {
		b.arc(m, center, r, a1, a2)
	} else {
		b.arc(m, center, r, a2, a1)
	}
}

func normDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// affine is a 2-D affine map: p' = [a c; b d] p + t.
type affine struct {
	a, b, c, d float64
	tx, ty     float64
}

var identity = affine{a: 1, d: 1}

func rotation(deg float64) affine {
	if deg == 0 {
		return identity
	}
	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	return affine{a: cos, b: sin, c: -sin, d: cos}
}

func (m affine) apply(p r2.Vec) r2.Vec {
	return r2.Vec{X: m.a*p.X + m.c*p.Y + m.tx, Y: m.b*p.X + m.d*p.Y + m.ty}
}

// compose returns the map that applies inner first, then m.
func (m affine) compose(inner affine) affine {
	return affine{
		a:  m.a*inner.a + m.c*inner.b,
		b:  m.b*inner.a + m.d*inner.b,
		c:  m.a*inner.c + m.c*inner.d,
		d:  m.b*inner.c + m.d*inner.d,
		tx: m.a*inner.tx + m.c*inner.ty + m.tx,
		ty: m.b*inner.tx + m.d*inner.ty + m.ty,
	}
}
