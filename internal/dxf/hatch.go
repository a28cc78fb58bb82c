package dxf

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// hatchEdge collects the values of one boundary edge until the next edge,
// path or source-object list starts.
type hatchEdge struct {
	kind       int
	p10, p11   []r2.Vec
	f40        float64
	start, end float64
	ccw        bool
}

// points samples the edge. Splines are approximated by their control points.
func (e hatchEdge) points() []r2.Vec {
	switch e.kind {
	case 1:
		if len(e.p10) > 0 && len(e.p11) > 0 {
			return []r2.Vec{e.p10[0], e.p11[0]}
		}
	case 2:
		if len(e.p10) > 0 {
			return sampleEllipse(e.p10[0], r2.Vec{X: e.f40}, 1, e.start, e.end, e.ccw)
		}
	case 3:
		if len(e.p10) > 0 && len(e.p11) > 0 {
			return sampleEllipse(e.p10[0], e.p11[0], e.f40, e.start, e.end, e.ccw)
		}
	case 4:
		return e.p10
	}
	return nil
}

// sampleEllipse returns points along an elliptical arc given in degrees.
// Clockwise edges store mirrored angles.
func sampleEllipse(center, major r2.Vec, ratio, startDeg, endDeg float64, ccw bool) []r2.Vec {
	start, end := startDeg*math.Pi/180, endDeg*math.Pi/180
	if !ccw {
		start, end = -start, -end
		start, end = end, start
	}
	for end <= start {
		end += 2 * math.Pi
	}
	minor := r2.Vec{X: -major.Y * ratio, Y: major.X * ratio}
	pts := make([]r2.Vec, 0, curveSegments+1)
	for i := 0; i <= curveSegments; i++ {
		a := start + (end-start)*float64(i)/float64(curveSegments)
		cos, sin := math.Cos(a), math.Sin(a)
		pts = append(pts, r2.Vec{
			X: center.X + major.X*cos + minor.X*sin,
			Y: center.Y + major.Y*cos + minor.Y*sin,
		})
	}
	if !ccw {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	return pts
}

// readHatch keeps the boundary loops of a HATCH as closed polylines. The
// fill pattern is not kept.
func readHatch(body []tag) []Entity {
	attrs := readAttrs(body)
	var (
		out      []Entity
		loop     *Polyline
		edge     *hatchEdge
		polyPath bool
		paths    = -1
		done     int
	)
	addPoint := func(p r2.Vec) {
		if n := len(loop.Vertices); n > 0 && loop.Vertices[n-1].Pos == p {
			return
		}
		loop.Vertices = append(loop.Vertices, Vertex{Pos: p})
	}
	flushEdge := func() {
		if edge != nil && loop != nil {
			for _, p := range edge.points() {
				addPoint(p)
			}
		}
		edge = nil
	}
	flushLoop := func() {
		flushEdge()
		if loop != nil {
			if n := len(loop.Vertices); n > 2 && !polyPath && loop.Vertices[0].Pos == loop.Vertices[n-1].Pos {
				loop.Vertices = loop.Vertices[:n-1]
			}
			if len(loop.Vertices) > 1 {
				out = append(out, loop)
			}
			done++
		}
		loop = nil
	}

	for _, t := range body {
		if paths < 0 {
			if t.code == 91 {
				paths = t.int()
			}
			continue
		}
		if t.code == 92 {
			flushLoop()
			if done >= paths {
				break
			}
			polyPath = t.int()&2 != 0
			loop = &Polyline{Attrs: attrs, Closed: true}
			continue
		}
		if loop == nil {
			if done >= paths {
				break
			}
			continue
		}
		if t.code == 97 {
			flushLoop()
			continue
		}
		if polyPath {
			switch t.code {
			case 73:
				loop.Closed = t.int() != 0
			case 10:
				loop.Vertices = append(loop.Vertices, Vertex{Pos: r2.Vec{X: t.float()}})
			case 20:
				if n := len(loop.Vertices); n > 0 {
					loop.Vertices[n-1].Pos.Y = t.float()
				}
			case 42:
				if n := len(loop.Vertices); n > 0 {
					loop.Vertices[n-1].Bulge = t.float()
				}
			}
			continue
		}
		if t.code == 72 {
			flushEdge()
			edge = &hatchEdge{kind: t.int(), ccw: true}
			continue
		}
		if edge == nil {
			continue
		}
		switch t.code {
		case 10:
			edge.p10 = append(edge.p10, r2.Vec{X: t.float()})
		case 20:
			if n := len(edge.p10); n > 0 {
				edge.p10[n-1].Y = t.float()
			}
		case 11:
			edge.p11 = append(edge.p11, r2.Vec{X: t.float()})
		case 21:
			if n := len(edge.p11); n > 0 {
				edge.p11[n-1].Y = t.float()
			}
		case 40:
			edge.f40 = t.float()
		case 50:
			edge.start = t.float()
		case 51:
			edge.end = t.float()
		case 73:
			if edge.kind == 2 || edge.kind == 3 {
				edge.ccw = t.int() != 0
			}
		}
	}
	flushLoop()
	return out
}

// readLeader keeps the path of a LEADER as an open polyline.
func readLeader(body []tag) *Polyline {
	pl := &Polyline{Attrs: readAttrs(body)}
	for _, t := range body {
		switch t.code {
		case 10:
			pl.Vertices = append(pl.Vertices, Vertex{Pos: r2.Vec{X: t.float()}})
		case 20:
			if n := len(pl.Vertices); n > 0 {
				pl.Vertices[n-1].Pos.Y = t.float()
			}
		}
	}
	if len(pl.Vertices) < 2 {
		return nil
	}
	return pl
}
