package dxf

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

var binarySentinel = []byte("AutoCAD Binary DXF")

// r12Kinds are entity types kept as Raw. HATCH boundaries and LEADER paths
// are flattened to polylines; anything else that is not interpreted is
// skipped and counted in Document.Skipped.
var r12Kinds = map[string]bool{
	"TRACE": true, "SOLID": true, "SHAPE": true, "ATTDEF": true,
	"3DFACE": true, "DIMENSION": true,
}

// ReadFile reads an ASCII DXF file.
func ReadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Decode parses ASCII DXF content.
func Decode(raw []byte) (*Document, error) {
	if bytes.HasPrefix(raw, binarySentinel) {
		return nil, ErrBinaryDXF
	}
	text, err := decodeText(raw, "ANSI_1252")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	tags, err := scanTags(text)
	if err != nil {
		return nil, err
	}
	for i := range tags {
		if strings.Contains(tags[i].value, `\U+`) {
			tags[i].value = unescapeUnicode(tags[i].value)
		}
	}

	doc := New()
	doc.Version = ""
	doc.Skipped = map[string]int{}
	c := &cursor{tags: tags}
	for !c.done() {
		t, _ := c.peek()
		if t.code != 0 {
			c.pos++
			continue
		}
		kind, body := c.record()
		switch kind {
		case "EOF":
			return doc, nil
		case "SECTION":
		default:
			continue
		}
		switch sectionName(body) {
		case "HEADER":
			readHeader(doc, body)
			skipSection(c)
		case "TABLES":
			readTables(doc, c)
		case "BLOCKS":
			readBlocks(doc, c)
		case "ENTITIES":
			doc.Model = readEntities(doc, c, true)
		default:
			skipSection(c)
		}
	}
	return doc, nil
}

func sectionName(body []tag) string {
	for _, t := range body {
		if t.code == 2 {
			return strings.ToUpper(t.text())
		}
	}
	return ""
}

func skipSection(c *cursor) {
	for !c.done() {
		if kind, _ := c.record(); kind == "ENDSEC" {
			return
		}
	}
}

// readHeader reads the header variables, which all live in the SECTION
// record body since the header has no code 0 tags before ENDSEC.
func readHeader(doc *Document, body []tag) {
	name := ""
	for _, t := range body {
		switch {
		case t.code == 9:
			name = strings.ToUpper(t.text())
		case name == "$ACADVER" && t.code == 1:
			doc.Version = t.text()
		case name == "$DWGCODEPAGE" && t.code == 3:
			doc.Codepage = t.text()
		}
	}
}

func readTables(doc *Document, c *cursor) {
	for !c.done() {
		kind, body := c.record()
		switch kind {
		case "ENDSEC":
			return
		case "LAYER":
			readLayer(doc, body)
		case "LTYPE":
			readLinetype(doc, body)
		case "STYLE":
			readStyle(doc, body)
		case "VPORT":
			readViewport(doc, body)
		}
	}
}

func readLayer(doc *Document, body []tag) {
	l := &Layer{Color: ColorWhite, Linetype: "Continuous"}
	for _, t := range body {
		switch t.code {
		case 2:
			l.Name = t.text()
		case 62:
			l.Color = t.int()
			if l.Color < 0 {
				l.Off = true
				l.Color = -l.Color
			}
		case 6:
			l.Linetype = t.text()
		case 70:
			l.Frozen = t.int()&1 != 0
		}
	}
	if l.Name != "" {
		doc.Layers.Put(l.Name, l)
	}
}

func readLinetype(doc *Document, body []tag) {
	lt := &Linetype{}
	for _, t := range body {
		switch t.code {
		case 2:
			lt.Name = t.text()
		case 3:
			lt.Description = t.value
		case 40:
			lt.Length = t.float()
		case 49:
			lt.Pattern = append(lt.Pattern, t.float())
		}
	}
	if lt.Name != "" {
		doc.Linetypes.Put(lt.Name, lt)
	}
}

func readStyle(doc *Document, body []tag) {
	s := &Style{Width: 1}
	shape := false
	for _, t := range body {
		switch t.code {
		case 2:
			s.Name = t.text()
		case 3:
			s.Font = t.text()
		case 4:
			s.BigFont = t.text()
		case 40:
			s.Height = t.float()
		case 41:
			s.Width = t.float()
		case 70:
			shape = t.int()&1 != 0
		}
	}
	if s.Name != "" && !shape {
		doc.Styles.Put(s.Name, s)
	}
}

func readViewport(doc *Document, body []tag) {
	v := &Viewport{Aspect: 1}
	active := false
	for _, t := range body {
		switch t.code {
		case 2:
			active = strings.EqualFold(t.text(), "*ACTIVE")
		case 12:
			v.Center.X = t.float()
		case 22:
			v.Center.Y = t.float()
		case 40:
			v.Height = t.float()
		case 41:
			v.Aspect = t.float()
		}
	}
	if active && doc.View == nil {
		doc.View = v
	}
}

// layoutBlock reports block names that hold model or paper space content.
func layoutBlock(name string) bool {
	n := strings.ToUpper(name)
	return strings.HasPrefix(n, "*MODEL_SPACE") || strings.HasPrefix(n, "*PAPER_SPACE") ||
		strings.HasPrefix(n, "$MODEL_SPACE") || strings.HasPrefix(n, "$PAPER_SPACE")
}

func readBlocks(doc *Document, c *cursor) {
	for !c.done() {
		kind, body := c.record()
		switch kind {
		case "ENDSEC":
			return
		case "BLOCK":
			blk := &Block{}
			for _, t := range body {
				switch t.code {
				case 2:
					blk.Name = t.text()
				case 10:
					blk.Base.X = t.float()
				case 20:
					blk.Base.Y = t.float()
				}
			}
			blk.Entities = readEntities(doc, c, false)
			if blk.Name != "" && !layoutBlock(blk.Name) {
				doc.Blocks.Put(blk.Name, blk)
			}
		}
	}
}

// readEntities consumes entity records up to and including ENDBLK or ENDSEC.
func readEntities(doc *Document, c *cursor, modelOnly bool) []Entity {
	var out []Entity
	for !c.done() {
		kind, body := c.record()
		switch kind {
		case "ENDBLK", "ENDSEC", "EOF":
			return out
		case "POLYLINE":
			pl := readPolyline(body, c)
			if !modelOnly || !paperSpace(body) {
				out = append(out, pl)
			}
			continue
		case "SEQEND", "VERTEX":
			continue
		}
		if modelOnly && paperSpace(body) {
			skipAttributes(kind, body, c)
			continue
		}
		switch kind {
		case "INSERT":
			out = append(out, readInsert(body))
			out = append(out, readAttributes(body, c)...)
		case "HATCH":
			if loops := readHatch(body); len(loops) > 0 {
				out = append(out, loops...)
			} else {
				doc.Skipped[kind]++
			}
		default:
			if e := readEntity(kind, body); e != nil {
				out = append(out, e)
			} else {
				doc.Skipped[kind]++
			}
		}
	}
	return out
}

func paperSpace(body []tag) bool {
	for _, t := range body {
		if t.code == 67 {
			return t.int() == 1
		}
	}
	return false
}

func followedBy(body []tag) bool {
	for _, t := range body {
		if t.code == 66 {
			return t.int() == 1
		}
	}
	return false
}

func skipAttributes(kind string, body []tag, c *cursor) {
	if kind == "INSERT" {
		readAttributes(body, c)
	}
}

// readAttributes converts the ATTRIB records following an INSERT into Text.
func readAttributes(insert []tag, c *cursor) []Entity {
	if !followedBy(insert) {
		return nil
	}
	var out []Entity
	for !c.done() {
		t, _ := c.peek()
		if t.code != 0 {
			c.pos++
			continue
		}
		kind := strings.ToUpper(t.text())
		if kind != "ATTRIB" && kind != "SEQEND" {
			return out
		}
		_, body := c.record()
		if kind == "SEQEND" {
			return out
		}
		if txt := readText(body, 74); txt != nil && !invisible(body) {
			out = append(out, txt)
		}
	}
	return out
}

func invisible(body []tag) bool {
	for _, t := range body {
		if t.code == 70 {
			return t.int()&1 != 0
		}
	}
	return false
}

func readAttrs(body []tag) Attrs {
	a := Attrs{Layer: LayerZero, Color: ColorByLayer}
	for _, t := range body {
		switch t.code {
		case 8:
			a.Layer = t.text()
		case 6:
			a.Linetype = t.text()
		case 62:
			a.Color = readColor(t.int())
		}
	}
	return a
}

// readColor maps a DXF group 62 value to the logical color.
func readColor(v int) int {
	switch {
	case v == 0:
		return ColorByBlock
	case v >= 256 || v < 0:
		return ColorByLayer
	}
	return v
}

func readEntity(kind string, body []tag) Entity {
	switch kind {
	case "LINE":
		e := &Line{Attrs: readAttrs(body)}
		for _, t := range body {
			switch t.code {
			case 10:
				e.Start.X = t.float()
			case 20:
				e.Start.Y = t.float()
			case 11:
				e.End.X = t.float()
			case 21:
				e.End.Y = t.float()
			}
		}
		return e
	case "POINT":
		e := &Point{Attrs: readAttrs(body)}
		for _, t := range body {
			switch t.code {
			case 10:
				e.At.X = t.float()
			case 20:
				e.At.Y = t.float()
			}
		}
		return e
	case "CIRCLE", "ARC":
		var center r2.Vec
		var r, start, end float64
		for _, t := range body {
			switch t.code {
			case 10:
				center.X = t.float()
			case 20:
				center.Y = t.float()
			case 40:
				r = t.float()
			case 50:
				start = t.float()
			case 51:
				end = t.float()
			}
		}
		if kind == "CIRCLE" {
			return &Circle{Attrs: readAttrs(body), Center: center, Radius: r}
		}
		return &Arc{Attrs: readAttrs(body), Center: center, Radius: r, StartAngle: start, EndAngle: end}
	case "LWPOLYLINE":
		return readLWPolyline(body)
	case "TEXT":
		return readText(body, 73)
	case "MTEXT":
		return readMText(body)
	case "ELLIPSE":
		return readEllipse(body)
	case "SPLINE":
		return readSpline(body)
	case "LEADER":
		if pl := readLeader(body); pl != nil {
			return pl
		}
		return nil
	}
	if r12Kinds[kind] {
		return newRaw(kind, body)
	}
	return nil
}

func readLWPolyline(body []tag) *Polyline {
	pl := &Polyline{Attrs: readAttrs(body)}
	for _, t := range body {
		switch t.code {
		case 70:
			pl.Closed = t.int()&1 != 0
		case 10:
			pl.Vertices = append(pl.Vertices, Vertex{Pos: r2.Vec{X: t.float()}})
		case 20:
			if n := len(pl.Vertices); n > 0 {
				pl.Vertices[n-1].Pos.Y = t.float()
			}
		case 42:
			if n := len(pl.Vertices); n > 0 {
				pl.Vertices[n-1].Bulge = t.float()
			}
		}
	}
	return pl
}

// readPolyline consumes the VERTEX records and SEQEND following a POLYLINE.
// Mesh face records carry no position and are dropped.
func readPolyline(body []tag, c *cursor) *Polyline {
	pl := &Polyline{Attrs: readAttrs(body)}
	for _, t := range body {
		if t.code == 70 {
			pl.Closed = t.int()&1 != 0
		}
	}
	for !c.done() {
		t, _ := c.peek()
		if t.code != 0 {
			c.pos++
			continue
		}
		kind := strings.ToUpper(t.text())
		if kind != "VERTEX" && kind != "SEQEND" {
			return pl
		}
		_, vbody := c.record()
		if kind == "SEQEND" {
			return pl
		}
		var v Vertex
		flags := 0
		for _, vt := range vbody {
			switch vt.code {
			case 10:
				v.Pos.X = vt.float()
			case 20:
				v.Pos.Y = vt.float()
			case 42:
				v.Bulge = vt.float()
			case 70:
				flags = vt.int()
			}
		}
		if flags&128 != 0 && flags&64 == 0 {
			continue
		}
		pl.Vertices = append(pl.Vertices, v)
	}
	return pl
}

func readText(body []tag, valignCode int) *Text {
	e := &Text{Attrs: readAttrs(body)}
	for _, t := range body {
		switch t.code {
		case 1:
			e.Value = t.value
		case 7:
			e.Style = t.text()
		case 10:
			e.Insert.X = t.float()
		case 20:
			e.Insert.Y = t.float()
		case 11:
			e.Align.X = t.float()
		case 21:
			e.Align.Y = t.float()
		case 40:
			e.Height = t.float()
		case 50:
			e.Rotation = t.float()
		case 72:
			e.HAlign = t.int()
		case valignCode:
			e.VAlign = t.int()
		}
	}
	return e
}

var mtextCodes = regexp.MustCompile(`\\[ACcFfHhQqTtWp][^;]*;|\\[LlOoKk]`)

// plainMText strips MTEXT formatting codes; paragraph breaks become spaces.
func plainMText(s string) string {
	s = strings.ReplaceAll(s, `\P`, " ")
	s = strings.ReplaceAll(s, `\~`, " ")
	s = mtextCodes.ReplaceAllString(s, "")
	s = strings.NewReplacer("{", "", "}", "", `\\`, `\`).Replace(s)
	return s
}

func readMText(body []tag) *Text {
	e := &Text{Attrs: readAttrs(body)}
	var chunks []string
	last := ""
	attach := 1
	var dir r2.Vec
	for _, t := range body {
		switch t.code {
		case 3:
			chunks = append(chunks, t.value)
		case 1:
			last = t.value
		case 7:
			e.Style = t.text()
		case 10:
			e.Insert.X = t.float()
		case 20:
			e.Insert.Y = t.float()
		case 11:
			dir.X = t.float()
		case 21:
			dir.Y = t.float()
		case 40:
			e.Height = t.float()
		case 50:
			e.Rotation = t.float()
		case 71:
			attach = t.int()
		}
	}
	if dir.X != 0 || dir.Y != 0 {
		e.Rotation = math.Atan2(dir.Y, dir.X) * 180 / math.Pi
	}
	e.Value = plainMText(strings.Join(append(chunks, last), ""))
	if attach >= 1 && attach <= 9 {
		row, col := (attach-1)/3, (attach-1)%3
		e.HAlign = col
		e.VAlign = 3 - row
		if e.HAlign != 0 || e.VAlign != 0 {
			e.Align = e.Insert
		}
	}
	return e
}

const curveSegments = 64

// readEllipse approximates an ELLIPSE with a polyline.
func readEllipse(body []tag) *Polyline {
	var center, major r2.Vec
	ratio, start, end := 1.0, 0.0, 2*math.Pi
	for _, t := range body {
		switch t.code {
		case 10:
			center.X = t.float()
		case 20:
			center.Y = t.float()
		case 11:
			major.X = t.float()
		case 21:
			major.Y = t.float()
		case 40:
			ratio = t.float()
		case 41:
			start = t.float()
		case 42:
			end = t.float()
		}
	}
	if end <= start {
		end += 2 * math.Pi
	}
	minor := r2.Vec{X: -major.Y * ratio, Y: major.X * ratio}
	full := end-start >= 2*math.Pi-1e-9
	pl := &Polyline{Attrs: readAttrs(body), Closed: full}
	steps := curveSegments
	for i := 0; i <= steps; i++ {
		if full && i == steps {
			break
		}
		a := start + (end-start)*float64(i)/float64(steps)
		cos, sin := math.Cos(a), math.Sin(a)
		pl.Vertices = append(pl.Vertices, Vertex{Pos: r2.Vec{
			X: center.X + major.X*cos + minor.X*sin,
			Y: center.Y + major.Y*cos + minor.Y*sin,
		}})
	}
	return pl
}

// readSpline approximates a SPLINE by its fit points, or its control
// points when it has none.
func readSpline(body []tag) *Polyline {
	pl := &Polyline{Attrs: readAttrs(body)}
	var control, fit []Vertex
	for _, t := range body {
		switch t.code {
		case 70:
			pl.Closed = t.int()&1 != 0
		case 10:
			control = append(control, Vertex{Pos: r2.Vec{X: t.float()}})
		case 20:
			if n := len(control); n > 0 {
				control[n-1].Pos.Y = t.float()
			}
		case 11:
			fit = append(fit, Vertex{Pos: r2.Vec{X: t.float()}})
		case 21:
			if n := len(fit); n > 0 {
				fit[n-1].Pos.Y = t.float()
			}
		}
	}
	pl.Vertices = control
	if len(fit) > 1 {
		pl.Vertices = fit
	}
	return pl
}

func readInsert(body []tag) *Insert {
	e := &Insert{Attrs: readAttrs(body), Scale: r2.Vec{X: 1, Y: 1}}
	for _, t := range body {
		switch t.code {
		case 2:
			e.Block = t.text()
		case 10:
			e.At.X = t.float()
		case 20:
			e.At.Y = t.float()
		case 41:
			e.Scale.X = t.float()
		case 42:
			e.Scale.Y = t.float()
		case 50:
			e.Rotation = t.float()
		}
	}
	return e
}

var unicodeEscape = regexp.MustCompile(`\\U\+([0-9A-Fa-f]{4})`)

func unescapeUnicode(s string) string {
	return unicodeEscape.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.ParseUint(m[3:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(n))
	})
}
