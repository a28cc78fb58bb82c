package dxf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// WriteFile writes the document as R12 ASCII DXF, creating parent directories.
func (d *Document) WriteFile(path string) error {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Encode writes the document as R12 ASCII DXF in the document's codepage.
func (d *Document) Encode(w io.Writer) error {
	d.ensureReferences()
	cp := d.Codepage
	if _, ok := codepageEncoding(cp); !ok {
		cp = "ANSI_1252"
	}

	var body bytes.Buffer
	tw := &tagWriter{w: &body, handles: true}
	d.writeTables(tw)
	d.writeBlocks(tw)
	tw.str(0, "SECTION")
	tw.str(2, "ENTITIES")
	for _, e := range d.Model {
		e.encode(tw)
	}
	tw.str(0, "ENDSEC")
	tw.str(0, "EOF")
	if tw.err != nil {
		return tw.err
	}

	var head bytes.Buffer
	hw := &tagWriter{w: &head}
	d.writeHeader(hw, cp, tw.seed+1)
	if hw.err != nil {
		return hw.err
	}

	out, err := encodeText(head.String()+body.String(), cp)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func (d *Document) writeHeader(tw *tagWriter, cp string, seed int) {
	lo, hi := d.extMin, d.extMax
	if lo == (r2.Vec{}) && hi == (r2.Vec{}) {
		if ext := Extent(d, d.Model); ext.HasData() {
			lo, hi = ext.Min(), ext.Max()
		}
	}
	tw.str(0, "SECTION")
	tw.str(2, "HEADER")
	tw.str(9, "$ACADVER")
	tw.str(1, "AC1009")
	tw.str(9, "$DWGCODEPAGE")
	tw.str(3, strings.ToUpper(cp))
	tw.str(9, "$INSBASE")
	tw.point(10, 0, 0)
	tw.str(9, "$EXTMIN")
	tw.point(10, lo.X, lo.Y)
	tw.str(9, "$EXTMAX")
	tw.point(10, hi.X, hi.Y)
	tw.str(9, "$HANDLING")
	tw.integer(70, 1)
	tw.str(9, "$HANDSEED")
	tw.str(5, strings.ToUpper(strconv.FormatInt(int64(seed), 16)))
	tw.str(0, "ENDSEC")
}

func (d *Document) writeTables(tw *tagWriter) {
	tw.str(0, "SECTION")
	tw.str(2, "TABLES")

	beginTable(tw, "VPORT", 1)
	view := d.View
	if view == nil {
		view = &Viewport{Height: 1000, Aspect: 1}
	}
	tw.str(0, "VPORT")
	tw.handle()
	tw.str(2, "*ACTIVE")
	tw.integer(70, 0)
	tw.num(10, 0)
	tw.num(20, 0)
	tw.num(11, 1)
	tw.num(21, 1)
	tw.num(12, view.Center.X)
	tw.num(22, view.Center.Y)
	tw.num(13, 0)
	tw.num(23, 0)
	tw.num(14, 10)
	tw.num(24, 10)
	tw.num(15, 10)
	tw.num(25, 10)
	tw.point(16, 0, 0)
	tw.point(17, 0, 0)
	tw.num(40, view.Height)
	tw.num(41, view.Aspect)
	tw.num(42, 50)
	tw.num(43, 0)
	tw.num(44, 0)
	tw.num(50, 0)
	tw.num(51, 0)
	tw.integer(71, 0)
	tw.integer(72, 100)
	tw.integer(73, 1)
	tw.integer(74, 3)
	tw.integer(75, 0)
	tw.integer(76, 0)
	tw.integer(77, 0)
	tw.integer(78, 0)
	tw.str(0, "ENDTAB")

	var ltypes []*Linetype
	for _, lt := range d.Linetypes.All() {
		if k := tableKey(lt.Name); k != LinetypeByLayer && k != LinetypeByBlock {
			ltypes = append(ltypes, lt)
		}
	}
	beginTable(tw, "LTYPE", len(ltypes))
	for _, lt := range ltypes {
		tw.str(0, "LTYPE")
		tw.handle()
		tw.str(2, lt.Name)
		tw.integer(70, 0)
		tw.str(3, lt.Description)
		tw.integer(72, 65)
		tw.integer(73, len(lt.Pattern))
		tw.num(40, lt.Length)
		for _, p := range lt.Pattern {
			tw.num(49, p)
		}
	}
	tw.str(0, "ENDTAB")

	layers := d.Layers.All()
	beginTable(tw, "LAYER", len(layers))
	for _, l := range layers {
		tw.str(0, "LAYER")
		tw.handle()
		tw.str(2, l.Name)
		flags := 0
		if l.Frozen {
			flags = 1
		}
		tw.integer(70, flags)
		color := l.Color
		if color <= 0 || color > 255 {
			color = ColorWhite
		}
		if l.Off {
			color = -color
		}
		tw.integer(62, color)
		lt := l.Linetype
		if lt == "" {
			lt = "CONTINUOUS"
		}
		tw.str(6, lt)
	}
	tw.str(0, "ENDTAB")

	styles := d.Styles.All()
	beginTable(tw, "STYLE", len(styles))
	for _, s := range styles {
		width := s.Width
		if width == 0 {
			width = 1
		}
		tw.str(0, "STYLE")
		tw.handle()
		tw.str(2, s.Name)
		tw.integer(70, 0)
		tw.num(40, s.Height)
		tw.num(41, width)
		tw.num(50, 0)
		tw.integer(71, 0)
		tw.num(42, 2.5)
		tw.str(3, s.Font)
		tw.str(4, s.BigFont)
	}
	tw.str(0, "ENDTAB")

	tw.str(0, "ENDSEC")
}

func beginTable(tw *tagWriter, name string, n int) {
	tw.str(0, "TABLE")
	tw.str(2, name)
	tw.integer(70, n)
}

func (d *Document) writeBlocks(tw *tagWriter) {
	tw.str(0, "SECTION")
	tw.str(2, "BLOCKS")
	for _, b := range d.Blocks.All() {
		tw.str(0, "BLOCK")
		tw.handle()
		tw.str(8, LayerZero)
		tw.str(2, b.Name)
		flags := 0
		if strings.HasPrefix(b.Name, "*") {
			flags = 1
		}
		tw.integer(70, flags)
		tw.point(10, b.Base.X, b.Base.Y)
		tw.str(3, b.Name)
		for _, e := range b.Entities {
			e.encode(tw)
		}
		tw.str(0, "ENDBLK")
		tw.handle()
		tw.str(8, LayerZero)
	}
	tw.str(0, "ENDSEC")
}

// ensureReferences defines every layer, linetype and text style an entity
// refers to, so the written tables are complete.
func (d *Document) ensureReferences() {
	visit := func(ents []Entity) {
		for _, e := range ents {
			a := e.Common()
			if a.Layer != "" {
				d.AddLayer(a.Layer, 0)
			}
			if a.Linetype != "" && !d.Linetypes.Has(a.Linetype) {
				d.Linetypes.Put(a.Linetype, &Linetype{Name: a.Linetype})
			}
			if t, ok := e.(*Text); ok && t.Style != "" && !d.Styles.Has(t.Style) {
				d.Styles.Put(t.Style, &Style{Name: t.Style, Font: "txt", Width: 1})
			}
		}
	}
	visit(d.Model)
	for _, b := range d.Blocks.All() {
		visit(b.Entities)
	}
}
