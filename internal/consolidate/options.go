package consolidate

import "bomsort/internal/dxf"

// Options controls labels, spacing and layer visibility of merged drawings.
type Options struct {
	TextHeight float64
	TextLayer  string
	TextColor  int
	// Spacing is the horizontal gap between two placed drawings.
	Spacing float64
	// VisibleLayers stay on when HideOtherLayers is set. They are also
	// merged by name on import, so renamed copies never hide them.
	VisibleLayers   []string
	HideOtherLayers bool
	// Extension selects the drawing files of a directory, case-insensitively.
	Extension    string
	MaxBlockName int
	// Codepage is used for written files whose source text is not
	// representable in its own codepage.
	Codepage string
}

// DefaultOptions returns the stock layout: 50-unit yellow labels on layer 0,
// 100 units between drawings, only layers 0 and 细实线层 left visible.
func DefaultOptions() Options {
	return Options{
		TextHeight:      50,
		TextLayer:       dxf.LayerZero,
		TextColor:       dxf.ColorYellow,
		Spacing:         100,
		VisibleLayers:   []string{dxf.LayerZero, "细实线层"},
		HideOtherLayers: true,
		Extension:       ".dxf",
		MaxBlockName:    100,
		Codepage:        "ANSI_936",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.TextHeight <= 0 {
		o.TextHeight = def.TextHeight
	}
	if o.TextLayer == "" {
		o.TextLayer = def.TextLayer
	}
	if o.TextColor == 0 {
		o.TextColor = def.TextColor
	}
	if o.Spacing < 0 {
		o.Spacing = def.Spacing
	}
	if o.Extension == "" {
		o.Extension = def.Extension
	}
	if o.MaxBlockName <= 0 {
		o.MaxBlockName = def.MaxBlockName
	}
	if o.Codepage == "" {
		o.Codepage = def.Codepage
	}
	return o
}
