package consolidate

import "errors"

var (
	// ErrNotDirectory is returned when the merge input is not a directory.
	ErrNotDirectory = errors.New("consolidate: not a directory")
	// ErrNoDrawings is returned when a directory holds no drawing files.
	ErrNoDrawings = errors.New("consolidate: no drawings found")
	// ErrNothingMerged is returned when no drawing of a directory could be placed.
	ErrNothingMerged = errors.New("consolidate: nothing merged")
	// ErrNoLayerZero is returned by AnnotateFile when layer 0 holds no entities.
	ErrNoLayerZero = errors.New("consolidate: no entities on layer 0")

	errEmptyDrawing = errors.New("drawing has no model-space entities")
	errNoExtents    = errors.New("drawing has no measurable extents")
)
