package dxf

import "errors"

var (
	// ErrBinaryDXF indicates a binary DXF file, which is not supported.
	ErrBinaryDXF = errors.New("dxf: binary DXF is not supported")
	// ErrMalformed indicates a tag stream that cannot be parsed.
	ErrMalformed = errors.New("dxf: malformed tag stream")
	// ErrUndefinedBlock indicates an INSERT of a block the document does not define.
	ErrUndefinedBlock = errors.New("dxf: undefined block")
	// ErrDuplicateBlock indicates a block name that is already taken.
	ErrDuplicateBlock = errors.New("dxf: block already exists")
)
