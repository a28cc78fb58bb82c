package bom

import "errors"

var (
	// ErrNoHeader indicates that no row of the grid looks like a header.
	ErrNoHeader = errors.New("bom: no valid header row")
	// ErrMissingRole indicates that a required role cannot be resolved to a column.
	ErrMissingRole = errors.New("bom: required column missing")
	// ErrUnsupportedFormat indicates a workbook extension the loader cannot read.
	ErrUnsupportedFormat = errors.New("bom: unsupported workbook format")
	// ErrEmptyWorkbook indicates a workbook without any readable sheet.
	ErrEmptyWorkbook = errors.New("bom: workbook has no sheets")
)
