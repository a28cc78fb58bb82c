// Package dxf is a small in-memory model of 2-D DXF drawings.
//
// It reads ASCII DXF files of any release into a Document (layers,
// linetypes, text styles, blocks and the model-space entity list), computes
// bounding extents, translates entities from one document into another and
// writes documents back as AutoCAD R12 (AC1009) ASCII DXF.
//
// Only the geometry needed for layout work is interpreted: LINE, POINT,
// CIRCLE, ARC, LWPOLYLINE/POLYLINE, TEXT/MTEXT and INSERT. Every other entity
// is kept as a Raw tag list, carried through import and write unchanged
// except for its layer and linetype references.
//
// Text in pre-2007 files is decoded using $DWGCODEPAGE (ANSI_936 is read as
// GBK), and written back using the document's Codepage.
//
// Import never mutates its source. Referenced layers, linetypes, text styles
// and blocks are merged into the destination when an identical definition
// already exists there, and copied under a fresh name when a definition with
// the same name differs.
package dxf
