// Package bom turns a loosely structured parts-list spreadsheet into typed rows.
//
// A BOM exported from a CAD tool rarely starts at A1: title blocks, logos and
// revision tables sit above the real header. The package therefore works in
// three steps:
//
//   - LoadGrid reads the first sheet of an .xlsx or .xls workbook as a ragged
//     grid of trimmed strings.
//   - LocateHeader scores the first rows of the grid and picks the header row.
//     Only rows with at least three non-numeric cells are eligible; cells that
//     mention a typical column name (图号, 材料, 数量, ...) weigh more.
//   - Table.Rows re-reads the grid below the header and resolves each row into
//     a Row keyed by Role, using a caller supplied Mapping from role to column.
//
// ParseMaterial extracts the (material, thickness) pair from a compound cell
// such as "铝板 T=2.0".
//
// Errors:
//
//   - ErrNoHeader          no row qualified as a header
//   - ErrMissingRole       a required role has no column, or the column is absent
//   - ErrUnsupportedFormat the file extension is not a known workbook format
//   - ErrEmptyWorkbook     the workbook has no sheet to read
package bom
