package bom

import (
	"fmt"
	"strings"
)

// Role is a semantic column of the parts list.
type Role int

const (
	RolePart Role = iota
	RoleMaterial
	RoleBackupMaterial
	RoleQuantity
	RoleName
)

var roleNames = map[Role]string{
	RolePart:           "part",
	RoleMaterial:       "material",
	RoleBackupMaterial: "backup_material",
	RoleQuantity:       "quantity",
	RoleName:           "name",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole resolves a role from its configuration name.
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for role, name := range roleNames {
		if name == s {
			return role, true
		}
	}
	return 0, false
}

// requiredRoles must be mapped for a classification pass to start.
var requiredRoles = []Role{RolePart, RoleMaterial}

// Mapping assigns a column label to each role. Unmapped optional roles read as "".
type Mapping map[Role]string

// Row is one data row of the table resolved by role.
type Row struct {
	// Line is the 1-based spreadsheet row number, for messages.
	Line   int
	values map[Role]string
}

// NewRow builds a row from explicit values.
func NewRow(line int, values map[Role]string) Row {
	v := make(map[Role]string, len(values))
	for role, s := range values {
		v[role] = strings.TrimSpace(s)
	}
	return Row{Line: line, values: v}
}

// Get returns the value of role and whether the role is mapped at all.
func (r Row) Get(role Role) (string, bool) {
	v, ok := r.values[role]
	return v, ok
}

// Value returns the value of role, "" when unmapped.
func (r Row) Value(role Role) string {
	return r.values[role]
}

// Table is a loaded spreadsheet. The located header is computed once and
// cached until a new table is created.
type Table struct {
	Path    string
	Grid    Grid
	MaxRows int

	header  *HeaderResult
	columns []column
}

// Open loads the workbook at path into a Table.
func Open(path string) (*Table, error) {
	grid, err := LoadGrid(path)
	if err != nil {
		return nil, err
	}
	return &Table{Path: path, Grid: grid}, nil
}

// NewTable wraps an in-memory grid.
func NewTable(grid Grid) *Table {
	return &Table{Grid: grid}
}

// Header locates the header row. It returns ErrNoHeader together with the
// (empty) result when detection fails.
func (t *Table) Header() (HeaderResult, error) {
	if t.header == nil {
		h := LocateHeader(t.Grid, t.MaxRows)
		t.header = &h
		t.columns = headerColumns(t.Grid, h.RowIndex)
	}
	if !t.header.Found() {
		return *t.header, ErrNoHeader
	}
	return *t.header, nil
}

// Resolve maps each role of m to a grid column index. Required roles must be
// mapped to an existing column; optional roles naming a missing column are
// dropped.
func (t *Table) Resolve(m Mapping) (map[Role]int, error) {
	if _, err := t.Header(); err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(t.columns))
	for _, c := range t.columns {
		if !c.placeholder {
			byName[c.name] = c.index
		}
	}

	for _, role := range requiredRoles {
		name := strings.TrimSpace(m[role])
		if name == "" {
			return nil, fmt.Errorf("%w: role %s is not mapped", ErrMissingRole, role)
		}
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("%w: column %q for role %s", ErrMissingRole, name, role)
		}
	}

	resolved := make(map[Role]int, len(m))
	for role, name := range m {
		if idx, ok := byName[strings.TrimSpace(name)]; ok {
			resolved[role] = idx
		}
	}
	return resolved, nil
}

// Rows returns every non-blank data row below the header, resolved by m.
func (t *Table) Rows(m Mapping) ([]Row, error) {
	resolved, err := t.Resolve(m)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for i := t.header.RowIndex + 1; i < len(t.Grid); i++ {
		if blankRow(t.Grid[i]) {
			continue
		}
		values := make(map[Role]string, len(resolved))
		for role, col := range resolved {
			values[role] = t.Grid.Cell(i, col)
		}
		rows = append(rows, Row{Line: i + 1, values: values})
	}
	return rows, nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
