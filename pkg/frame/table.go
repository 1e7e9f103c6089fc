// Package frame provides the tabular data type that generated code operates on.
//
// A Table is an immutable, row-oriented set of named columns. Cells hold one of
// nil, bool, int64, float64, string or time.Time. Every operation returns a new
// Table; source tables handed to generated code can never be altered by it.
package frame

import (
	"fmt"
	"sort"
	"strings"
)

// Table is an immutable tabular view.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates a table from column names and rows. Cells are normalized to the
// supported value types.
func New(columns []string, rows [][]any) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		index[c] = i
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", r, len(row), len(columns))
		}
		cells := make([]any, len(row))
		for c, v := range row {
			nv, err := Normalize(v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, columns[c], err)
			}
			cells[c] = nv
		}
		out[r] = cells
	}

	return &Table{columns: append([]string(nil), columns...), index: index, rows: out}, nil
}

// MustNew is like New but panics on error. Intended for fixtures.
func MustNew(columns []string, rows [][]any) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// FromRecords builds a table from a list of records. Column order follows
// first appearance; missing keys become nil.
func FromRecords(records []map[string]any) (*Table, error) {
	var columns []string
	seen := make(map[string]bool)
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			columns = append(columns, k)
		}
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for c, name := range columns {
			row[c] = rec[name]
		}
		rows[i] = row
	}
	return New(columns, rows)
}

// empty returns a zero-row table with the same columns.
func (t *Table) empty() *Table {
	return &Table{columns: t.columns, index: t.index}
}

// withRows returns a table sharing t's schema with the given rows.
// Rows are assumed normalized.
func (t *Table) withRows(rows [][]any) *Table {
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []any {
	return append([]any(nil), t.rows[i]...)
}

// Value returns the cell at row i, column col.
func (t *Table) Value(i int, col string) (any, error) {
	c, ok := t.index[col]
	if !ok {
		return nil, &ColumnError{Column: col, Available: t.columns}
	}
	if i < 0 || i >= len(t.rows) {
		return nil, fmt.Errorf("row index %d out of range [0:%d]", i, len(t.rows))
	}
	return t.rows[i][c], nil
}

// Column returns a copy of all values of col.
func (t *Table) Column(col string) ([]any, error) {
	c, ok := t.index[col]
	if !ok {
		return nil, &ColumnError{Column: col, Available: t.columns}
	}
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[c]
	}
	return out, nil
}

// Records returns all rows as column-keyed maps.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.rows))
	for i, row := range t.rows {
		rec := make(map[string]any, len(t.columns))
		for c, name := range t.columns {
			rec[name] = row[c]
		}
		out[i] = rec
	}
	return out
}

// Head returns the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = 0
	}
	if n > len(t.rows) {
		n = len(t.rows)
	}
	return t.withRows(t.rows[:n:n])
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(cols ...string) (*Table, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, ok := t.index[c]
		if !ok {
			return nil, &ColumnError{Column: c, Available: t.columns}
		}
		idx[i] = j
	}
	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		cells := make([]any, len(idx))
		for i, j := range idx {
			cells[i] = row[j]
		}
		rows[r] = cells
	}
	return New(cols, rows)
}

// FilterRows keeps the rows for which keep returns true.
func (t *Table) FilterRows(keep func(row int) (bool, error)) (*Table, error) {
	var rows [][]any
	for i, row := range t.rows {
		ok, err := keep(i)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	if rows == nil {
		return t.empty(), nil
	}
	return t.withRows(rows), nil
}

// WithColumn returns a table with an added or replaced column.
func (t *Table) WithColumn(name string, values []any) (*Table, error) {
	if len(values) != len(t.rows) {
		return nil, fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), len(t.rows))
	}
	cols := t.Columns()
	pos, replace := t.index[name]
	if !replace {
		cols = append(cols, name)
	}
	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		cells := append([]any(nil), row...)
		if replace {
			cells[pos] = values[r]
		} else {
			cells = append(cells, values[r])
		}
		rows[r] = cells
	}
	return New(cols, rows)
}

// SortBy returns the rows ordered by the given columns. Nil sorts first.
func (t *Table) SortBy(cols []string, descending bool) (*Table, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, ok := t.index[c]
		if !ok {
			return nil, &ColumnError{Column: c, Available: t.columns}
		}
		idx[i] = j
	}
	rows := append([][]any(nil), t.rows...)
	sort.SliceStable(rows, func(a, b int) bool {
		for _, j := range idx {
			c := Compare(rows[a][j], rows[b][j])
			if c == 0 {
				continue
			}
			if descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return t.withRows(rows), nil
}

// DropDuplicates removes repeated rows, comparing only subset columns when given.
func (t *Table) DropDuplicates(subset ...string) (*Table, error) {
	if len(subset) == 0 {
		subset = t.columns
	}
	idx := make([]int, len(subset))
	for i, c := range subset {
		j, ok := t.index[c]
		if !ok {
			return nil, &ColumnError{Column: c, Available: t.columns}
		}
		idx[i] = j
	}
	seen := make(map[string]bool)
	var rows [][]any
	for _, row := range t.rows {
		k := rowKey(row, idx)
		if seen[k] {
			continue
		}
		seen[k] = true
		rows = append(rows, row)
	}
	if rows == nil {
		return t.empty(), nil
	}
	return t.withRows(rows), nil
}

// Unique returns the distinct values of col in first-seen order.
func (t *Table) Unique(col string) ([]any, error) {
	values, err := t.Column(col)
	if err != nil {
		return nil, err
	}
	return uniqueValues(values), nil
}

// NUnique returns the number of distinct non-nil values of col.
func (t *Table) NUnique(col string) (int, error) {
	values, err := t.Column(col)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, v := range uniqueValues(values) {
		if v != nil {
			n++
		}
	}
	return n, nil
}

// Equal reports whether two tables have the same columns and rows in order.
func (t *Table) Equal(other *Table) bool {
	if other == nil || len(t.columns) != len(other.columns) || len(t.rows) != len(other.rows) {
		return false
	}
	for i, c := range t.columns {
		if other.columns[i] != c {
			return false
		}
	}
	for r, row := range t.rows {
		for c, v := range row {
			if !Equal(v, other.rows[r][c]) {
				return false
			}
		}
	}
	return true
}

// String renders up to ten rows as plain text.
func (t *Table) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(t.columns, "\t"))
	for i, row := range t.rows {
		if i == 10 {
			fmt.Fprintf(&b, "\n... %d more rows", len(t.rows)-10)
			break
		}
		b.WriteByte('\n')
		for c, v := range row {
			if c > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(FormatCell(v))
		}
	}
	return b.String()
}

// ColumnError is returned when a column does not exist.
type ColumnError struct {
	Column    string
	Available []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("column %q not found (available: %s)", e.Column, strings.Join(e.Available, ", "))
}

func uniqueValues(values []any) []any {
	seen := make(map[string]bool, len(values))
	var out []any
	for _, v := range values {
		k := Key(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func rowKey(row []any, idx []int) string {
	parts := make([]string, len(idx))
	for i, j := range idx {
		parts[i] = Key(row[j])
	}
	return strings.Join(parts, "\x1f")
}
