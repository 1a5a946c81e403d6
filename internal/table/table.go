package table

import (
	"fmt"
	"strings"
)

// Column is a named, optionally typed slice of cells. Dtype is the declared
// type; untyped (raw) columns carry DtypeString.
type Column struct {
	Name   string
	Dtype  Dtype
	Values []Value
}

// Table holds ordered columns of equal length.
type Table struct {
	cols   []*Column
	byName map[string]int
}

// New returns an empty table.
func New() *Table {
	return &Table{byName: make(map[string]int)}
}

// NumRows returns the row count (0 for a table with no columns).
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0].Values)
}

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.cols) }

// Names returns column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column, or nil if absent.
func (t *Table) Column(name string) *Column {
	i, ok := t.byName[name]
	if !ok {
		return nil
	}
	return t.cols[i]
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Columns returns the ordered column slice.
func (t *Table) Columns() []*Column { return t.cols }

// Value returns the cell at (row, column name); null if the column is
// absent.
func (t *Table) Value(row int, name string) Value {
	c := t.Column(name)
	if c == nil || row < 0 || row >= len(c.Values) {
		return Null()
	}
	return c.Values[row]
}

// AddColumn appends a column. The column length must match the table's row
// count unless the table is empty.
func (t *Table) AddColumn(c *Column) error {
	if _, ok := t.byName[c.Name]; ok {
		return fmt.Errorf("duplicate column %q", c.Name)
	}
	if len(t.cols) > 0 && len(c.Values) != t.NumRows() {
		return fmt.Errorf("column %q has %d rows, table has %d",
			c.Name, len(c.Values), t.NumRows())
	}
	t.byName[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// AddConstColumn appends a column holding the same cell in every row.
func (t *Table) AddConstColumn(name string, dtype Dtype, v Value) error {
	vals := make([]Value, t.NumRows())
	for i := range vals {
		vals[i] = v
	}
	return t.AddColumn(&Column{Name: name, Dtype: dtype, Values: vals})
}

// AddNullColumn appends an all-null column.
func (t *Table) AddNullColumn(name string, dtype Dtype) error {
	return t.AddConstColumn(name, dtype, Null())
}

// Rename renames a column; renaming a missing column is an error.
func (t *Table) Rename(from, to string) error {
	i, ok := t.byName[from]
	if !ok {
		return fmt.Errorf("cannot rename missing column %q", from)
	}
	if from == to {
		return nil
	}
	if _, exists := t.byName[to]; exists {
		return fmt.Errorf("cannot rename %q: column %q already exists", from, to)
	}
	delete(t.byName, from)
	t.cols[i].Name = to
	t.byName[to] = i
	return nil
}

// Drop removes the named column if present.
func (t *Table) Drop(name string) {
	i, ok := t.byName[name]
	if !ok {
		return
	}
	t.cols = append(t.cols[:i], t.cols[i+1:]...)
	delete(t.byName, name)
	for j := i; j < len(t.cols); j++ {
		t.byName[t.cols[j].Name] = j
	}
}

// Reorder arranges columns in exactly the given order. Every name must
// exist; columns not named are dropped.
func (t *Table) Reorder(names []string) error {
	cols := make([]*Column, 0, len(names))
	byName := make(map[string]int, len(names))
	for _, name := range names {
		c := t.Column(name)
		if c == nil {
			return fmt.Errorf("cannot reorder: missing column %q", name)
		}
		if _, dup := byName[name]; dup {
			return fmt.Errorf("cannot reorder: column %q listed twice", name)
		}
		byName[name] = len(cols)
		cols = append(cols, c)
	}
	t.cols = cols
	t.byName = byName
	return nil
}

// FilterRows keeps only rows for which keep returns true.
func (t *Table) FilterRows(keep func(row int) bool) {
	n := t.NumRows()
	kept := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if keep(i) {
			kept = append(kept, i)
		}
	}
	if len(kept) == n {
		return
	}
	for _, c := range t.cols {
		vals := make([]Value, len(kept))
		for j, i := range kept {
			vals[j] = c.Values[i]
		}
		c.Values = vals
	}
}

// rowKey builds a deduplication key over all columns. The unit separator
// keeps adjacent cells from colliding.
func (t *Table) rowKey(row int) string {
	parts := make([]string, len(t.cols))
	for i, c := range t.cols {
		if c.Values[row].IsNull() {
			parts[i] = "\x00"
		} else {
			parts[i] = c.Values[row].Format()
		}
	}
	return strings.Join(parts, "\x1f")
}

// Dedupe removes duplicate rows by exact equality across all columns,
// keeping first occurrences in order. Returns the number of rows removed.
func (t *Table) Dedupe() int {
	n := t.NumRows()
	seen := make(map[string]struct{}, n)
	removed := 0
	t.FilterRows(func(row int) bool {
		key := t.rowKey(row)
		if _, dup := seen[key]; dup {
			removed++
			return false
		}
		seen[key] = struct{}{}
		return true
	})
	return removed
}

// AppendRows appends all rows of other, matching columns by name. Columns
// missing on either side are filled with nulls.
func (t *Table) AppendRows(other *Table) {
	for _, oc := range other.cols {
		if !t.HasColumn(oc.Name) {
			_ = t.AddNullColumn(oc.Name, oc.Dtype)
		}
	}
	added := other.NumRows()
	for _, c := range t.cols {
		oc := other.Column(c.Name)
		for i := 0; i < added; i++ {
			if oc == nil {
				c.Values = append(c.Values, Null())
			} else {
				c.Values = append(c.Values, oc.Values[i])
			}
		}
	}
}

// CastColumn casts every cell of the named column to the dtype and records
// the dtype on the column.
func (t *Table) CastColumn(name string, d Dtype) error {
	c := t.Column(name)
	if c == nil {
		return fmt.Errorf("cannot cast missing column %q", name)
	}
	for i, v := range c.Values {
		cast, err := Cast(v, d)
		if err != nil {
			return fmt.Errorf("column %q row %d: %w", name, i, err)
		}
		c.Values[i] = cast
	}
	c.Dtype = d
	return nil
}

// ValidateColumnDtype confirms every non-null cell of the column holds the
// declared dtype. The error names the column, the declared dtype, and the
// actual cell type found.
func (t *Table) ValidateColumnDtype(name string, d Dtype) error {
	c := t.Column(name)
	if c == nil {
		return fmt.Errorf("cannot validate missing column %q", name)
	}
	want := KindForDtype(d)
	for _, v := range c.Values {
		if v.IsNull() {
			continue
		}
		if v.Kind != want {
			return fmt.Errorf("invalid dtype %q for column %q which has type %q",
				d, name, KindName(v.Kind))
		}
	}
	return nil
}
