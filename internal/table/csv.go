package table

import (
	"encoding/csv"
	"fmt"
	"os"
)

// Converter turns a raw source cell into a typed cell. Converters run at
// read time, before dtype validation.
type Converter func(raw string) (Value, error)

// ReadOptions controls how raw tabular sources are ingested.
type ReadOptions struct {
	// Columns restricts reading to the named source columns. Empty means
	// all columns. A named column missing from the source is an error.
	Columns []string
	// Dtypes casts the named columns while reading; malformed cells are a
	// read failure.
	Dtypes map[string]Dtype
	// NAValues lists per-column sentinel strings treated as null. The empty
	// string is always null.
	NAValues map[string][]string
	// Converters run instead of the plain dtype cast for the named columns.
	Converters map[string]Converter
}

// ingestCell applies null sentinels, converters, and dtype casts to one raw
// cell of the named source column.
func (o ReadOptions) ingestCell(column, raw string) (Value, error) {
	if raw == "" {
		return Null(), nil
	}
	for _, na := range o.NAValues[column] {
		if raw == na {
			return Null(), nil
		}
	}
	if conv, ok := o.Converters[column]; ok && conv != nil {
		v, err := conv(raw)
		if err != nil {
			return Value{}, fmt.Errorf("converter for column %q: %w", column, err)
		}
		return v, nil
	}
	if d, ok := o.Dtypes[column]; ok {
		v, err := Cast(String(raw), d)
		if err != nil {
			return Value{}, fmt.Errorf("column %q: %w", column, err)
		}
		return v, nil
	}
	return String(raw), nil
}

// fromRows assembles a table from a header row plus data rows, applying
// ReadOptions. Short data rows are padded with nulls.
func fromRows(header []string, rows [][]string, opts ReadOptions) (*Table, error) {
	keep := make(map[string]int)
	if len(opts.Columns) > 0 {
		present := make(map[string]struct{}, len(header))
		for _, h := range header {
			present[h] = struct{}{}
		}
		for _, want := range opts.Columns {
			if _, ok := present[want]; !ok {
				return nil, fmt.Errorf("source is missing column %q", want)
			}
		}
		for _, want := range opts.Columns {
			keep[want] = 1
		}
	}

	t := New()
	colIdx := make([]int, 0, len(header))
	for i, name := range header {
		if len(keep) > 0 {
			if _, ok := keep[name]; !ok {
				continue
			}
		}
		dtype := DtypeString
		if d, ok := opts.Dtypes[name]; ok {
			dtype = d
		}
		if err := t.AddColumn(&Column{Name: name, Dtype: dtype}); err != nil {
			return nil, err
		}
		colIdx = append(colIdx, i)
	}

	names := t.Names()
	for rowNum, row := range rows {
		for ci, srcIdx := range colIdx {
			raw := ""
			if srcIdx < len(row) {
				raw = row[srcIdx]
			}
			v, err := opts.ingestCell(names[ci], raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", rowNum+2, err)
			}
			c := t.Column(names[ci])
			c.Values = append(c.Values, v)
		}
	}
	return t, nil
}

// ReadCSV reads a delimited text file into a table.
func ReadCSV(path string, opts ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("reading %s: no header row", path)
	}
	t, err := fromRows(records[0], records[1:], opts)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return t, nil
}

// WriteCSV writes the table as CSV with a header row and no synthetic row
// index column. Null cells render empty.
func (t *Table) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Names()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	row := make([]string, len(t.cols))
	for i := 0; i < t.NumRows(); i++ {
		for j, c := range t.cols {
			row[j] = c.Values[i].Format()
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
