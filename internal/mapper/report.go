package mapper

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/covidschooldata/pipeline/internal/table"
)

// ColumnReport is one column's audit summary for one state.
type ColumnReport struct {
	State     string
	Column    string
	Dtype     string
	Count     int
	NullCount int
	// Min, Max, and Mode are formatted cell values; empty when the column
	// holds no non-null cells. Mean is set for numeric columns only.
	Min  string
	Max  string
	Mean string
	Mode string
}

// BuildReport summarizes every column of the table.
func BuildReport(state string, t *table.Table) []ColumnReport {
	reports := make([]ColumnReport, 0, t.NumCols())
	for _, c := range t.Columns() {
		reports = append(reports, buildColumnReport(state, c))
	}
	return reports
}

func buildColumnReport(state string, c *table.Column) ColumnReport {
	r := ColumnReport{
		State:  state,
		Column: c.Name,
		Dtype:  string(c.Dtype),
		Count:  len(c.Values),
	}

	var (
		min, max   table.Value
		have       bool
		sum        float64
		numeric    int
		allNumeric = true
		counts     = make(map[string]int)
	)
	for _, v := range c.Values {
		if v.IsNull() {
			r.NullCount++
			continue
		}
		if !have {
			min, max = v, v
			have = true
		} else {
			if v.Less(min) {
				min = v
			}
			if max.Less(v) {
				max = v
			}
		}
		switch v.Kind {
		case table.KindInt:
			sum += float64(v.Int)
			numeric++
		case table.KindFloat:
			sum += v.Float
			numeric++
		default:
			allNumeric = false
		}
		counts[v.Format()]++
	}
	if !have {
		return r
	}
	r.Min = min.Format()
	r.Max = max.Format()
	if allNumeric && numeric > 0 {
		r.Mean = fmt.Sprintf("%.4g", sum/float64(numeric))
	}
	r.Mode = modeOf(counts)
	return r
}

// modeOf returns the most frequent formatted value; ties go to the
// lexicographically smallest so reports are stable across runs.
func modeOf(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	mode, best := "", 0
	for _, k := range keys {
		if counts[k] > best {
			mode, best = k, counts[k]
		}
	}
	return mode
}

// RenderReport writes the audit report as an aligned text table, one row
// per column per state.
func RenderReport(w io.Writer, reports []ColumnReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tCOLUMN\tDTYPE\tCOUNT\tNULLS\tMIN\tMAX\tMEAN\tMODE")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			r.State, r.Column, r.Dtype, r.Count, r.NullCount,
			r.Min, r.Max, r.Mean, r.Mode)
	}
	return tw.Flush()
}

// ReportTable converts reports into a table for CSV output or the
// warehouse sink.
func ReportTable(reports []ColumnReport) *table.Table {
	n := len(reports)
	cols := []struct {
		name string
		get  func(r ColumnReport) table.Value
	}{
		{"state", func(r ColumnReport) table.Value { return table.String(r.State) }},
		{"column", func(r ColumnReport) table.Value { return table.String(r.Column) }},
		{"dtype", func(r ColumnReport) table.Value { return table.String(r.Dtype) }},
		{"count", func(r ColumnReport) table.Value { return table.String(strconv.Itoa(r.Count)) }},
		{"null_count", func(r ColumnReport) table.Value { return table.String(strconv.Itoa(r.NullCount)) }},
		{"min", func(r ColumnReport) table.Value { return table.String(r.Min) }},
		{"max", func(r ColumnReport) table.Value { return table.String(r.Max) }},
		{"mean", func(r ColumnReport) table.Value { return table.String(r.Mean) }},
		{"mode", func(r ColumnReport) table.Value { return table.String(r.Mode) }},
	}
	t := table.New()
	for _, c := range cols {
		values := make([]table.Value, n)
		for i, r := range reports {
			values[i] = c.get(r)
		}
		_ = t.AddColumn(&table.Column{Name: c.name, Dtype: table.DtypeString, Values: values})
	}
	return t
}
