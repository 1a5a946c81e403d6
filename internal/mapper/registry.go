package mapper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/covidschooldata/pipeline/internal/joiner"
	"github.com/covidschooldata/pipeline/internal/nces"
	"github.com/covidschooldata/pipeline/internal/table"
)

// The converter and calculation registries replace the lambdas the legacy
// configuration embedded: recipes select pre-vetted functions by name, so
// configuration stays data, never code.

// Calculation computes one cell from the assembled row. get returns the
// named column's cell for the current row.
type Calculation func(args []string, get func(column string) table.Value) (table.Value, error)

var converters = map[string]table.Converter{
	"trim": func(raw string) (table.Value, error) {
		return table.String(strings.TrimSpace(raw)), nil
	},
	"upper": func(raw string) (table.Value, error) {
		return table.String(strings.ToUpper(raw)), nil
	},
	"lower": func(raw string) (table.Value, error) {
		return table.String(strings.ToLower(raw)), nil
	},
	// Numeric text with thousands separators, e.g. "1,204".
	"int_from_text": func(raw string) (table.Value, error) {
		clean := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
		return table.Cast(table.String(clean), table.DtypeInt)
	},
	"float_from_text": func(raw string) (table.Value, error) {
		clean := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
		return table.Cast(table.String(clean), table.DtypeFloat)
	},
	"date": func(raw string) (table.Value, error) {
		return table.Cast(table.String(strings.TrimSpace(raw)), table.DtypeDate)
	},
	"district_id": func(raw string) (table.Value, error) {
		return table.String(joiner.FormatIDList(raw, joiner.DistrictIDWidth)), nil
	},
	"school_id": func(raw string) (table.Value, error) {
		return table.String(joiner.FormatIDList(raw, joiner.SchoolIDWidth)), nil
	},
	"charter_flag": func(raw string) (table.Value, error) {
		return table.String(nces.NormalizeCharter(strings.TrimSpace(raw))), nil
	},
}

var calculations = map[string]Calculation{
	// First non-null argument column.
	"coalesce": func(args []string, get func(string) table.Value) (table.Value, error) {
		for _, col := range args {
			if v := get(col); !v.IsNull() {
				return v, nil
			}
		}
		return table.Null(), nil
	},
	// Space-joined non-null argument columns.
	"concat": func(args []string, get func(string) table.Value) (table.Value, error) {
		var parts []string
		for _, col := range args {
			if v := get(col); !v.IsNull() {
				parts = append(parts, v.Format())
			}
		}
		if len(parts) == 0 {
			return table.Null(), nil
		}
		return table.String(strings.Join(parts, " ")), nil
	},
	// Numeric sum of argument columns; null if all are null.
	"sum": func(args []string, get func(string) table.Value) (table.Value, error) {
		total := 0.0
		any := false
		for _, col := range args {
			v := get(col)
			if v.IsNull() {
				continue
			}
			f, err := table.Cast(v, table.DtypeFloat)
			if err != nil {
				return table.Value{}, err
			}
			total += f.Float
			any = true
		}
		if !any {
			return table.Null(), nil
		}
		return table.Float(total), nil
	},
	// args: numerator column, denominator column. Null on null or zero
	// denominator.
	"ratio": func(args []string, get func(string) table.Value) (table.Value, error) {
		if len(args) != 2 {
			return table.Value{}, fmt.Errorf("ratio takes exactly two columns")
		}
		num, den := get(args[0]), get(args[1])
		if num.IsNull() || den.IsNull() {
			return table.Null(), nil
		}
		nf, err := table.Cast(num, table.DtypeFloat)
		if err != nil {
			return table.Value{}, err
		}
		df, err := table.Cast(den, table.DtypeFloat)
		if err != nil {
			return table.Value{}, err
		}
		if df.Float == 0 {
			return table.Null(), nil
		}
		return table.Float(nf.Float / df.Float), nil
	},
	// args: school-ID column. Strips the 5-digit school suffix.
	"district_ids_from_school_ids": func(args []string, get func(string) table.Value) (table.Value, error) {
		if len(args) != 1 {
			return table.Value{}, fmt.Errorf("district_ids_from_school_ids takes exactly one column")
		}
		return joiner.DistrictIDsFromSchoolIDs(get(args[0])), nil
	},
}

// LookupConverter resolves a registered converter by name.
func LookupConverter(name string) (table.Converter, error) {
	c, ok := converters[name]
	if !ok {
		return nil, fmt.Errorf("unknown converter %q (have %s)", name, registryNames(converters))
	}
	return c, nil
}

// LookupCalculation resolves a registered calculation by name.
func LookupCalculation(name string) (Calculation, error) {
	c, ok := calculations[name]
	if !ok {
		return nil, fmt.Errorf("unknown calculation %q (have %s)", name, registryNames(calculations))
	}
	return c, nil
}

func registryNames[V any](m map[string]V) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
