// Package table implements the in-memory columnar table the pipeline
// operates on: ordered named columns of typed cells, with CSV and XLSX
// readers, dtype casting, row filtering, and deduplication.
package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Dtype is a declared column type.
type Dtype string

const (
	DtypeString Dtype = "string"
	DtypeInt    Dtype = "int"
	DtypeFloat  Dtype = "float"
	DtypeBool   Dtype = "bool"
	DtypeDate   Dtype = "date"
)

// ParseDtype validates a dtype name from configuration.
func ParseDtype(s string) (Dtype, error) {
	switch Dtype(s) {
	case DtypeString, DtypeInt, DtypeFloat, DtypeBool, DtypeDate:
		return Dtype(s), nil
	}
	return "", fmt.Errorf("unknown dtype %q", s)
}

// Kind discriminates the runtime type of a cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindDate
)

// Value is a single typed cell. The zero Value is null.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Time  time.Time
}

func Null() Value            { return Value{} }
func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value      { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value  { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func Date(t time.Time) Value { return Value{Kind: KindDate, Time: t} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// dateLayout is the fixed textual form for date cells: month/day/2-digit
// year without leading zeros.
const dateLayout = "1/2/06"

// Format renders the cell for CSV output and join keys. Null renders as the
// empty string.
func (v Value) Format() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindString:
		return v.Str
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case KindDate:
		return v.Time.Format(dateLayout)
	}
	return ""
}

// Equal reports exact cell equality. Nulls are equal to each other only.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == o.Str
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindBool:
		return v.Bool == o.Bool
	case KindDate:
		return v.Time.Equal(o.Time)
	}
	return false
}

// Less orders non-null cells of the same kind; used for column min/max and
// deterministic mode tie-breaking. Nulls sort last.
func (v Value) Less(o Value) bool {
	if v.IsNull() {
		return false
	}
	if o.IsNull() {
		return true
	}
	if v.Kind != o.Kind {
		return v.Kind < o.Kind
	}
	switch v.Kind {
	case KindString:
		return v.Str < o.Str
	case KindInt:
		return v.Int < o.Int
	case KindFloat:
		return v.Float < o.Float
	case KindBool:
		return !v.Bool && o.Bool
	case KindDate:
		return v.Time.Before(o.Time)
	}
	return false
}

// KindForDtype maps a declared dtype to the cell kind it must hold.
func KindForDtype(d Dtype) Kind {
	switch d {
	case DtypeString:
		return KindString
	case DtypeInt:
		return KindInt
	case DtypeFloat:
		return KindFloat
	case DtypeBool:
		return KindBool
	case DtypeDate:
		return KindDate
	}
	return KindNull
}

// KindName returns a human-readable name for diagnostics.
func KindName(k Kind) string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindDate:
		return "date"
	}
	return "unknown"
}

// dateParseLayouts are accepted when casting raw text to a date cell.
var dateParseLayouts = []string{
	"1/2/2006",
	"1/2/06",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Cast converts a cell to the given dtype. Nulls pass through unchanged.
// A value that cannot represent the target dtype is an error, never a
// silent coercion.
func Cast(v Value, d Dtype) (Value, error) {
	if v.IsNull() {
		return v, nil
	}
	switch d {
	case DtypeString:
		return String(v.Format()), nil
	case DtypeInt:
		switch v.Kind {
		case KindInt:
			return v, nil
		case KindFloat:
			if v.Float != float64(int64(v.Float)) {
				return Value{}, fmt.Errorf("cannot cast non-integral %v to int", v.Float)
			}
			return Int(int64(v.Float)), nil
		case KindString:
			s := strings.TrimSpace(v.Str)
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				// Spreadsheet numerics frequently surface as "12.0".
				f, ferr := strconv.ParseFloat(s, 64)
				if ferr != nil || f != float64(int64(f)) {
					return Value{}, fmt.Errorf("cannot cast %q to int", v.Str)
				}
				return Int(int64(f)), nil
			}
			return Int(i), nil
		}
	case DtypeFloat:
		switch v.Kind {
		case KindFloat:
			return v, nil
		case KindInt:
			return Float(float64(v.Int)), nil
		case KindString:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
			if err != nil {
				return Value{}, fmt.Errorf("cannot cast %q to float", v.Str)
			}
			return Float(f), nil
		}
	case DtypeBool:
		switch v.Kind {
		case KindBool:
			return v, nil
		case KindString:
			switch strings.ToLower(strings.TrimSpace(v.Str)) {
			case "true", "yes", "y", "1":
				return Bool(true), nil
			case "false", "no", "n", "0":
				return Bool(false), nil
			}
			return Value{}, fmt.Errorf("cannot cast %q to bool", v.Str)
		}
	case DtypeDate:
		switch v.Kind {
		case KindDate:
			return v, nil
		case KindString:
			s := strings.TrimSpace(v.Str)
			for _, layout := range dateParseLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return Date(t), nil
				}
			}
			return Value{}, fmt.Errorf("cannot cast %q to date", v.Str)
		}
	}
	return Value{}, fmt.Errorf("cannot cast %s to %s", KindName(v.Kind), d)
}
