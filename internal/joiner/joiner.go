// Package joiner implements the lookup joins that attach reference
// attributes onto canonical case tables: exact comma-separated multilookup,
// fixed-width identifier formatting, fuzzy-key left joins, and the
// reviewed-lookup and demographic joins built on them.
package joiner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/covidschooldata/pipeline/internal/table"
)

const (
	// DistrictIDWidth is the zero-padded width of federal district (LEA)
	// identifiers.
	DistrictIDWidth = 7
	// SchoolIDWidth is the zero-padded width of federal school identifiers.
	SchoolIDWidth = 12
)

// FormatID normalizes one identifier to a fixed zero-padded width. Source
// files frequently carry IDs as spreadsheet floats ("123456.0"); those are
// collapsed to their integer form first.
func FormatID(id string, width int) string {
	id = strings.TrimSpace(id)
	if f, err := strconv.ParseFloat(id, 64); err == nil {
		id = strconv.FormatInt(int64(f), 10)
	}
	if len(id) >= width {
		return id
	}
	return strings.Repeat("0", width-len(id)) + id
}

// FormatIDList normalizes a comma-separated identifier list, padding each
// element. Output uses comma separation with no surrounding whitespace.
func FormatIDList(ids string, width int) string {
	parts := strings.Split(ids, ",")
	for i, p := range parts {
		parts[i] = FormatID(p, width)
	}
	return strings.Join(parts, ",")
}

// MultiLookup resolves a possibly comma-separated key against a lookup
// map. Distinct resolved values collapse to a scalar when there is exactly
// one; otherwise they are comma-joined in lookup order. A null key returns
// null; a key with no resolvable sub-keys returns the empty string.
func MultiLookup(lookup map[string]string, key table.Value) table.Value {
	if key.IsNull() {
		return table.Null()
	}
	var values []string
	seen := make(map[string]struct{})
	for _, k := range strings.Split(key.Format(), ",") {
		v, ok := lookup[k]
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	if len(values) == 1 {
		return table.String(values[0])
	}
	return table.String(strings.Join(values, ","))
}

// DistrictIDsFromSchoolIDs infers district identifiers from a
// comma-separated list of 12-digit school identifiers by stripping the
// 5-digit school suffix. A single distinct district collapses to a scalar.
func DistrictIDsFromSchoolIDs(schoolIDs table.Value) table.Value {
	if schoolIDs.IsNull() {
		return table.Null()
	}
	parts := strings.Split(schoolIDs.Format(), ",")
	districtIDs := make([]string, len(parts))
	distinct := make(map[string]struct{})
	for i, id := range parts {
		did := id
		if len(id) > 5 {
			did = id[:len(id)-5]
		}
		districtIDs[i] = did
		distinct[did] = struct{}{}
	}
	if len(distinct) == 1 {
		return table.String(districtIDs[0])
	}
	return table.String(strings.Join(districtIDs, ","))
}

// BuildIDLookup builds a lookup map from two columns of a reference table,
// dropping rows where either cell is null and zero-padding keys to the
// given width.
func BuildIDLookup(t *table.Table, keyColumn, valueColumn string, width int) (map[string]string, error) {
	kc := t.Column(keyColumn)
	vc := t.Column(valueColumn)
	if kc == nil || vc == nil {
		return nil, fmt.Errorf("lookup source is missing column %q or %q", keyColumn, valueColumn)
	}
	lookup := make(map[string]string)
	for row := range kc.Values {
		k, v := kc.Values[row], vc.Values[row]
		if k.IsNull() || v.IsNull() {
			continue
		}
		lookup[FormatID(k.Format(), width)] = v.Format()
	}
	return lookup, nil
}

// AttachLookup maps keyColumn through the lookup and stores the result in
// targetColumn, replacing it if it already exists. Keys are treated as
// comma-separated identifier lists; use AttachNameLookup for name keys.
func AttachLookup(t *table.Table, keyColumn, targetColumn string, lookup map[string]string) error {
	return attach(t, keyColumn, targetColumn, func(k table.Value) table.Value {
		return MultiLookup(lookup, k)
	})
}

// AttachNameLookup resolves keyColumn against the lookup as whole keys.
// Institution names legitimately contain commas ("Lincoln Academy, Annex"),
// so they are never split the way identifier lists are. A null key stays
// null; an unresolved name becomes the empty string.
func AttachNameLookup(t *table.Table, keyColumn, targetColumn string, lookup map[string]string) error {
	return attach(t, keyColumn, targetColumn, func(k table.Value) table.Value {
		if k.IsNull() {
			return table.Null()
		}
		return table.String(lookup[k.Format()])
	})
}

func attach(t *table.Table, keyColumn, targetColumn string, resolve func(table.Value) table.Value) error {
	kc := t.Column(keyColumn)
	if kc == nil {
		return fmt.Errorf("table is missing key column %q", keyColumn)
	}
	values := make([]table.Value, len(kc.Values))
	for row, k := range kc.Values {
		values[row] = resolve(k)
	}
	if existing := t.Column(targetColumn); existing != nil {
		existing.Values = values
		existing.Dtype = table.DtypeString
		return nil
	}
	return t.AddColumn(&table.Column{Name: targetColumn, Dtype: table.DtypeString, Values: values})
}

// BackfillLookup fills only the null cells of targetColumn from the
// lookup, preserving existing values (combine-first semantics).
func BackfillLookup(t *table.Table, keyColumn, targetColumn string, lookup map[string]string) error {
	kc := t.Column(keyColumn)
	if kc == nil {
		return fmt.Errorf("table is missing key column %q", keyColumn)
	}
	tc := t.Column(targetColumn)
	if tc == nil {
		return AttachLookup(t, keyColumn, targetColumn, lookup)
	}
	for row, v := range tc.Values {
		if !v.IsNull() {
			continue
		}
		tc.Values[row] = MultiLookup(lookup, kc.Values[row])
	}
	return nil
}
