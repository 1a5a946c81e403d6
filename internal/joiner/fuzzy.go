package joiner

import (
	"fmt"
	"strings"

	"github.com/covidschooldata/pipeline/internal/linkage/tokenizer"
	"github.com/covidschooldata/pipeline/internal/table"
)

// ColumnPair names a left-side column and the right-side column it joins
// against.
type ColumnPair struct {
	Left  string `yaml:"left"`
	Right string `yaml:"right"`
}

// joinKey derives the composite key for one row: exact cells verbatim,
// fuzzy cells normalized.
func joinKey(t *table.Table, row int, exact, fuzzy []string) string {
	parts := make([]string, 0, len(exact)+len(fuzzy))
	for _, col := range exact {
		parts = append(parts, t.Value(row, col).Format())
	}
	for _, col := range fuzzy {
		parts = append(parts, tokenizer.NormalizeKey(t.Value(row, col).Format()))
	}
	return strings.Join(parts, "\x1f")
}

func splitPairs(pairs []ColumnPair) (left, right []string) {
	for _, p := range pairs {
		left = append(left, p.Left)
		right = append(right, p.Right)
	}
	return left, right
}

func checkColumns(t *table.Table, side string, cols []string) error {
	for _, col := range cols {
		if !t.HasColumn(col) {
			return fmt.Errorf("%s side is missing join column %q", side, col)
		}
	}
	return nil
}

// FuzzyLeftJoin left-joins right onto left using exact-match columns plus
// fuzzy-match columns collapsed to normalized keys. Every left row is
// preserved exactly once; unmatched rows carry nulls for all right-side
// columns. Duplicate keys on the right violate the join's uniqueness
// invariant and are an error. The derived keys never appear in the output;
// right columns clashing with left names get a "_ref" suffix.
func FuzzyLeftJoin(left, right *table.Table, exact, fuzzy []ColumnPair) (*table.Table, error) {
	exactLeft, exactRight := splitPairs(exact)
	fuzzyLeft, fuzzyRight := splitPairs(fuzzy)
	if len(exactLeft)+len(fuzzyLeft) == 0 {
		return nil, fmt.Errorf("fuzzy join requires at least one match column")
	}
	if err := checkColumns(left, "left", append(append([]string{}, exactLeft...), fuzzyLeft...)); err != nil {
		return nil, err
	}
	if err := checkColumns(right, "right", append(append([]string{}, exactRight...), fuzzyRight...)); err != nil {
		return nil, err
	}

	rightRows := make(map[string]int, right.NumRows())
	for row := 0; row < right.NumRows(); row++ {
		key := joinKey(right, row, exactRight, fuzzyRight)
		if _, dup := rightRows[key]; dup {
			return nil, fmt.Errorf("fuzzy join key %q is not unique on the right side", key)
		}
		rightRows[key] = row
	}

	out := table.New()
	for _, c := range left.Columns() {
		if err := out.AddColumn(&table.Column{Name: c.Name, Dtype: c.Dtype, Values: append([]table.Value{}, c.Values...)}); err != nil {
			return nil, err
		}
	}
	rightNames := make(map[string]string, right.NumCols())
	for _, c := range right.Columns() {
		name := c.Name
		if out.HasColumn(name) {
			name = name + "_ref"
		}
		rightNames[c.Name] = name
		if err := out.AddNullColumn(name, c.Dtype); err != nil {
			return nil, err
		}
	}

	for row := 0; row < left.NumRows(); row++ {
		rightRow, ok := rightRows[joinKey(left, row, exactLeft, fuzzyLeft)]
		if !ok {
			continue
		}
		for _, c := range right.Columns() {
			out.Column(rightNames[c.Name]).Values[row] = c.Values[rightRow]
		}
	}
	return out, nil
}

// FilterJoin removes the rows of t that match a row of filter on the given
// exact and fuzzy columns. The drop is policy, not an error; the count of
// removed rows is returned so it stays attributable.
func FilterJoin(t, filter *table.Table, exact, fuzzy []ColumnPair) (int, error) {
	exactLeft, exactRight := splitPairs(exact)
	fuzzyLeft, fuzzyRight := splitPairs(fuzzy)
	if len(exactLeft)+len(fuzzyLeft) == 0 {
		return 0, fmt.Errorf("filter join requires at least one match column")
	}
	if err := checkColumns(t, "left", append(append([]string{}, exactLeft...), fuzzyLeft...)); err != nil {
		return 0, err
	}
	if err := checkColumns(filter, "filter", append(append([]string{}, exactRight...), fuzzyRight...)); err != nil {
		return 0, err
	}

	drop := make(map[string]struct{}, filter.NumRows())
	for row := 0; row < filter.NumRows(); row++ {
		drop[joinKey(filter, row, exactRight, fuzzyRight)] = struct{}{}
	}
	removed := 0
	t.FilterRows(func(row int) bool {
		if _, hit := drop[joinKey(t, row, exactLeft, fuzzyLeft)]; hit {
			removed++
			return false
		}
		return true
	})
	return removed, nil
}
