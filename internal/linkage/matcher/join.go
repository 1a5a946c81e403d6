package matcher

import (
	"context"
	"fmt"

	"github.com/covidschooldata/pipeline/internal/table"
)

// MatchScoreColumn is the name of the appended combined-score column.
const MatchScoreColumn = "match_score"

// AppendMatches matches every value of queryColumn in src against the
// matcher's reference table and returns a new table holding the source
// columns, the reference columns, and match_score. Every source row
// produces at least one output row; unmatched queries carry null reference
// fields and a null score. A source row with several qualifying candidates
// produces one output row per candidate.
func AppendMatches(ctx context.Context, src *table.Table, queryColumn string, m *Matcher) (*table.Table, error) {
	qc := src.Column(queryColumn)
	if qc == nil {
		return nil, fmt.Errorf("input is missing query column %q", queryColumn)
	}

	out := table.New()
	for _, c := range src.Columns() {
		if err := out.AddColumn(&table.Column{Name: c.Name, Dtype: c.Dtype}); err != nil {
			return nil, err
		}
	}
	refNames := make(map[string]string, m.ref.NumCols())
	for _, c := range m.ref.Columns() {
		name := c.Name
		if out.HasColumn(name) {
			name = "nces_" + name
		}
		refNames[c.Name] = name
		if err := out.AddColumn(&table.Column{Name: name, Dtype: c.Dtype}); err != nil {
			return nil, err
		}
	}
	if err := out.AddColumn(&table.Column{Name: MatchScoreColumn, Dtype: table.DtypeFloat}); err != nil {
		return nil, err
	}

	appendRow := func(srcRow, refRow int, score table.Value) {
		for _, c := range src.Columns() {
			oc := out.Column(c.Name)
			oc.Values = append(oc.Values, c.Values[srcRow])
		}
		for _, c := range m.ref.Columns() {
			oc := out.Column(refNames[c.Name])
			if refRow < 0 {
				oc.Values = append(oc.Values, table.Null())
			} else {
				oc.Values = append(oc.Values, c.Values[refRow])
			}
		}
		sc := out.Column(MatchScoreColumn)
		sc.Values = append(sc.Values, score)
	}

	for row := 0; row < src.NumRows(); row++ {
		query := qc.Values[row].Format()
		matches, err := m.Match(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("matching %q: %w", query, err)
		}
		if len(matches) == 0 {
			appendRow(row, -1, table.Null())
			continue
		}
		for _, match := range matches {
			appendRow(row, match.Row, table.Float(match.Score))
		}
	}
	return out, nil
}
