// Package matchrun drives statewise fuzzy matching: it groups an input
// case table by state, builds a fresh matcher over the state's slice of
// the reference registry, and concatenates the per-state match tables.
package matchrun

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/covidschooldata/pipeline/internal/linkage/matcher"
	"github.com/covidschooldata/pipeline/internal/nces"
	"github.com/covidschooldata/pipeline/internal/table"
	apperrors "github.com/covidschooldata/pipeline/pkg/errors"
	"github.com/covidschooldata/pipeline/pkg/metrics"
)

// Options configures a statewise match run.
type Options struct {
	// StateColumn holds the two-letter state abbreviation in the input.
	StateColumn string
	// StateNameColumn names an optional column holding the full state
	// name; when present each row's name must agree with its
	// abbreviation. Empty means "State".
	StateNameColumn string
	// QueryColumn holds the institution name to resolve.
	QueryColumn string
	// RefField is the registry column matched against.
	RefField string
	// Matching carries threshold and top-N.
	Matching matcher.Config
	// Cache is the optional cross-run match cache.
	Cache matcher.Cache
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Run matches every input row's query value against the registry slice
// for that row's state. Input state abbreviations must all be known;
// an unknown abbreviation fails the whole run before any matching.
func Run(ctx context.Context, src, registry *table.Table, opts Options) (*table.Table, error) {
	sc := src.Column(opts.StateColumn)
	if sc == nil {
		return nil, apperrors.Newf(apperrors.ErrValidation,
			"input is missing state column %q", opts.StateColumn)
	}
	nameColumn := opts.StateNameColumn
	if nameColumn == "" {
		nameColumn = "State"
	}
	names := src.Column(nameColumn)
	states := make([]string, 0, 4)
	seen := make(map[string]struct{})
	for row, v := range sc.Values {
		if v.IsNull() {
			return nil, apperrors.Newf(apperrors.ErrValidation,
				"null state abbreviation in column %q", opts.StateColumn)
		}
		abbrev := v.Format()
		if _, ok := nces.StateNames[abbrev]; !ok {
			return nil, apperrors.Newf(apperrors.ErrValidation,
				"unknown state abbreviation %q in column %q", abbrev, opts.StateColumn)
		}
		if names != nil {
			if nv := names.Values[row]; !nv.IsNull() && nv.Format() != nces.StateNames[abbrev] {
				return nil, apperrors.Newf(apperrors.ErrValidation,
					"state name %q in column %q does not match abbreviation %q (%s)",
					nv.Format(), nameColumn, abbrev, nces.StateNames[abbrev])
			}
		}
		if _, ok := seen[abbrev]; !ok {
			seen[abbrev] = struct{}{}
			states = append(states, abbrev)
		}
	}

	logger := slog.Default().With("component", "matchrun")
	var out *table.Table
	for _, abbrev := range states {
		subset := selectRows(src, func(row int) bool {
			return sc.Values[row].Format() == abbrev
		})
		refState := nces.FilterState(registry, abbrev)
		if refState.NumRows() == 0 {
			logger.Warn("registry has no rows for state", "state", abbrev)
		}
		m, err := matcher.New(refState, opts.RefField, opts.Matching)
		if err != nil {
			return nil, err
		}
		if opts.Cache != nil {
			m.WithCache(opts.Cache, abbrev+":"+opts.RefField)
		}
		matched, err := matcher.AppendMatches(ctx, subset, opts.QueryColumn, m)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", abbrev, err)
		}
		logger.Info("matched state", "state", abbrev, "rows", subset.NumRows())
		observe(opts.Metrics, matched)
		if out == nil {
			out = matched
		} else {
			out.AppendRows(matched)
		}
	}
	if out == nil {
		out = table.New()
	}
	return out, nil
}

// selectRows returns a fresh table holding only rows where keep is true.
func selectRows(t *table.Table, keep func(row int) bool) *table.Table {
	out := table.New()
	for _, c := range t.Columns() {
		_ = out.AddColumn(&table.Column{Name: c.Name, Dtype: c.Dtype})
	}
	for row := 0; row < t.NumRows(); row++ {
		if !keep(row) {
			continue
		}
		for _, c := range t.Columns() {
			oc := out.Column(c.Name)
			oc.Values = append(oc.Values, c.Values[row])
		}
	}
	return out
}

// observe records match outcomes: a null score is a miss, 1.0 is exact,
// anything else is a fuzzy hit.
func observe(m *metrics.Metrics, matched *table.Table) {
	if m == nil {
		return
	}
	sc := matched.Column(matcher.MatchScoreColumn)
	if sc == nil {
		return
	}
	for _, v := range sc.Values {
		switch {
		case v.IsNull():
			m.MatchesTotal.WithLabelValues("none").Inc()
		case v.Float == 1.0:
			m.MatchesTotal.WithLabelValues("exact").Inc()
			m.MatchScore.Observe(v.Float)
		default:
			m.MatchesTotal.WithLabelValues("fuzzy").Inc()
			m.MatchScore.Observe(v.Float)
		}
	}
}
