// Package matcher resolves free-text institution names against a reference
// registry scoped to one state. Candidates come from the inverted index and
// are scored with the IDF-weighted Jaccard and Levenshtein ratio metrics
// combined by harmonic mean.
package matcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/covidschooldata/pipeline/internal/linkage/index"
	"github.com/covidschooldata/pipeline/internal/linkage/scorer"
	"github.com/covidschooldata/pipeline/internal/linkage/tokenizer"
	"github.com/covidschooldata/pipeline/internal/table"
	apperrors "github.com/covidschooldata/pipeline/pkg/errors"
)

const (
	// DefaultThreshold is the minimum combined score a candidate must
	// exceed to qualify.
	DefaultThreshold = 0.3
	// DefaultTopN is the number of qualifying candidates returned.
	DefaultTopN = 1
)

// Match is one scored reference row.
type Match struct {
	Row   int     `json:"row"`
	Score float64 `json:"score"`
}

// Cache memoizes final match decisions across runs. Implementations must
// treat a miss as (nil, false, nil). The index and scorers themselves are
// never cached; they are rebuilt fresh for every state.
type Cache interface {
	Get(ctx context.Context, scope, query string) ([]Match, bool, error)
	Put(ctx context.Context, scope, query string, matches []Match) error
}

// Config holds matching knobs. A zero Threshold keeps every scored
// candidate; the conventional DefaultThreshold is supplied by the
// application configuration, not coerced here, so zero stays expressible.
type Config struct {
	Threshold float64
	TopN      int
}

// Matcher scores queries against one field of a state-scoped reference
// table. Construct a fresh Matcher per state; the scorer corpus and index
// are built from state-scoped data.
type Matcher struct {
	ref      *table.Table
	field    string
	ix       *index.Index
	weighted *scorer.WeightedTokenJaccard
	lev      scorer.LevenshteinRatio
	cfg      Config
	cache    Cache
	scope    string
	logger   *slog.Logger
}

// New builds a matcher over the given field of the reference table. A
// reference table missing the field is a validation failure, never a
// panic further down.
func New(ref *table.Table, field string, cfg Config) (*Matcher, error) {
	c := ref.Column(field)
	if c == nil {
		return nil, apperrors.Newf(apperrors.ErrValidation,
			"reference table is missing match field %q", field)
	}
	if cfg.TopN == 0 {
		cfg.TopN = DefaultTopN
	}
	return &Matcher{
		ref:      ref,
		field:    field,
		ix:       index.New(ref, []string{field}),
		weighted: scorer.NewWeightedTokenJaccard(c),
		cfg:      cfg,
		logger:   slog.Default().With("component", "matcher"),
	}, nil
}

// WithCache attaches a cross-run match cache under the given scope key
// (typically the state abbreviation).
func (m *Matcher) WithCache(cache Cache, scope string) *Matcher {
	m.cache = cache
	m.scope = scope
	return m
}

// Match resolves a query to its qualifying reference rows, best first. A
// candidate whose combined score is exactly 1.0 wins outright and is
// returned alone. A zero sub-score means the metrics disagree completely;
// the candidate is discarded as a non-match before combination so the
// harmonic mean is never handed a zero.
func (m *Matcher) Match(ctx context.Context, query string) ([]Match, error) {
	if m.cache != nil {
		if cached, ok, err := m.cache.Get(ctx, m.scope, query); err == nil && ok {
			return cached, nil
		} else if err != nil {
			m.logger.Warn("match cache read failed", "error", err)
		}
	}

	candidates := m.ix.Lookup(query, m.field)
	rows := make([]int, 0, len(candidates))
	for row := range candidates {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	queryKey := tokenizer.Join(query)
	scored := make([]Match, 0, len(rows))
	for _, row := range rows {
		// Identical names win outright. Small state slices can give every
		// shared token zero IDF weight, which would otherwise discard even
		// a byte-identical candidate as a zero sub-score.
		if v := m.ref.Value(row, m.field); queryKey != "" && queryKey == tokenizer.Join(v.Format()) {
			return m.store(ctx, query, []Match{{Row: row, Score: 1.0}}), nil
		}
		ws, ok := scorer.ScoreCell(m.weighted, query, m.ref, m.field, row)
		if !ok {
			continue
		}
		ls, ok := scorer.ScoreCell(m.lev, query, m.ref, m.field, row)
		if !ok {
			continue
		}
		if ws == 0 || ls == 0 {
			continue
		}
		combined, err := scorer.HarmonicMean(ws, ls)
		if err != nil {
			if errors.Is(err, scorer.ErrZeroScore) {
				continue
			}
			return nil, err
		}
		if combined == 1.0 {
			return m.store(ctx, query, []Match{{Row: row, Score: combined}}), nil
		}
		if combined > m.cfg.Threshold {
			scored = append(scored, Match{Row: row, Score: combined})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > m.cfg.TopN {
		scored = scored[:m.cfg.TopN]
	}
	return m.store(ctx, query, scored), nil
}

func (m *Matcher) store(ctx context.Context, query string, matches []Match) []Match {
	if m.cache != nil {
		if err := m.cache.Put(ctx, m.scope, query, matches); err != nil {
			m.logger.Warn("match cache write failed", "error", err)
		}
	}
	return matches
}
