package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/covidschooldata/pipeline/internal/table"
	apperrors "github.com/covidschooldata/pipeline/pkg/errors"
)

func registry(t *testing.T, names ...string) *table.Table {
	t.Helper()
	tbl := table.New()
	values := make([]table.Value, len(names))
	ids := make([]table.Value, len(names))
	for i, n := range names {
		values[i] = table.String(n)
		ids[i] = table.String(string(rune('a' + i)))
	}
	if err := tbl.AddColumn(&table.Column{Name: "sch_name", Dtype: table.DtypeString, Values: values}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddColumn(&table.Column{Name: "ncessch", Dtype: table.DtypeString, Values: ids}); err != nil {
		t.Fatal(err)
	}
	return tbl
}

func mustMatcher(t *testing.T, ref *table.Table, cfg Config) *Matcher {
	t.Helper()
	m, err := New(ref, "sch_name", cfg)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNewMissingField(t *testing.T) {
	ref := table.New()
	if _, err := New(ref, "sch_name", Config{}); err == nil {
		t.Fatal("missing match field must be rejected")
	} else if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("error class = %v, want validation", err)
	}
}

func TestMatchPerfectShortCircuit(t *testing.T) {
	ref := registry(t,
		"Lincoln Elementary",
		"Lincoln Elementary School",
		"Washington High",
	)
	m := mustMatcher(t, ref, Config{})
	got, err := m.Match(context.Background(), "Lincoln Elementary")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("perfect match returned %d results, want 1", len(got))
	}
	if got[0].Row != 0 || got[0].Score != 1.0 {
		t.Errorf("got row %d score %v, want row 0 score 1.0", got[0].Row, got[0].Score)
	}
}

func TestMatchSingleRowRegistry(t *testing.T) {
	// A one-row state slice gives every token zero IDF weight; an
	// identical name must still come back as the perfect match.
	ref := registry(t, "Lincoln Elementary")
	m := mustMatcher(t, ref, Config{})
	got, err := m.Match(context.Background(), "LINCOLN Elementary!")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("identical name returned %d results, want 1", len(got))
	}
	if got[0].Row != 0 || got[0].Score != 1.0 {
		t.Errorf("got row %d score %v, want row 0 score 1.0", got[0].Row, got[0].Score)
	}
}

func TestMatchNoCandidates(t *testing.T) {
	ref := registry(t, "Lincoln Elementary", "Washington High")
	m := mustMatcher(t, ref, Config{})
	got, err := m.Match(context.Background(), "Jefferson Academy")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("disjoint query returned %v", got)
	}
}

func TestMatchTopN(t *testing.T) {
	ref := registry(t,
		"Lincoln Elementary North",
		"Lincoln Elementary South",
		"Lincoln Elementary East",
		"Washington High",
	)
	m := mustMatcher(t, ref, Config{TopN: 2})
	got, err := m.Match(context.Background(), "Lincoln Elementary")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("topN=2 returned %d results: %v", len(got), got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("results not sorted descending: %v", got)
		}
	}
}

func TestMatchThreshold(t *testing.T) {
	ref := registry(t,
		"Lincoln Washington Jefferson Roosevelt Academy Building",
		"Other School",
	)
	m := mustMatcher(t, ref, Config{Threshold: 0.99, TopN: 5})
	got, err := m.Match(context.Background(), "Lincoln School")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("scores below threshold still returned: %v", got)
	}
}

func TestMatchZeroThreshold(t *testing.T) {
	// Zero is a real threshold, not "unset": every scored candidate
	// qualifies, including ones the conventional 0.3 cutoff would drop.
	ref := registry(t,
		"Lincoln Washington Jefferson Roosevelt Academy Building",
		"Other School",
	)
	m := mustMatcher(t, ref, Config{Threshold: 0, TopN: 5})
	got, err := m.Match(context.Background(), "Lincoln School")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("zero threshold returned %d results, want both candidates: %v", len(got), got)
	}
}

type fakeCache struct {
	store map[string][]Match
	puts  int
}

func newFakeCache() *fakeCache { return &fakeCache{store: make(map[string][]Match)} }

func (c *fakeCache) Get(_ context.Context, scope, query string) ([]Match, bool, error) {
	m, ok := c.store[scope+"|"+query]
	return m, ok, nil
}

func (c *fakeCache) Put(_ context.Context, scope, query string, matches []Match) error {
	c.store[scope+"|"+query] = matches
	c.puts++
	return nil
}

func TestMatchCache(t *testing.T) {
	ref := registry(t, "Lincoln Elementary")
	cache := newFakeCache()
	m := mustMatcher(t, ref, Config{}).WithCache(cache, "CO:sch_name")

	first, err := m.Match(context.Background(), "Lincoln Elementary")
	if err != nil {
		t.Fatal(err)
	}
	if cache.puts != 1 {
		t.Fatalf("expected 1 cache write, got %d", cache.puts)
	}
	second, err := m.Match(context.Background(), "Lincoln Elementary")
	if err != nil {
		t.Fatal(err)
	}
	if cache.puts != 1 {
		t.Errorf("cache hit still wrote (%d writes)", cache.puts)
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Errorf("cached result diverged: %v vs %v", first, second)
	}
}

func TestAppendMatches(t *testing.T) {
	ref := registry(t, "Lincoln Elementary", "Washington High")

	src := table.New()
	if err := src.AddColumn(&table.Column{
		Name:  "SchoolName",
		Dtype: table.DtypeString,
		Values: []table.Value{
			table.String("Lincoln Elementary"),
			table.String("Jefferson Academy"),
		},
	}); err != nil {
		t.Fatal(err)
	}

	m := mustMatcher(t, ref, Config{})
	out, err := AppendMatches(context.Background(), src, "SchoolName", m)
	if err != nil {
		t.Fatal(err)
	}

	// Every source row survives, matched or not.
	if out.NumRows() != 2 {
		t.Fatalf("output has %d rows, want 2", out.NumRows())
	}
	for _, name := range []string{"SchoolName", "sch_name", "ncessch", MatchScoreColumn} {
		if !out.HasColumn(name) {
			t.Errorf("output missing column %q", name)
		}
	}
	if got := out.Value(0, "ncessch").Format(); got != "a" {
		t.Errorf("matched row carries id %q, want %q", got, "a")
	}
	if got := out.Value(0, MatchScoreColumn); got.Float != 1.0 {
		t.Errorf("matched score = %v, want 1.0", got.Float)
	}
	if !out.Value(1, "ncessch").IsNull() {
		t.Error("unmatched row should carry null reference fields")
	}
	if !out.Value(1, MatchScoreColumn).IsNull() {
		t.Error("unmatched row should carry a null score")
	}
}

func TestAppendMatchesMissingColumn(t *testing.T) {
	ref := registry(t, "Lincoln Elementary")
	src := table.New()
	m := mustMatcher(t, ref, Config{})
	if _, err := AppendMatches(context.Background(), src, "SchoolName", m); err == nil {
		t.Error("expected error for missing query column")
	}
}
