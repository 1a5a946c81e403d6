package scorer

import (
	"errors"
	"math"
	"testing"

	"github.com/covidschooldata/pipeline/internal/table"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTokenJaccard(t *testing.T) {
	var s TokenJaccard
	tests := []struct {
		name          string
		query, result string
		want          float64
	}{
		{"identical", "Lincoln Elementary", "Lincoln Elementary", 1.0},
		{"case and punctuation ignored", "lincoln elementary!", "LINCOLN Elementary", 1.0},
		{"disjoint", "Washington High", "Lincoln Elementary", 0},
		{"half overlap", "lincoln high", "lincoln elementary school high", 0.5},
		{"both empty", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.query, tt.result)
			if !almostEqual(got, tt.want) {
				t.Errorf("Score(%q, %q) = %v, want %v", tt.query, tt.result, got, tt.want)
			}
			// Jaccard is symmetric.
			if rev := s.Score(tt.result, tt.query); !almostEqual(got, rev) {
				t.Errorf("asymmetric: %v vs %v", got, rev)
			}
		})
	}
}

func corpusColumn(values ...string) *table.Column {
	c := &table.Column{Name: "name", Dtype: table.DtypeString}
	for _, v := range values {
		c.Values = append(c.Values, table.String(v))
	}
	return c
}

func TestWeightedTokenJaccard(t *testing.T) {
	// "school" appears in every document, so it carries zero weight.
	w := NewWeightedTokenJaccard(corpusColumn(
		"lincoln school",
		"washington school",
		"jefferson school",
	))

	if idf := w.IDF("school"); !almostEqual(idf, 0) {
		t.Errorf("IDF of ubiquitous token = %v, want 0", idf)
	}
	if idf := w.IDF("lincoln"); !almostEqual(idf, math.Log(3)) {
		t.Errorf("IDF(lincoln) = %v, want ln(3)", idf)
	}
	// Unseen tokens are floored at frequency 1.
	if idf := w.IDF("zzz"); !almostEqual(idf, math.Log(3)) {
		t.Errorf("IDF of unseen token = %v, want ln(3)", idf)
	}

	// Sharing only the worthless token scores zero.
	if got := w.Score("roosevelt school", "lincoln school"); !almostEqual(got, 0) {
		t.Errorf("score sharing only zero-weight token = %v, want 0", got)
	}
	// The rare shared token dominates the common missing one.
	rare := w.Score("lincoln", "lincoln school")
	if !almostEqual(rare, 1.0) {
		t.Errorf("rare-token score = %v, want 1.0 (only weighted token shared)", rare)
	}
}

func TestLevenshteinRatio(t *testing.T) {
	var s LevenshteinRatio
	if got := s.Score("Lincoln Elementary", "lincoln elementary"); !almostEqual(got, 1.0) {
		t.Errorf("case-insensitive identical = %v, want 1.0", got)
	}
	if got := s.Score("", ""); !almostEqual(got, 1.0) {
		t.Errorf("both empty = %v, want 1.0", got)
	}
	got := s.Score("lincoln", "lincon")
	if got <= 0.8 || got >= 1.0 {
		t.Errorf("one-edit score = %v, want in (0.8, 1.0)", got)
	}
}

func TestScoreCell(t *testing.T) {
	tbl := table.New()
	if err := tbl.AddColumn(&table.Column{
		Name:  "name",
		Dtype: table.DtypeString,
		Values: []table.Value{
			table.String("lincoln"),
			table.Null(),
			table.String(""),
		},
	}); err != nil {
		t.Fatal(err)
	}
	var s TokenJaccard
	if got, ok := ScoreCell(s, "lincoln", tbl, "name", 0); !ok || !almostEqual(got, 1.0) {
		t.Errorf("row 0 = (%v, %v), want (1.0, true)", got, ok)
	}
	if _, ok := ScoreCell(s, "lincoln", tbl, "name", 1); ok {
		t.Error("null cell produced a score")
	}
	if _, ok := ScoreCell(s, "lincoln", tbl, "name", 2); ok {
		t.Error("empty cell produced a score")
	}
}

func TestHarmonicMean(t *testing.T) {
	got, err := HarmonicMean(1.0, 1.0)
	if err != nil || !almostEqual(got, 1.0) {
		t.Errorf("HarmonicMean(1,1) = (%v, %v), want (1.0, nil)", got, err)
	}
	got, err = HarmonicMean(0.5, 1.0)
	if err != nil || !almostEqual(got, 2.0/3.0) {
		t.Errorf("HarmonicMean(0.5,1) = (%v, %v), want (2/3, nil)", got, err)
	}
	if _, err := HarmonicMean(0.7, 0); !errors.Is(err, ErrZeroScore) {
		t.Errorf("zero component error = %v, want ErrZeroScore", err)
	}
	if _, err := HarmonicMean(); err == nil {
		t.Error("no scores should be an error")
	}
}
