// Package scorer provides the pluggable similarity metrics used for name
// matching: token Jaccard, IDF-weighted token Jaccard, and Levenshtein
// ratio, plus the harmonic-mean combiner.
package scorer

import (
	"errors"
	"fmt"
	"math"

	levenshtein "github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/covidschooldata/pipeline/internal/linkage/tokenizer"
	"github.com/covidschooldata/pipeline/internal/table"
)

// Scorer scores a query text against a result text in [0, 1].
type Scorer interface {
	Score(query, result string) float64
}

// ScoreCell scores a query against one cell of a table column. An empty or
// null cell yields no score (ok false), not a zero.
func ScoreCell(s Scorer, query string, t *table.Table, field string, row int) (float64, bool) {
	v := t.Value(row, field)
	if v.IsNull() || v.Format() == "" {
		return 0, false
	}
	return s.Score(query, v.Format()), true
}

// TokenJaccard scores by Jaccard similarity of token sets.
type TokenJaccard struct{}

func (TokenJaccard) Score(query, result string) float64 {
	a := tokenizer.TokenSet(query)
	b := tokenizer.TokenSet(result)
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// WeightedTokenJaccard scores by Jaccard similarity with each token
// weighted by its inverse document frequency in a reference corpus. Built
// once against a column of candidate values, immutable thereafter.
type WeightedTokenJaccard struct {
	tokenFrequency map[string]int
	totalDocuments int
}

// NewWeightedTokenJaccard builds the document-frequency table from every
// cell of the given column.
func NewWeightedTokenJaccard(c *table.Column) *WeightedTokenJaccard {
	w := &WeightedTokenJaccard{tokenFrequency: make(map[string]int)}
	for _, v := range c.Values {
		w.totalDocuments++
		if v.IsNull() {
			continue
		}
		for _, tok := range tokenizer.Tokenize(v.Format()) {
			w.tokenFrequency[tok]++
		}
	}
	return w
}

// IDF returns ln(N / freq) with the frequency floored at 1 for unseen
// tokens.
func (w *WeightedTokenJaccard) IDF(token string) float64 {
	freq := w.tokenFrequency[token]
	if freq < 1 {
		freq = 1
	}
	return math.Log(float64(w.totalDocuments) / float64(freq))
}

func (w *WeightedTokenJaccard) Score(query, result string) float64 {
	a := tokenizer.TokenSet(query)
	b := tokenizer.TokenSet(result)
	var numerator float64
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
			numerator += w.IDF(tok)
		}
	}
	if intersection == 0 {
		return 0
	}
	denominator := 0.0
	for tok := range a {
		denominator += w.IDF(tok)
	}
	for tok := range b {
		if _, ok := a[tok]; !ok {
			denominator += w.IDF(tok)
		}
	}
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// LevenshteinRatio scores by normalized edit-distance similarity of the
// token-rejoined strings; 1.0 means identical.
type LevenshteinRatio struct{}

func (LevenshteinRatio) Score(query, result string) float64 {
	q := []rune(tokenizer.Join(query))
	r := []rune(tokenizer.Join(result))
	if len(q) == 0 && len(r) == 0 {
		return 1.0
	}
	return levenshtein.RatioForStrings(q, r, levenshtein.DefaultOptions)
}

// ErrZeroScore is returned by HarmonicMean when a component score is
// exactly zero, where the harmonic mean is undefined. Callers treat a zero
// sub-score as no-match before combining.
var ErrZeroScore = errors.New("harmonic mean undefined for zero score")

// HarmonicMean combines component scores such that all must be high for
// the result to be high.
func HarmonicMean(scores ...float64) (float64, error) {
	if len(scores) == 0 {
		return 0, errors.New("harmonic mean of no scores")
	}
	var reciprocals float64
	for _, s := range scores {
		if s == 0 {
			return 0, fmt.Errorf("%w: %v", ErrZeroScore, scores)
		}
		reciprocals += 1 / s
	}
	return float64(len(scores)) / reciprocals, nil
}
