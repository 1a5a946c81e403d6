// Package index implements the inverted index used for candidate
// retrieval: tokens and whole field values map to the set of row indexes
// containing them.
package index

import (
	"github.com/covidschooldata/pipeline/internal/linkage/tokenizer"
	"github.com/covidschooldata/pipeline/internal/table"
)

// PostingSet is a set of row indexes into the indexed table.
type PostingSet map[int]struct{}

// Options controls index construction.
type Options struct {
	// KeyWholeValues also registers each row under the full untokenized
	// field value so exact matches short-circuit token retrieval.
	// Defaults on via New.
	KeyWholeValues bool
	// StopWords are tokens excluded from the index.
	StopWords map[string]struct{}
}

// Index maps token-or-whole-value strings to posting sets, per indexed
// field. Built once over a fixed table snapshot; immutable thereafter.
type Index struct {
	fields map[string]map[string]PostingSet
	opts   Options
}

// New builds an index over the given fields of a table with whole-value
// keying enabled.
func New(t *table.Table, fields []string) *Index {
	return NewWithOptions(t, fields, Options{KeyWholeValues: true})
}

// NewWithOptions builds an index with explicit options.
func NewWithOptions(t *table.Table, fields []string, opts Options) *Index {
	ix := &Index{fields: make(map[string]map[string]PostingSet), opts: opts}
	for _, field := range fields {
		postings := make(map[string]PostingSet)
		ix.fields[field] = postings
		c := t.Column(field)
		if c == nil {
			continue
		}
		for row, v := range c.Values {
			// Rows with empty cells are never indexed.
			if v.IsNull() || v.Kind != table.KindString || v.Str == "" {
				continue
			}
			for tok := range tokenizer.TokenSet(v.Str) {
				if _, stop := opts.StopWords[tok]; stop {
					continue
				}
				addPosting(postings, tok, row)
			}
			if opts.KeyWholeValues {
				addPosting(postings, v.Str, row)
			}
		}
	}
	return ix
}

func addPosting(postings map[string]PostingSet, key string, row int) {
	set, ok := postings[key]
	if !ok {
		set = make(PostingSet)
		postings[key] = set
	}
	set[row] = struct{}{}
}

// Lookup returns candidate rows for a query on one field. An exact match
// against the whole-value postings wins outright and bypasses token
// retrieval; otherwise the union of per-token posting sets is returned.
func (ix *Index) Lookup(query, field string) PostingSet {
	postings, ok := ix.fields[field]
	if !ok {
		return PostingSet{}
	}
	if exact, ok := postings[query]; ok && len(exact) > 0 {
		result := make(PostingSet, len(exact))
		for row := range exact {
			result[row] = struct{}{}
		}
		return result
	}
	result := make(PostingSet)
	for tok := range tokenizer.TokenSet(query) {
		for row := range postings[tok] {
			result[row] = struct{}{}
		}
	}
	return result
}
