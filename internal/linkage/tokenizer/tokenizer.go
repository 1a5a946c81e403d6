// Package tokenizer normalizes free-text institution names for matching.
// It lower-cases input and splits on runs of non-alphabetic characters;
// empty input yields an empty token list, never an error.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenize breaks text into lowercase alphabetic tokens.
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// Join returns the canonical space-joined token form of text, used by the
// edit-distance scorer so punctuation and case never contribute to the
// distance.
func Join(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// NormalizeKey collapses text into a single comparable join key: lowercase,
// alphanumeric runs only (digits retained), space-joined. Used when two
// fuzzy-matched columns must collapse to one key.
func NormalizeKey(text string) string {
	text = strings.ToLower(text)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}
	return strings.Join(fields, " ")
}
