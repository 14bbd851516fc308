// Package fuzzy provides text normalization and lexical similarity for comparing track metadata
// across catalogs.
package fuzzy

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"
)

// featRegex matches featured-artist markers. Periods are already gone when it runs,
// so "feat." and "ft." are covered by the bare forms.
var featRegex = regexp.MustCompile(`feat|ft`)

// Normalize canonicalizes a title or author for comparison: lowercase, without
// featured-artist markers, without characters other than letters, digits and
// whitespace, and trimmed.
//
// Normalize is idempotent. Marker removal is repeated until none is left, so text
// such as "fefeatat" cannot turn into a fresh marker on a second pass.
func Normalize(text string) string {
	text = strings.ToLower(norm.NFC.String(text))

	var result strings.Builder
	result.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	for featRegex.MatchString(text) {
		text = featRegex.ReplaceAllString(text, "")
	}

	// Removing a marker can join runes that compose, such as Hangul jamo.
	return strings.TrimSpace(norm.NFC.String(text))
}

// Words splits normalized text on whitespace into a set of distinct, non-empty words.
func Words(text string) map[string]struct{} {
	fields := strings.Fields(text)
	words := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		words[f] = struct{}{}
	}
	return words
}

// Similarity returns a value between 0.0 (completely different) and 1.0 (identical)
// derived from the Levenshtein distance between a and b. Lengths are counted in runes.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	longer := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longer == 0 {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return float64(longer-distance) / float64(longer)
}

// WithinTolerance reports whether candidate lies within fraction of reference.
// The window scales with the reference; there is no absolute floor.
func WithinTolerance(reference, candidate time.Duration, fraction float64) bool {
	allowed := float64(reference) * fraction
	return float64(abs(int64(candidate-reference))) <= allowed
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
