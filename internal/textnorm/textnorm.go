// Package textnorm is the shared text normalization used when comparing
// corrected values against document tokens: alignment, feedback correctness
// checks and evaluation all go through the same rules so that a value judged
// "correct" is exactly a value the aligner would have matched.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases s, strips diacritics and punctuation, and collapses
// interior whitespace to single spaces. OCR noise like "Renée," and "renee"
// normalize to the same form.
func Normalize(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// punctuation and symbols are dropped outright
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Equivalent reports whether two strings are equal under Normalize.
func Equivalent(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Fields splits s on whitespace after trimming, preserving raw token text.
// Empty input yields nil.
func Fields(s string) []string {
	return strings.Fields(s)
}
