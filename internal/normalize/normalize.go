// Package normalize canonicalizes merchant descriptors for rule matching.
// Rule patterns and transaction descriptors are compared only in their
// normalized forms, so two descriptors that normalize identically are the
// same merchant as far as the resolver is concerned.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UnknownPattern is returned by SuggestPattern when there is no text to
// derive a pattern from.
const UnknownPattern = "UNKNOWN"

// DefaultPatternMaxChars caps the length of suggested patterns so that
// auto-learned rules stay short and mergeable.
const DefaultPatternMaxChars = 15

// noiseChars are punctuation characters that bank processors sprinkle into
// descriptors; each is folded to a space before whitespace collapsing.
const noiseChars = `*-_/.,;:!?'"`

// stripMarks decomposes text and drops combining marks, removing diacritics.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize canonicalizes free text for matching: trim, uppercase, strip
// diacritics, fold noise punctuation to spaces, collapse whitespace runs.
// Deterministic and idempotent; empty input yields the empty string.
func Normalize(s string) string {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return ""
	}

	if stripped, _, err := transform.String(stripMarks, t); err == nil {
		t = stripped
	}

	t = strings.Map(func(r rune) rune {
		if strings.ContainsRune(noiseChars, r) {
			return ' '
		}
		return r
	}, t)

	return strings.Join(strings.Fields(t), " ")
}

// SuggestPattern derives a short matching pattern from a normalized
// descriptor for an auto-learned rule. It takes the first two alphabetic
// tokens; if none exist it falls back to the first maxChars characters of
// the text, and to UnknownPattern when there is no text at all.
func SuggestPattern(normalized string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultPatternMaxChars
	}
	if normalized == "" {
		return UnknownPattern
	}

	var words []string
	for _, w := range strings.Fields(normalized) {
		if isAlpha(w) {
			words = append(words, w)
			if len(words) == 2 {
				break
			}
		}
	}

	if len(words) == 0 {
		return truncate(normalized, maxChars)
	}
	return truncate(strings.Join(words, " "), maxChars)
}

// isAlpha reports whether every rune in s is a letter.
func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// truncate caps s at max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
