// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize canonicalises entity strings for comparison.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize lowercases and trims s, replaces every rune that is neither
// a word character nor whitespace with a space, and collapses runs of
// whitespace. Canonicalize(Canonicalize(s)) == Canonicalize(s).
func Canonicalize(s string) string {
	return canonicalize(s, false)
}

// CanonicalizeASCII is Canonicalize restricted to [a-z0-9].
func CanonicalizeASCII(s string) string {
	return canonicalize(s, true)
}

func canonicalize(s string, asciiOnly bool) string {
	s = strings.ToLower(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keep(r, asciiOnly) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func keep(r rune, asciiOnly bool) bool {
	if asciiOnly {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
	}
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// Normalizer is the category-specific variant of Canonicalize with a
// stoplist applied to word sets.
type Normalizer struct {
	ASCIIOnly bool
	stop      map[string]bool
}

// New returns a Normalizer dropping stopwords from word sets.
func New(asciiOnly bool, stopwords ...string) Normalizer {
	stop := make(map[string]bool, len(stopwords))
	for _, w := range stopwords {
		stop[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return Normalizer{ASCIIOnly: asciiOnly, stop: stop}
}

// Canonical canonicalises s under the normalizer's alphabet.
func (n Normalizer) Canonical(s string) string {
	return canonicalize(s, n.ASCIIOnly)
}

// Words returns the word set of s without stopwords.
func (n Normalizer) Words(s string) map[string]struct{} {
	fields := strings.Fields(n.Canonical(s))
	out := make(map[string]struct{}, len(fields))
	for _, w := range fields {
		if n.stop[w] {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// Overlap returns the size of the intersection of a and b.
func Overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

// Covers reports whether super contains every word of sub. An empty sub is
// never covered.
func Covers(super, sub map[string]struct{}) bool {
	if len(sub) == 0 {
		return false
	}
	return Overlap(super, sub) == len(sub)
}

// Equal reports whether a and b hold the same non-empty word set.
func Equal(a, b map[string]struct{}) bool {
	return len(a) > 0 && len(a) == len(b) && Overlap(a, b) == len(a)
}

// Contains reports whether the canonical phrase occurs in the canonical
// text. Matches inside longer words count: "rail" occurs in "railway".
func Contains(text, phrase string) bool {
	return phrase != "" && strings.Contains(text, phrase)
}

var sentenceBreak = regexp.MustCompile(`[.?!]+\s+|\n+`)

// SplitSentences splits free text into trimmed, non-empty sentences on
// terminal punctuation followed by whitespace and on line breaks.
func SplitSentences(text string) []string {
	var out []string
	for _, s := range sentenceBreak.Split(text, -1) {
		s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".?!"))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
