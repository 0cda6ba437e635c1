// Package matching implements the text comparisons the tournament relies on:
// the uniqueness filter that keeps a setter from repeating itself and the
// answer validator that decides whether a free-text answer matches a
// reference answer.
//
// Both components compare strings after the same normalization: Unicode case
// folding, punctuation removal, stop-word removal and whitespace collapsing.
// Everything in this package is stateless and safe for concurrent use.
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// foldCaser is a package-level Unicode case folder; casers are safe to reuse
// for String calls.
var foldCaser = cases.Fold()

// stopWords are dropped during normalization. The list covers articles,
// conjunctions, the interrogative "what" and the "I am" of riddle endings.
var stopWords = map[string]struct{}{
	"a":    {},
	"an":   {},
	"the":  {},
	"and":  {},
	"or":   {},
	"but":  {},
	"what": {},
	"i":    {},
	"am":   {},
}

// Normalize folds case, strips punctuation, removes stop words and joins the
// remaining tokens with single spaces. Letters, digits and underscores are
// word characters; everything else that is not whitespace is removed, so
// "forty-two" becomes "fortytwo".
func Normalize(s string) string {
	return strings.Join(Tokens(s), " ")
}

// Tokens returns the normalized tokens of s in order.
func Tokens(s string) []string {
	folded := foldCaser.String(s)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// tokenSet returns the distinct tokens of an already normalized string.
func tokenSet(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// sharedTokens counts tokens present in both sets.
func sharedTokens(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}

// digitRuns returns the maximal runs of ASCII digits in s, in order.
func digitRuns(s string) []string {
	var runs []string
	start := -1
	for i := 0; i < len(s); i++ {
		isDigit := s[i] >= '0' && s[i] <= '9'
		switch {
		case isDigit && start < 0:
			start = i
		case !isDigit && start >= 0:
			runs = append(runs, s[start:i])
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, s[start:])
	}
	return runs
}
