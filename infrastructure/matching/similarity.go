package matching

import (
	"fmt"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Algorithm names a character-level similarity measure.
type Algorithm string

const (
	// AlgorithmLCS scores 2·LCS/(|a|+|b|) over runes, where LCS is the length
	// of the longest common subsequence.
	AlgorithmLCS Algorithm = "lcs"
	// AlgorithmLevenshtein scores 1 - distance/max(|a|,|b|) over runes.
	AlgorithmLevenshtein Algorithm = "levenshtein"
)

// Similarity returns the similarity ratio of a and b in [0, 1] using alg.
// Two empty strings are identical.
func Similarity(alg Algorithm, a, b string) (float64, error) {
	switch alg {
	case AlgorithmLCS, "":
		return LCSRatio(a, b), nil
	case AlgorithmLevenshtein:
		return LevenshteinRatio(a, b), nil
	default:
		return 0, fmt.Errorf("unknown similarity algorithm %q", alg)
	}
}

// LCSRatio returns 2·M/T where M is the longest common subsequence of the
// rune sequences of a and b and T is their combined rune length.
func LCSRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2 * float64(lcsLength(ra, rb)) / float64(total)
}

// lcsLength computes the LCS length with two rolling rows.
func lcsLength(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// LevenshteinRatio normalizes the Levenshtein edit distance by the longer
// rune length.
func LevenshteinRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}

	// The distance operates on runes, so the bound must too.
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}

	similarity := 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
	if similarity < 0 {
		similarity = 0
	}
	return similarity
}
