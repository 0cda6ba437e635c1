// Package domain contains the core records of a riddle tournament: riddles,
// participants, per-match results and the scoreboard derived from them.
// Types in this package carry no I/O and are safe to share by value.
package domain

import (
	"fmt"
	"strings"
)

// Category classifies a riddle by the kind of answer it expects.
type Category string

const (
	// CategoryWord is an open-ended riddle with a free-text answer.
	CategoryWord Category = "word"
	// CategoryArithmetic is a numeric problem whose answer is a number.
	CategoryArithmetic Category = "arithmetic"
)

// Categories lists every category in report order.
var Categories = []Category{CategoryWord, CategoryArithmetic}

// ParseCategory converts a wire value into a Category. "math" is accepted as
// an alias for arithmetic; anything else unknown wraps ErrUnknownCategory.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "word":
		return CategoryWord, nil
	case "arithmetic", "math":
		return CategoryArithmetic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c == CategoryWord || c == CategoryArithmetic
}

// String implements fmt.Stringer.
func (c Category) String() string { return string(c) }

// CategoryForRound returns the category of a setter's round. The first half
// of the rounds (rounded down) are word riddles, the remainder arithmetic, so
// an odd count gives the extra round to arithmetic. round is zero-based.
func CategoryForRound(round, roundsPerParticipant int) Category {
	if round < roundsPerParticipant/2 {
		return CategoryWord
	}
	return CategoryArithmetic
}

// RoundsOf returns how many of a setter's rounds belong to category c.
func RoundsOf(c Category, roundsPerParticipant int) int {
	word := roundsPerParticipant / 2
	if c == CategoryWord {
		return word
	}
	return roundsPerParticipant - word
}

// Riddle is a single riddle record produced by a riddle source.
// It is immutable once accepted by the tournament.
type Riddle struct {
	// Category is the kind of riddle.
	Category Category `json:"category"`
	// Prompt is the riddle text posed to solvers.
	Prompt string `json:"riddle" validate:"required"`
	// Answer is the reference answer. For arithmetic riddles it is a
	// numeric literal.
	Answer string `json:"answer" validate:"required"`
	// Explanation optionally shows how the answer is derived.
	Explanation string `json:"solution,omitempty"`
}

// Participant is one configured text-generation backend.
type Participant struct {
	// ID identifies the participant in results and reports.
	ID string `yaml:"id" validate:"required,min=1,max=64"`
	// Model selects the backend as "provider/model".
	Model string `yaml:"model" validate:"required,modelformat"`
}

// String implements fmt.Stringer.
func (p Participant) String() string { return p.ID }

// MatchResult is the outcome of one solver attempting one riddle.
// Results are appended to the ledger in play order and never modified.
type MatchResult struct {
	// Round is the 1-based round number within the setter's turn.
	Round int
	// Category is the riddle category.
	Category Category
	// Setter posed the riddle.
	Setter Participant
	// Solver attempted the riddle. Never equal to Setter.
	Solver Participant
	// Prompt is the riddle text.
	Prompt string
	// ReferenceAnswer is the setter's answer.
	ReferenceAnswer string
	// Explanation is the setter's worked solution, if any.
	Explanation string
	// GivenAnswer is the solver's raw response.
	GivenAnswer string
	// Correct reports whether GivenAnswer matched ReferenceAnswer.
	Correct bool
}
