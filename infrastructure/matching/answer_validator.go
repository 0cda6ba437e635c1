package matching

import (
	"fmt"
	"slices"

	"github.com/ahrav/go-riddler/internal/domain"
)

// ValidatorConfig controls how word answers are compared.
type ValidatorConfig struct {
	// Algorithm selects the similarity measure for word riddles.
	Algorithm Algorithm `yaml:"algorithm" json:"algorithm" validate:"required,oneof=lcs levenshtein"`

	// WordThreshold is the similarity a word answer must exceed.
	WordThreshold float64 `yaml:"word_threshold" json:"word_threshold" validate:"gt=0,lte=1"`
}

// DefaultValidatorConfig returns LCS similarity with a 0.8 threshold.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		Algorithm:     AlgorithmLCS,
		WordThreshold: 0.8,
	}
}

// AnswerValidator decides whether a solver's answer matches the reference.
// Arithmetic answers compare the ordered integer tokens of both strings; word
// answers compare normalized text by similarity. There is no partial credit.
type AnswerValidator struct {
	config ValidatorConfig
}

// NewAnswerValidator validates config and returns a validator.
func NewAnswerValidator(config ValidatorConfig) (*AnswerValidator, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &AnswerValidator{config: config}, nil
}

// IsCorrect reports whether given is equivalent to reference for category.
// It returns domain.ErrUnknownCategory for anything but word and arithmetic.
func (v *AnswerValidator) IsCorrect(given, reference string, category domain.Category) (bool, error) {
	g, r := Normalize(given), Normalize(reference)

	switch category {
	case domain.CategoryArithmetic:
		// Both sides without digits compare equal; the reference of an
		// arithmetic riddle always carries at least one.
		return slices.Equal(digitRuns(g), digitRuns(r)), nil
	case domain.CategoryWord:
		score, err := Similarity(v.config.Algorithm, g, r)
		if err != nil {
			return false, err
		}
		return score > v.config.WordThreshold, nil
	default:
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}
}
