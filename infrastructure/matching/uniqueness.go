package matching

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Package-level validator instance for configuration validation.
var validate = validator.New()

// UniquenessConfig holds the two duplicate tripwires.
type UniquenessConfig struct {
	// MinSharedTokens is the number of distinct normalized tokens a candidate
	// may share with a previous riddle before it counts as a duplicate.
	MinSharedTokens int `yaml:"min_shared_tokens" json:"min_shared_tokens" validate:"min=1,max=100"`

	// SimilarityThreshold is the LCS ratio above which a candidate counts as
	// a duplicate.
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold" validate:"gt=0,lte=1"`
}

// DefaultUniquenessConfig returns three shared tokens and a 0.6 ratio.
func DefaultUniquenessConfig() UniquenessConfig {
	return UniquenessConfig{
		MinSharedTokens:     3,
		SimilarityThreshold: 0.6,
	}
}

// UniquenessFilter decides whether a candidate riddle repeats one already
// used. It only knows about text; callers decide which categories it applies
// to.
type UniquenessFilter struct {
	config UniquenessConfig
}

// NewUniquenessFilter validates config and returns a filter.
func NewUniquenessFilter(config UniquenessConfig) (*UniquenessFilter, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &UniquenessFilter{config: config}, nil
}

// IsDuplicate reports whether candidate is too close to any entry of history.
// Either tripwire is enough: at least MinSharedTokens shared normalized
// tokens, or an LCS ratio above SimilarityThreshold.
func (f *UniquenessFilter) IsDuplicate(candidate string, history []string) bool {
	_, dup := f.FirstMatch(candidate, history)
	return dup
}

// FirstMatch is IsDuplicate that also returns the index of the first history
// entry that tripped the filter, or -1.
func (f *UniquenessFilter) FirstMatch(candidate string, history []string) (int, bool) {
	norm := Normalize(candidate)
	tokens := tokenSet(norm)

	for i, prior := range history {
		priorNorm := Normalize(prior)
		if sharedTokens(tokens, tokenSet(priorNorm)) >= f.config.MinSharedTokens {
			return i, true
		}
		if LCSRatio(norm, priorNorm) > f.config.SimilarityThreshold {
			return i, true
		}
	}
	return -1, false
}
