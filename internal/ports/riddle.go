package ports

import (
	"context"

	"github.com/ahrav/go-riddler/internal/domain"
)

// RiddleSource is the capability every participant's backend exposes to the
// tournament. Raw response handling stays behind this boundary.
type RiddleSource interface {
	// Acquire asks the backend for a riddle of the given category.
	// A backend failure is returned as a provider error; a response that
	// cannot be read as a riddle record is returned as *domain.ParseError.
	Acquire(ctx context.Context, category domain.Category) (domain.Riddle, error)

	// Solve asks the backend to answer prompt and returns its free-text
	// response.
	Solve(ctx context.Context, prompt string) (string, error)
}

// SourceResolver maps a participant to its riddle source.
type SourceResolver interface {
	// Resolve returns the source for p, or an error if the participant's
	// backend cannot be constructed (missing key, unknown provider).
	Resolve(p domain.Participant) (RiddleSource, error)
}

// SourceResolverFunc adapts a function to SourceResolver.
type SourceResolverFunc func(p domain.Participant) (RiddleSource, error)

// Resolve calls f(p).
func (f SourceResolverFunc) Resolve(p domain.Participant) (RiddleSource, error) { return f(p) }
