package domain

import (
	"errors"
	"fmt"
)

// Common domain errors.
var (
	// ErrNoParticipants indicates that a tournament was started without any
	// participants.
	ErrNoParticipants = errors.New("no participants configured")

	// ErrUnknownCategory indicates a riddle category outside word/arithmetic.
	ErrUnknownCategory = errors.New("unknown riddle category")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ParseError reports a riddle source response that could not be interpreted
// as a well-formed riddle record. It is retryable: another acquisition attempt
// may well succeed.
type ParseError struct {
	// Source names the participant or backend that produced the response.
	Source string
	// Reason describes what was wrong with the response.
	Reason string
	// Raw is the offending response, possibly truncated.
	Raw string
	// Err is the underlying decode or validation error, if any.
	Err error
}

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse riddle from %s: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError creates a ParseError. raw is truncated to keep log lines short.
func NewParseError(source, reason, raw string, err error) *ParseError {
	const maxRaw = 200
	if len(raw) > maxRaw {
		raw = raw[:maxRaw] + "..."
	}
	return &ParseError{Source: source, Reason: reason, Raw: raw, Err: err}
}

// IsParseError reports whether err, or any error it wraps, is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// ConfigurationError reports missing or malformed run configuration.
// It is the only error that aborts a run.
type ConfigurationError struct {
	// Path is the configuration file, when one was involved.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInvalidConfiguration) hold for every
// ConfigurationError.
func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidConfiguration }

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
