package llm

import (
	"cmp"
	"fmt"
	"net/url"
	"time"
)

// Request parameter bounds shared by the backends.
const (
	// DefaultMaxTokens caps a completion when the caller does not. Riddles and
	// answers are short; the setter's JSON record fits comfortably.
	DefaultMaxTokens = 512

	MinTemperature = 0.0
	MaxTemperature = 2.0

	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute
)

// RequestOptions is the typed form of the option map accepted by
// Client.Complete.
type RequestOptions struct {
	// Model overrides the backend's configured model for one request.
	Model string
	// MaxTokens caps the completion length.
	MaxTokens int
	// Temperature is nil when the backend default should be used.
	Temperature *float64
	// System is an optional system instruction.
	System string
}

// ParseRequestOptions reads the recognized keys of opts. Missing or invalid
// values fall back to defaults; unknown keys are ignored.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		Model:     optionValue(opts, "model", defaultModel, func(s string) bool { return s != "" }),
		MaxTokens: optionValue(opts, "max_tokens", DefaultMaxTokens, func(n int) bool { return n > 0 }),
		System:    optionValue(opts, "system", "", nil),
	}

	var temp float64
	switch t := opts["temperature"].(type) {
	case float64:
		temp = t
	case int:
		temp = float64(t)
	default:
		return options
	}
	if validTemperature(temp) {
		options.Temperature = &temp
	}

	return options
}

// optionValue returns opts[key] when it has type T and passes valid.
func optionValue[T any](opts map[string]any, key string, def T, valid func(T) bool) T {
	raw, ok := opts[key]
	if !ok {
		return def
	}
	v, ok := raw.(T)
	if !ok {
		return def
	}
	if valid != nil && !valid(v) {
		return def
	}
	return v
}

func validTemperature(t float64) bool { return t >= MinTemperature && t <= MaxTemperature }

// ValidateBaseURL checks that baseURL is an absolute http(s) URL. An empty
// string is valid and means the backend default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return parsed.String(), nil
}

// ValidateTimeout clamps timeout to [MinTimeout, MaxTimeout]. Zero or
// negative means "use the default" and is returned as zero.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return clamp(timeout, MinTimeout, MaxTimeout)
}

func clamp[T cmp.Ordered](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// baseProvider carries the fields every backend shares. Backends are built
// per model by the Registry, so the model is fixed after construction.
type baseProvider struct {
	name  string
	model string
}

func (b baseProvider) GetModel() string { return b.model }

func (b baseProvider) Provider() string { return b.name }

// tokensOr returns reported when the backend reported usage, otherwise a
// rough four-characters-per-token estimate of text.
func tokensOr(reported int64, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return (len(text) + 3) / 4
}
