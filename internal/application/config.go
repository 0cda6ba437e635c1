// Package application runs riddle tournaments: it loads run configuration
// and drives the round-robin between participants.
package application

import (
	"github.com/ahrav/go-riddler/infrastructure/matching"
	"github.com/ahrav/go-riddler/infrastructure/riddle"
	"github.com/ahrav/go-riddler/internal/domain"
)

// ConfigVersion is the configuration schema version this build writes.
const ConfigVersion = "1.0.0"

// Config is the complete description of a tournament run and the entry
// point of riddler.yaml.
type Config struct {
	// Version is the configuration schema version.
	Version string `yaml:"version" validate:"required,semver"`
	// Name labels the run in logs and reports.
	Name string `yaml:"name" validate:"max=255"`
	// RoundsPerParticipant is how many riddles each participant sets. The
	// first half are word riddles, the rest arithmetic.
	RoundsPerParticipant int `yaml:"rounds_per_participant" validate:"min=1,max=100"`
	// MaxAcquireAttempts bounds how often a setter is asked for a riddle
	// before the fallback riddle is used.
	MaxAcquireAttempts int `yaml:"max_acquire_attempts" validate:"min=1,max=10"`
	// Seed makes fallback arithmetic riddles reproducible. Zero picks a
	// random seed.
	Seed uint64 `yaml:"seed"`
	// Participants play in this order.
	Participants []domain.Participant `yaml:"participants" validate:"required,min=1,max=32,dive"`
	// Uniqueness tunes the duplicate filter for word riddles.
	Uniqueness matching.UniquenessConfig `yaml:"uniqueness"`
	// Validation tunes answer checking.
	Validation matching.ValidatorConfig `yaml:"validation"`
	// Source tunes riddle and answer requests.
	Source riddle.SourceConfig `yaml:"source"`
	// LLM configures backend access shared by all participants.
	LLM LLMConfig `yaml:"llm"`
	// Output controls where the report goes.
	Output OutputConfig `yaml:"output"`
}

// LLMConfig holds the resilience settings applied to every backend.
type LLMConfig struct {
	// TimeoutSeconds bounds a single request.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=1,max=600"`
	// MaxRetries is the number of retries after the first attempt for
	// retryable backend errors.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`
	// InitialBackoffMS is the first retry delay.
	InitialBackoffMS int `yaml:"initial_backoff_ms" validate:"min=0,max=60000"`
	// MaxBackoffMS caps the retry delay.
	MaxBackoffMS int `yaml:"max_backoff_ms" validate:"min=0,max=300000,gtefield=InitialBackoffMS"`
	// RequestsPerSecond limits each backend. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0,lte=1000"`
	// Burst is the limiter's bucket size.
	Burst int `yaml:"burst" validate:"min=0,max=1000"`
	// CircuitBreaker stops calling a backend after consecutive failures.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	// Budget caps what each backend may spend in one run.
	Budget BudgetConfig `yaml:"budget"`
	// Providers adds backends or overrides the built-in ones, keyed by the
	// provider part of a model selector.
	Providers map[string]ProviderConfig `yaml:"providers" validate:"dive,keys,required,alphanum,lowercase,endkeys"`
}

// CircuitBreakerConfig configures the per-backend circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures opens the breaker. Zero disables it.
	MaxFailures int `yaml:"max_failures" validate:"min=0,max=100"`
	// CooldownSeconds is how long the breaker stays open.
	CooldownSeconds int `yaml:"cooldown_seconds" validate:"min=0,max=3600"`
}

// BudgetConfig limits one backend's consumption. A backend that spends its
// budget fails every further request and drops out of the tournament. Zero
// means unlimited.
type BudgetConfig struct {
	MaxTokens int64 `yaml:"max_tokens" validate:"min=0"`
	MaxCalls  int64 `yaml:"max_calls" validate:"min=0"`
}

// ProviderConfig describes a backend family reachable through one of the
// built-in protocols.
type ProviderConfig struct {
	// Type is the protocol: openai, anthropic, google or groq.
	Type string `yaml:"type" validate:"required,oneof=openai anthropic google groq"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`
	// DefaultModel is used when a selector names only the provider.
	DefaultModel string `yaml:"default_model"`
	// BaseURL points the protocol at a compatible endpoint.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
}

// OutputConfig controls report output.
type OutputConfig struct {
	// Path is the CSV ledger file.
	Path string `yaml:"path" validate:"required"`
}

// DefaultConfig returns a configuration with every optional field set. The
// loader decodes a file over it, so absent keys keep these values.
func DefaultConfig() Config {
	return Config{
		Version:              ConfigVersion,
		RoundsPerParticipant: 2,
		MaxAcquireAttempts:   DefaultMaxAcquireAttempts,
		Uniqueness:           matching.DefaultUniquenessConfig(),
		Validation:           matching.DefaultValidatorConfig(),
		Source:               riddle.DefaultSourceConfig(),
		LLM: LLMConfig{
			TimeoutSeconds:    60,
			MaxRetries:        2,
			InitialBackoffMS:  1000,
			MaxBackoffMS:      10000,
			RequestsPerSecond: 0,
			Burst:             1,
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures:     5,
				CooldownSeconds: 30,
			},
		},
		Output: OutputConfig{Path: "results.csv"},
	}
}
