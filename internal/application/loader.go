package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-riddler/infrastructure/llm"
	"github.com/ahrav/go-riddler/internal/domain"
)

// Loader reads and validates tournament configuration. Every error it
// returns is a *domain.ConfigurationError.
type Loader struct {
	validator *validator.Validate
}

// NewLoader returns a loader with the custom validators registered.
func NewLoader() (*Loader, error) {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &Loader{validator: v}, nil
}

// LoadFromFile reads the configuration at path.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, &domain.ConfigurationError{Path: path, Err: fmt.Errorf("failed to read file: %w", err)}
	}

	cfg, err := l.Parse(data)
	if err != nil {
		var ce *domain.ConfigurationError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader reads configuration from r.
func (l *Loader) LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &domain.ConfigurationError{Err: fmt.Errorf("failed to read data: %w", err)}
	}
	return l.Parse(data)
}

// Parse decodes data over DefaultConfig and validates the result. Unknown
// keys are rejected so that typos do not silently fall back to defaults.
func (l *Loader) Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &domain.ConfigurationError{Err: errors.New("configuration is empty")}
		}
		return nil, &domain.ConfigurationError{Err: fmt.Errorf("YAML decode failed: %w", err)}
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct-tag and semantic validation over cfg.
func (l *Loader) Validate(cfg *Config) error {
	if len(cfg.Participants) == 0 {
		return &domain.ConfigurationError{Err: domain.ErrNoParticipants}
	}
	if err := l.validator.Struct(cfg); err != nil {
		return &domain.ConfigurationError{Err: fmt.Errorf("struct validation failed: %w", err)}
	}
	if err := validateSemantics(cfg); err != nil {
		return &domain.ConfigurationError{Err: fmt.Errorf("semantic validation failed: %w", err)}
	}
	return nil
}

// validateSemantics checks rules struct tags cannot express: participant IDs
// are unique and every selector names a known provider.
func validateSemantics(cfg *Config) error {
	ve := domain.NewValidationError("participants")

	providers := KnownProviders(cfg.LLM)
	seen := make(map[string]struct{}, len(cfg.Participants))
	for _, p := range cfg.Participants {
		if _, dup := seen[p.ID]; dup {
			ve.AddError(fmt.Sprintf("duplicate participant id %q", p.ID))
		}
		seen[p.ID] = struct{}{}

		provider, _, _ := strings.Cut(p.Model, "/")
		if !slices.Contains(providers, provider) {
			ve.AddError(fmt.Sprintf("participant %q uses unknown provider %q (known: %s)",
				p.ID, provider, strings.Join(providers, ", ")))
		}
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}

// KnownProviders returns the sorted provider names a selector may use: the
// built-in backends plus any declared in cfg.Providers.
func KnownProviders(cfg LLMConfig) []string {
	names := make([]string, 0, len(llm.DefaultProviders)+len(cfg.Providers))
	for name := range llm.DefaultProviders {
		names = append(names, name)
	}
	for name := range cfg.Providers {
		if _, builtin := llm.DefaultProviders[name]; !builtin {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
