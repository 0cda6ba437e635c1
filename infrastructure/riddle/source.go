// Package riddle turns a text-generation client into a riddle source: it
// renders setter and solver prompts, then repairs and decodes the riddle
// records that setters send back.
package riddle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahrav/go-riddler/internal/domain"
	"github.com/ahrav/go-riddler/internal/ports"
)

var (
	// ErrConfigValidation is returned when a SourceConfig fails validation.
	ErrConfigValidation = errors.New("configuration validation failed")
	// ErrTemplateExecution is returned when a prompt template cannot be rendered.
	ErrTemplateExecution = errors.New("failed to execute prompt template")
)

// SourceConfig tunes how riddles are requested and answered.
type SourceConfig struct {
	// SetterTemperature is sent with riddle requests. Higher values give more
	// varied riddles and fewer duplicates.
	SetterTemperature float64 `yaml:"setter_temperature" json:"setter_temperature" validate:"gte=0,lte=2"`
	// SolverTemperature is sent with answer requests.
	SolverTemperature float64 `yaml:"solver_temperature" json:"solver_temperature" validate:"gte=0,lte=2"`
	// SetterMaxTokens bounds a riddle response.
	SetterMaxTokens int `yaml:"setter_max_tokens" json:"setter_max_tokens" validate:"min=16,max=8192"`
	// SolverMaxTokens bounds an answer.
	SolverMaxTokens int `yaml:"solver_max_tokens" json:"solver_max_tokens" validate:"min=1,max=8192"`
	// Prompts overrides the built-in prompt templates.
	Prompts PromptConfig `yaml:"prompts" json:"prompts"`
}

// DefaultSourceConfig returns the settings used when none are configured.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		SetterTemperature: 1.0,
		SolverTemperature: 0.0,
		SetterMaxTokens:   1024,
		SolverMaxTokens:   64,
	}
}

// Source is a ports.RiddleSource backed by one LLM client.
type Source struct {
	name    string
	client  ports.LLMClient
	config  SourceConfig
	prompts *prompts
	logger  *slog.Logger
}

var _ ports.RiddleSource = (*Source)(nil)

// NewSource validates config and builds a source named name over client.
// A nil logger uses slog.Default.
func NewSource(name string, client ports.LLMClient, config SourceConfig, logger *slog.Logger) (*Source, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	p, err := parsePrompts(config.Prompts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Source{
		name:    name,
		client:  client,
		config:  config,
		prompts: p,
		logger:  logger.With("source", name, "model", client.GetModel()),
	}, nil
}

// Acquire asks the backend for a riddle of category. Backend failures are
// returned wrapped; unreadable responses are *domain.ParseError.
func (s *Source) Acquire(ctx context.Context, category domain.Category) (domain.Riddle, error) {
	prompt, err := s.prompts.setterPrompt(category)
	if err != nil {
		return domain.Riddle{}, err
	}

	raw, err := s.client.Complete(ctx, prompt, map[string]any{
		"temperature": s.config.SetterTemperature,
		"max_tokens":  s.config.SetterMaxTokens,
	})
	if err != nil {
		return domain.Riddle{}, fmt.Errorf("request %s riddle from %s: %w", category, s.name, err)
	}

	r, err := ParseRecord(raw, s.name, category)
	if err != nil {
		s.logger.Debug("unreadable riddle response", "category", category, "error", err)
		return domain.Riddle{}, err
	}
	return r, nil
}

// Solve asks the backend to answer riddle and returns its trimmed response.
func (s *Source) Solve(ctx context.Context, riddle string) (string, error) {
	prompt, err := s.prompts.solverPrompt(riddle)
	if err != nil {
		return "", err
	}

	answer, err := s.client.Complete(ctx, prompt, map[string]any{
		"temperature": s.config.SolverTemperature,
		"max_tokens":  s.config.SolverMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("request answer from %s: %w", s.name, err)
	}
	return strings.TrimSpace(answer), nil
}

// ClientProvider hands out LLM clients for model selectors. *llm.Registry
// satisfies it.
type ClientProvider interface {
	GetClient(selector string) (ports.LLMClient, error)
}

// Resolver builds a Source per participant from a ClientProvider.
type Resolver struct {
	clients ClientProvider
	config  SourceConfig
	logger  *slog.Logger
}

var _ ports.SourceResolver = (*Resolver)(nil)

// NewResolver validates config once so that Resolve only fails on backend
// construction.
func NewResolver(clients ClientProvider, config SourceConfig, logger *slog.Logger) (*Resolver, error) {
	if clients == nil {
		return nil, errors.New("client provider cannot be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	if _, err := parsePrompts(config.Prompts); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{clients: clients, config: config, logger: logger}, nil
}

// Resolve returns the source for p.
func (r *Resolver) Resolve(p domain.Participant) (ports.RiddleSource, error) {
	client, err := r.clients.GetClient(p.Model)
	if err != nil {
		return nil, fmt.Errorf("participant %s: %w", p.ID, err)
	}
	source, err := NewSource(p.ID, client, r.config, r.logger)
	if err != nil {
		return nil, err
	}
	return source, nil
}
