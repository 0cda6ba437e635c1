package llm

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-riddler/internal/ports"
)

// Registry resolves model selectors of the form "provider" or
// "provider/model" to clients. Clients are built lazily, with the API key
// read from the provider's environment variable, and cached per selector.
//
//	registry, err := llm.NewRegistry(llm.RegistryConfig{
//	    Providers:         llm.DefaultProviders,
//	    DefaultTimeout:    60 * time.Second,
//	    DefaultMiddleware: []llm.Middleware{llm.TracingMiddleware(nil)},
//	})
//	client, err := registry.GetClient("groq/llama-3.3-70b-versatile")
type Registry struct {
	providers         map[string]ProviderConfig
	defaultTimeout    time.Duration
	defaultMiddleware []Middleware
	lookupEnv         func(string) (string, bool)

	mu      sync.RWMutex
	clients map[string]ports.LLMClient
}

// ProviderConfig describes one backend family.
type ProviderConfig struct {
	// Type names the registered ProviderFactory.
	Type string
	// EnvVar holds the API key.
	EnvVar string
	// DefaultModel is used when a selector names only the provider.
	DefaultModel string
	// BaseURL overrides the backend's endpoint.
	BaseURL string
	// Middleware is applied inside the registry's default middleware.
	Middleware []Middleware
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Providers         map[string]ProviderConfig
	DefaultTimeout    time.Duration
	DefaultMiddleware []Middleware
	// LookupEnv reads API keys. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// DefaultProviders lists the backends a tournament can use out of the box.
var DefaultProviders = map[string]ProviderConfig{
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: OpenAIDefaultModel,
	},
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: AnthropicDefaultModel,
	},
	"google": {
		Type:         "google",
		EnvVar:       "GOOGLE_API_KEY",
		DefaultModel: GoogleDefaultModel,
	},
	"groq": {
		Type:         "groq",
		EnvVar:       "GROQ_API_KEY",
		DefaultModel: GroqDefaultModel,
		BaseURL:      GroqBaseURL,
	},
}

// NewRegistry returns a registry over config.Providers.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if len(config.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider must be configured")
	}
	for name, pc := range config.Providers {
		if pc.Type == "" {
			return nil, fmt.Errorf("provider %q has no type", name)
		}
		if pc.EnvVar == "" {
			return nil, fmt.Errorf("provider %q has no API key variable", name)
		}
	}

	lookup := config.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	return &Registry{
		providers:         config.Providers,
		defaultTimeout:    config.DefaultTimeout,
		defaultMiddleware: config.DefaultMiddleware,
		lookupEnv:         lookup,
		clients:           make(map[string]ports.LLMClient),
	}, nil
}

// ParseSelector splits a selector into provider and model, filling in the
// provider's default model when none is given.
func (r *Registry) ParseSelector(selector string) (provider, model string, err error) {
	if selector == "" {
		return "", "", fmt.Errorf("model selector cannot be empty")
	}

	provider, model, _ = strings.Cut(selector, "/")
	pc, ok := r.providers[provider]
	if !ok {
		return "", "", fmt.Errorf("unknown provider %q in selector %q", provider, selector)
	}
	if model == "" {
		model = pc.DefaultModel
	}
	if model == "" {
		return "", "", fmt.Errorf("selector %q names no model and provider %q has no default", selector, provider)
	}
	return provider, model, nil
}

// GetClient returns the client for selector, building it on first use.
func (r *Registry) GetClient(selector string) (ports.LLMClient, error) {
	provider, model, err := r.ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	key := provider + "/" + model

	r.mu.RLock()
	client, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	client, err = r.createClient(provider, model)
	if err != nil {
		return nil, err
	}
	r.clients[key] = client
	return client, nil
}

// Providers returns the configured provider names in sorted order.
func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) createClient(provider, model string) (ports.LLMClient, error) {
	pc := r.providers[provider]

	apiKey, ok := r.lookupEnv(pc.EnvVar)
	if !ok || apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set for provider %q", pc.EnvVar, provider)
	}

	middleware := make([]Middleware, 0, len(r.defaultMiddleware)+len(pc.Middleware))
	middleware = append(middleware, r.defaultMiddleware...)
	middleware = append(middleware, pc.Middleware...)

	client, err := NewClient(pc.Type, ClientConfig{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    pc.BaseURL,
		Timeout:    r.defaultTimeout,
		Middleware: middleware,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s/%s: %w", provider, model, err)
	}
	return client, nil
}
