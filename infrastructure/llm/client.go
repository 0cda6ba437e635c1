// Package llm talks to the text-generation backends that play in a riddle
// tournament. Each backend (OpenAI, Anthropic, Google, Groq) is a CoreLLM;
// cross-cutting behavior such as timeouts, retries, rate limiting, circuit
// breaking, metrics and tracing is layered on with Middleware.
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o-mini",
//	})
//	answer, err := client.Complete(ctx, "What has keys but can't open locks?", nil)
//
// With middleware:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-5-haiku-latest",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware(nil),
//	        llm.RetryMiddleware(2, time.Second, 10*time.Second),
//	        llm.TimeoutMiddleware(60 * time.Second),
//	    },
//	})
//
// Most callers go through a Registry, which resolves "provider/model"
// selectors and reads API keys from the environment.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-riddler/internal/ports"
)

// Usage reports token consumption for one request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CoreLLM is the minimal surface a backend implements. Middleware wraps a
// CoreLLM and returns another one, so every layer sees the same contract.
type CoreLLM interface {
	// DoRequest sends prompt to the backend and returns the generated text
	// together with token usage.
	DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, Usage, error)

	// GetModel returns the model this backend targets.
	GetModel() string

	// Provider returns the backend family, e.g. "openai" or "groq".
	Provider() string
}

// ClientConfig holds everything needed to build a Client.
type ClientConfig struct {
	// APIKey authenticates requests to the backend.
	APIKey string

	// Model is the backend model name.
	Model string

	// BaseURL overrides the backend's default endpoint.
	BaseURL string

	// Timeout bounds the underlying HTTP client. Zero leaves the SDK default.
	Timeout time.Duration

	// Middleware is applied so that the first entry is the outermost layer.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM to add behavior around DoRequest.
type Middleware func(CoreLLM) CoreLLM

// Client adapts a middleware-wrapped CoreLLM to ports.LLMClient.
type Client struct {
	core CoreLLM
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient builds the backend registered under providerType and wraps it in
// config.Middleware.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := lookupProviderFactory(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}

	return &Client{core: Chain(core, config.Middleware...)}, nil
}

// Chain wraps core so that middleware[0] is the outermost layer.
func Chain(core CoreLLM, middleware ...Middleware) CoreLLM {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	return core
}

// NewClientFromCore wraps an already constructed CoreLLM. It is mainly useful
// for tests and for backends built outside the factory table.
func NewClientFromCore(core CoreLLM, middleware ...Middleware) *Client {
	return &Client{core: Chain(core, middleware...)}
}

// Complete sends prompt and returns the generated text. Recognized options are
// "max_tokens", "temperature", "system" and "model"; anything else is ignored.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	text, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return text, err
}

// CompleteWithUsage is Complete that also returns token usage.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, Usage, error) {
	return c.core.DoRequest(ctx, prompt, ParseRequestOptions(options, c.core.GetModel()))
}

// GetModel returns the model of the underlying backend.
func (c *Client) GetModel() string { return c.core.GetModel() }

// Provider returns the backend family of the underlying backend.
func (c *Client) Provider() string { return c.core.Provider() }

// ProviderFactory builds a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// providerFactories is filled by each provider's init.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory makes a backend available to NewClient under
// providerType. It is not safe to call concurrently with NewClient.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

func lookupProviderFactory(providerType string) (ProviderFactory, bool) {
	f, ok := providerFactories[providerType]
	return f, ok
}
