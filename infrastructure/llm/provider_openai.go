package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	OpenAIDefaultModel = "gpt-4o-mini"

	GroqDefaultModel = "llama-3.3-70b-versatile"
	// GroqBaseURL is Groq's OpenAI-compatible endpoint.
	GroqBaseURL = "https://api.groq.com/openai/v1"
)

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
	RegisterProviderFactory("groq", newGroqProvider)
}

// chatCompletionProvider speaks the OpenAI chat completions protocol. OpenAI
// and Groq differ only in endpoint and default model.
type chatCompletionProvider struct {
	baseProvider
	client     *openai.Client
	classifier ErrorClassifier
}

func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	return newChatCompletionProvider("openai", OpenAIDefaultModel, "", config)
}

func newGroqProvider(config ClientConfig) (CoreLLM, error) {
	return newChatCompletionProvider("groq", GroqDefaultModel, GroqBaseURL, config)
}

func newChatCompletionProvider(name, defaultModel, defaultBaseURL string, config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if baseURL != "" {
		validated, err := ValidateBaseURL(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		clientConfig.BaseURL = validated
	}

	if timeout := ValidateTimeout(config.Timeout); timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &chatCompletionProvider{
		baseProvider: baseProvider{name: name, model: model},
		client:       openai.NewClientWithConfig(clientConfig),
		classifier:   ErrorClassifier{Provider: name},
	}, nil
}

func (p *chatCompletionProvider) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, Usage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(prompt, opts))
	if err != nil {
		return "", Usage{}, p.handleError(err)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, p.classifier.Unknown(ErrEmptyResponse)
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", Usage{}, p.classifier.Unknown(ErrEmptyResponse)
	}

	return content, Usage{
		InputTokens:  tokensOr(int64(resp.Usage.PromptTokens), prompt),
		OutputTokens: tokensOr(int64(resp.Usage.CompletionTokens), content),
	}, nil
}

func (p *chatCompletionProvider) buildRequest(prompt string, opts RequestOptions) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: opts.MaxTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = float32(clamp(*opts.Temperature, MinTemperature, MaxTemperature))
	}
	return req
}

func (p *chatCompletionProvider) handleError(err error) error {
	if pe := p.classifier.ClassifyTransportError(err); pe != nil {
		return pe
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		return p.classifier.ClassifyHTTPError(apiErr.HTTPStatusCode, message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.classifier.ClassifyHTTPError(reqErr.HTTPStatusCode, reqErr.HTTPStatus, err)
	}

	return p.classifier.Unknown(err)
}
