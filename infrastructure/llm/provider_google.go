package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

type googleProvider struct {
	baseProvider
	client     *genai.Client
	classifier ErrorClassifier
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		validated, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		cc.HTTPOptions.BaseURL = validated
	}
	if timeout := ValidateTimeout(config.Timeout); timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: timeout}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		baseProvider: baseProvider{name: "google", model: model},
		client:       client,
		classifier:   ErrorClassifier{Provider: "google"},
	}, nil
}

func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, Usage, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, p.buildConfig(opts))
	if err != nil {
		return "", Usage{}, p.handleError(err)
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", Usage{}, NewProviderError("google", ErrorTypeContentPolicy, 0,
			"prompt blocked: "+string(fb.BlockReason), nil)
	}

	content := resp.Text()
	if content == "" {
		return "", Usage{}, p.classifier.Unknown(ErrEmptyResponse)
	}

	var in, out int64
	if u := resp.UsageMetadata; u != nil {
		in, out = int64(u.PromptTokenCount), int64(u.CandidatesTokenCount)
	}
	return content, Usage{
		InputTokens:  tokensOr(in, prompt),
		OutputTokens: tokensOr(out, content),
	}, nil
}

func (p *googleProvider) buildConfig(opts RequestOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if opts.System != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}
	if opts.Temperature != nil {
		config.Temperature = genai.Ptr(float32(clamp(*opts.Temperature, MinTemperature, MaxTemperature)))
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(min(opts.MaxTokens, math.MaxInt32))
	}
	return config
}

func (p *googleProvider) handleError(err error) error {
	if pe := p.classifier.ClassifyTransportError(err); pe != nil {
		return pe
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if isSafetyMessage(apiErr.Message) {
			return NewProviderError("google", ErrorTypeContentPolicy, apiErr.Code,
				"request blocked by safety filters", err)
		}
		return p.classifier.ClassifyHTTPError(apiErr.Code, apiErr.Message, err)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		message := gErr.Message
		if message == "" && len(gErr.Errors) > 0 {
			message = gErr.Errors[0].Message
		}
		if isSafetyMessage(message) || hasSafetyReason(gErr) {
			return NewProviderError("google", ErrorTypeContentPolicy, gErr.Code,
				"request blocked by safety filters", err)
		}
		return p.classifier.ClassifyHTTPError(gErr.Code, message, err)
	}

	return p.classifier.Unknown(err)
}

func isSafetyMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "safety") || strings.Contains(lower, "blocked")
}

func hasSafetyReason(err *googleapi.Error) bool {
	for _, item := range err.Errors {
		if item.Reason == "SAFETY" || item.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}
