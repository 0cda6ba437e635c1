package riddle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-riddler/internal/domain"
	"github.com/ahrav/go-riddler/internal/ports"
)

// fakeClient replays canned responses and records what it was asked.
type fakeClient struct {
	model     string
	responses []string
	err       error

	prompts []string
	options []map[string]any
}

func (f *fakeClient) Complete(_ context.Context, prompt string, options map[string]any) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.options = append(f.options, options)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no more responses")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeClient) GetModel() string { return f.model }

func newTestSource(t *testing.T, client *fakeClient, mutate func(*SourceConfig)) *Source {
	t.Helper()
	cfg := DefaultSourceConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSource("alice", client, cfg, nil)
	require.NoError(t, err)
	return s
}

func TestSource_Acquire(t *testing.T) {
	t.Run("word riddle", func(t *testing.T) {
		// Given a backend that answers with a fenced riddle record
		client := &fakeClient{model: "gpt-4o-mini", responses: []string{
			"```json\n{\"riddle\": \"What has a neck but no head?\", \"answer\": \"A bottle\"}\n```",
		}}
		s := newTestSource(t, client, nil)

		// When a word riddle is acquired
		r, err := s.Acquire(context.Background(), domain.CategoryWord)

		// Then the record is decoded and the setter settings were sent
		require.NoError(t, err)
		assert.Equal(t, domain.Riddle{Category: domain.CategoryWord, Prompt: "What has a neck but no head?", Answer: "A bottle"}, r)
		require.Len(t, client.prompts, 1)
		assert.Equal(t, DefaultWordPrompt, client.prompts[0])
		assert.Equal(t, map[string]any{"temperature": 1.0, "max_tokens": 1024}, client.options[0])
	})

	t.Run("arithmetic riddle uses its own prompt", func(t *testing.T) {
		client := &fakeClient{responses: []string{`{"riddle": "2 + 2?", "answer": "four is 4"}`}}
		s := newTestSource(t, client, nil)

		r, err := s.Acquire(context.Background(), domain.CategoryArithmetic)

		require.NoError(t, err)
		assert.Equal(t, "4", r.Answer)
		assert.Equal(t, DefaultArithmeticPrompt, client.prompts[0])
	})

	t.Run("backend error is wrapped", func(t *testing.T) {
		backendErr := errors.New("HTTP 503")
		s := newTestSource(t, &fakeClient{err: backendErr}, nil)

		_, err := s.Acquire(context.Background(), domain.CategoryWord)

		require.ErrorIs(t, err, backendErr)
		assert.False(t, domain.IsParseError(err))
		assert.Contains(t, err.Error(), "request word riddle from alice")
	})

	t.Run("unreadable response is a parse error", func(t *testing.T) {
		s := newTestSource(t, &fakeClient{responses: []string{"I'd rather not."}}, nil)

		_, err := s.Acquire(context.Background(), domain.CategoryWord)

		assert.True(t, domain.IsParseError(err))
	})

	t.Run("unknown category", func(t *testing.T) {
		client := &fakeClient{}
		s := newTestSource(t, client, nil)

		_, err := s.Acquire(context.Background(), domain.Category("logic"))

		require.ErrorIs(t, err, domain.ErrUnknownCategory)
		assert.Empty(t, client.prompts)
	})

	t.Run("custom template", func(t *testing.T) {
		client := &fakeClient{responses: []string{`{"riddle": "r", "answer": "a"}`}}
		s := newTestSource(t, client, func(c *SourceConfig) {
			c.Prompts.Word = "Give me a {{.Category}} riddle as JSON."
		})

		_, err := s.Acquire(context.Background(), domain.CategoryWord)

		require.NoError(t, err)
		assert.Equal(t, "Give me a word riddle as JSON.", client.prompts[0])
	})
}

func TestSource_Solve(t *testing.T) {
	client := &fakeClient{responses: []string{"  A map.\n"}}
	s := newTestSource(t, client, nil)

	answer, err := s.Solve(context.Background(), "What has cities but no houses?")

	require.NoError(t, err)
	assert.Equal(t, "A map.", answer)
	assert.Equal(t, "Answer this riddle with just the answer, no explanation: What has cities but no houses?", client.prompts[0])
	assert.Equal(t, map[string]any{"temperature": 0.0, "max_tokens": 64}, client.options[0])

	client.err = errors.New("connection reset")
	_, err = s.Solve(context.Background(), "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request answer from alice")
}

func TestNewSource_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SourceConfig)
		wantErr error
	}{
		{name: "defaults"},
		{name: "temperature too high", mutate: func(c *SourceConfig) { c.SetterTemperature = 2.5 }, wantErr: ErrConfigValidation},
		{name: "negative temperature", mutate: func(c *SourceConfig) { c.SolverTemperature = -1 }, wantErr: ErrConfigValidation},
		{name: "setter tokens too small", mutate: func(c *SourceConfig) { c.SetterMaxTokens = 8 }, wantErr: ErrConfigValidation},
		{name: "solver tokens zero", mutate: func(c *SourceConfig) { c.SolverMaxTokens = 0 }, wantErr: ErrConfigValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSourceConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			_, err := NewSource("x", &fakeClient{}, cfg, nil)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("bad template", func(t *testing.T) {
		cfg := DefaultSourceConfig()
		cfg.Prompts.Solver = "{{.Riddle"
		_, err := NewSource("x", &fakeClient{}, cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "solver prompt template")
	})

	t.Run("nil client", func(t *testing.T) {
		_, err := NewSource("x", nil, DefaultSourceConfig(), nil)
		require.Error(t, err)
	})
}

func TestSource_TemplateExecutionError(t *testing.T) {
	cfg := DefaultSourceConfig()
	cfg.Prompts.Solver = "{{.Missing}}"
	s, err := NewSource("x", &fakeClient{}, cfg, nil)
	require.NoError(t, err)

	_, err = s.Solve(context.Background(), "r")
	require.ErrorIs(t, err, ErrTemplateExecution)
}

type fakeProvider map[string]ports.LLMClient

func (f fakeProvider) GetClient(selector string) (ports.LLMClient, error) {
	if c, ok := f[selector]; ok {
		return c, nil
	}
	return nil, errors.New("OPENAI_API_KEY environment variable not set")
}

func TestResolver(t *testing.T) {
	provider := fakeProvider{"openai/gpt-4o-mini": &fakeClient{model: "gpt-4o-mini"}}
	r, err := NewResolver(provider, DefaultSourceConfig(), nil)
	require.NoError(t, err)

	source, err := r.Resolve(domain.Participant{ID: "gpt", Model: "openai/gpt-4o-mini"})
	require.NoError(t, err)
	assert.IsType(t, &Source{}, source)

	_, err = r.Resolve(domain.Participant{ID: "claude", Model: "anthropic/claude"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "participant claude")

	_, err = NewResolver(nil, DefaultSourceConfig(), nil)
	require.Error(t, err)

	bad := DefaultSourceConfig()
	bad.SolverMaxTokens = 0
	_, err = NewResolver(provider, bad, nil)
	require.ErrorIs(t, err, ErrConfigValidation)
}
