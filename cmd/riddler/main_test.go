package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-riddler/internal/application"
	"github.com/ahrav/go-riddler/internal/domain"
)

const mockKeyEnv = "RIDDLER_TEST_MOCK_KEY"

// mockBackend is an OpenAI-compatible chat completion server that sets
// riddles from a fixed list and answers the ones it has set.
type mockBackend struct {
	mu      sync.Mutex
	word    []domain.Riddle
	sums    int
	answers map[string]string
}

func newMockBackend(t *testing.T) *httptest.Server {
	t.Helper()
	b := &mockBackend{
		word: []domain.Riddle{
			{Prompt: "What has keys but can't open locks?", Answer: "piano"},
			{Prompt: "I fly without wings and cry without eyes. What am I?", Answer: "cloud"},
			{Prompt: "The more you take, the more you leave behind. What are they?", Answer: "footsteps"},
		},
		answers: make(map[string]string),
	}
	srv := httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(srv.Close)
	return srv
}

func (b *mockBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	prompt := req.Messages[len(req.Messages)-1].Content

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "mock-model",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": b.reply(prompt)},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

func (b *mockBackend) reply(prompt string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case strings.HasPrefix(prompt, "Answer this riddle"):
		_, riddle, _ := strings.Cut(prompt, ": ")
		return b.answers[strings.TrimSpace(riddle)]
	case strings.Contains(prompt, "arithmetic"):
		b.sums++
		riddle := fmt.Sprintf("What is %d plus %d?", b.sums, b.sums*10)
		answer := fmt.Sprint(b.sums * 11)
		b.answers[riddle] = answer
		return fmt.Sprintf(`{"riddle": %q, "answer": %s, "solution": "add them"}`, riddle, answer)
	case strings.Contains(prompt, "OK"):
		return "OK"
	default:
		next := b.word[len(b.answers)%len(b.word)]
		for _, w := range b.word {
			if _, used := b.answers[w.Prompt]; !used {
				next = w
				break
			}
		}
		b.answers[next.Prompt] = next.Answer
		return fmt.Sprintf("```json\n{\"riddle\": %q, \"answer\": %q, \"solution\": \"\"}\n```", next.Prompt, next.Answer)
	}
}

func writeConfig(t *testing.T, dir, baseURL string, participants string) string {
	t.Helper()
	cfg := fmt.Sprintf(`version: "1.0.0"
name: mock run
rounds_per_participant: 2
seed: 7
participants:
%s
uniqueness:
  min_shared_tokens: 10
  similarity_threshold: 0.95
llm:
  timeout_seconds: 5
  max_retries: 0
  initial_backoff_ms: 0
  max_backoff_ms: 0
  providers:
    mock:
      type: openai
      api_key_env: %s
      default_model: mock-model
      base_url: %s/v1
    offline:
      type: openai
      api_key_env: RIDDLER_TEST_UNSET_KEY
      default_model: mock-model
      base_url: %s/v1
output:
  path: %s
`, participants, mockKeyEnv, baseURL, baseURL, filepath.Join(dir, "out", "results.csv"))

	path := filepath.Join(dir, "riddler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

const twoParticipants = `  - id: alpha
    model: mock/model-a
  - id: beta
    model: mock/model-b`

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func readLedger(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunTournamentEndToEnd(t *testing.T) {
	// Given an OpenAI-compatible backend that answers its own riddles
	srv := newMockBackend(t)
	t.Setenv(mockKeyEnv, "test-key")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL, twoParticipants)
	summaryPath := filepath.Join(dir, "out", "summary.json")
	tracePath := filepath.Join(dir, "out", "spans.jsonl")

	// When a two-participant tournament is run
	var out bytes.Buffer
	err := runTournament(context.Background(), &runOptions{
		configPath:  cfgPath,
		summaryJSON: summaryPath,
		traceFile:   tracePath,
	}, &out, discardLogger())
	require.NoError(t, err)

	// Then every riddle is answered once by the other participant
	rows := readLedger(t, filepath.Join(dir, "out", "results.csv"))
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"round", "category", "setter", "solver", "riddle", "answer", "solution", "given_answer", "correct"}, rows[0])

	wantOrder := [][2]string{{"alpha", "beta"}, {"alpha", "beta"}, {"beta", "alpha"}, {"beta", "alpha"}}
	wantCategory := []string{"word", "arithmetic", "word", "arithmetic"}
	for i, row := range rows[1:] {
		assert.Equal(t, wantCategory[i], row[1], "row %d", i+1)
		assert.Equal(t, wantOrder[i][0], row[2], "row %d setter", i+1)
		assert.Equal(t, wantOrder[i][1], row[3], "row %d solver", i+1)
		assert.Equal(t, "true", row[8], "row %d correct", i+1)
	}
	assert.Empty(t, rows[1][6], "word riddles carry no solution")
	assert.Equal(t, "add them", rows[2][6])

	rendered := out.String()
	assert.Contains(t, rendered, "Riddle tournament: mock run")
	assert.Contains(t, rendered, "Word riddles")
	assert.Contains(t, rendered, "Arithmetic riddles")
	assert.Contains(t, rendered, "100.00")

	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	var doc struct {
		RunID      string                         `json:"run_id"`
		Results    int                            `json:"results"`
		Scoreboard map[string]map[string]int      `json:"scoreboard"`
		Tables     map[string][]domain.SummaryRow `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.NotEmpty(t, doc.RunID)
	assert.Equal(t, 4, doc.Results)
	require.Len(t, doc.Tables["word"], 2)
	assert.Equal(t, 1, doc.Tables["word"][0].Correct)

	spans, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	assert.Contains(t, string(spans), "tournament.run")
	assert.Contains(t, string(spans), "llm.request")
}

func TestRunTournamentOverrides(t *testing.T) {
	srv := newMockBackend(t)
	t.Setenv(mockKeyEnv, "test-key")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL, twoParticipants)
	output := filepath.Join(dir, "override.csv")

	err := runTournament(context.Background(), &runOptions{
		configPath: cfgPath,
		rounds:     1,
		output:     output,
	}, io.Discard, discardLogger())
	require.NoError(t, err)

	rows := readLedger(t, output)
	require.Len(t, rows, 3)
	// A single round is rounded down to zero word rounds.
	assert.Equal(t, "arithmetic", rows[1][1])
	assert.Equal(t, "arithmetic", rows[2][1])
}

func TestRunTournamentUnreachableParticipant(t *testing.T) {
	// Given a third participant whose API key is not set
	srv := newMockBackend(t)
	t.Setenv(mockKeyEnv, "test-key")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL, twoParticipants+`
  - id: gamma
    model: offline/model-c`)

	// When the tournament runs
	err := runTournament(context.Background(), &runOptions{configPath: cfgPath}, io.Discard, discardLogger())
	require.NoError(t, err)

	// Then gamma never plays and the others still do
	rows := readLedger(t, filepath.Join(dir, "out", "results.csv"))
	require.Len(t, rows, 5)
	for _, row := range rows[1:] {
		assert.NotEqual(t, "gamma", row[2])
		assert.NotEqual(t, "gamma", row[3])
	}
}

func TestRunTournamentConfigFromStdin(t *testing.T) {
	// Given a configuration piped on standard input
	srv := newMockBackend(t)
	t.Setenv(mockKeyEnv, "test-key")
	dir := t.TempDir()
	data, err := os.ReadFile(writeConfig(t, dir, srv.URL, twoParticipants))
	require.NoError(t, err)

	// When the config path is "-"
	err = runTournament(context.Background(), &runOptions{
		configPath: stdinConfigPath,
		stdin:      bytes.NewReader(data),
	}, io.Discard, discardLogger())

	// Then the piped configuration drives the run
	require.NoError(t, err)
	rows := readLedger(t, filepath.Join(dir, "out", "results.csv"))
	assert.Len(t, rows, 5)
}

func TestRunTournamentInterrupted(t *testing.T) {
	srv := newMockBackend(t)
	t.Setenv(mockKeyEnv, "test-key")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL, twoParticipants)
	summaryPath := filepath.Join(dir, "summary.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := runTournament(ctx, &runOptions{configPath: cfgPath, summaryJSON: summaryPath}, &out, discardLogger())
	require.NoError(t, err, "an interrupted run still reports")

	rows := readLedger(t, filepath.Join(dir, "out", "results.csv"))
	assert.Len(t, rows, 1, "header only")
	assert.Contains(t, out.String(), "interrupted")

	data, err := os.ReadFile(summaryPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"interrupted": true`)
}

func TestRunTournamentConfigurationErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		err := runTournament(context.Background(), &runOptions{
			configPath: filepath.Join(t.TempDir(), "absent.yaml"),
		}, io.Discard, discardLogger())
		require.Error(t, err)
		assert.Equal(t, exitConfig, exitCode(err))
	})

	t.Run("invalid override", func(t *testing.T) {
		srv := newMockBackend(t)
		cfgPath := writeConfig(t, t.TempDir(), srv.URL, twoParticipants)
		err := runTournament(context.Background(), &runOptions{
			configPath: cfgPath,
			rounds:     -1,
		}, io.Discard, discardLogger())
		require.Error(t, err)
		assert.Equal(t, exitConfig, exitCode(err))
	})

	t.Run("metrics address in use", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()

		srv := newMockBackend(t)
		cfgPath := writeConfig(t, t.TempDir(), srv.URL, twoParticipants)
		err = runTournament(context.Background(), &runOptions{
			configPath:  cfgPath,
			metricsAddr: ln.Addr().String(),
		}, io.Discard, discardLogger())
		require.Error(t, err)
		assert.Equal(t, exitConfig, exitCode(err))
	})
}

func TestRunCheck(t *testing.T) {
	srv := newMockBackend(t)
	t.Setenv(mockKeyEnv, "test-key")

	t.Run("all reachable", func(t *testing.T) {
		cfgPath := writeConfig(t, t.TempDir(), srv.URL, twoParticipants)
		var out bytes.Buffer
		require.NoError(t, runCheck(context.Background(), cfgPath, nil, &out, discardLogger()))
		assert.Equal(t, 2, strings.Count(out.String(), "ok "))
		assert.Contains(t, out.String(), `"OK"`)
	})

	t.Run("one unreachable", func(t *testing.T) {
		cfgPath := writeConfig(t, t.TempDir(), srv.URL, twoParticipants+`
  - id: gamma
    model: offline/model-c`)
		var out bytes.Buffer
		err := runCheck(context.Background(), cfgPath, nil, &out, discardLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 3 participants unreachable")
		assert.Equal(t, exitError, exitCode(err))
		assert.Contains(t, out.String(), "FAIL  gamma")
	})

	t.Run("empty stdin", func(t *testing.T) {
		err := runCheck(context.Background(), stdinConfigPath, strings.NewReader(""), io.Discard, discardLogger())
		require.Error(t, err)
		assert.Equal(t, exitConfig, exitCode(err))
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: exitOK},
		{name: "configuration", err: &domain.ConfigurationError{Path: "x.yaml", Err: errors.New("bad")}, want: exitConfig},
		{name: "bare no participants", err: fmt.Errorf("load: %w", domain.ErrNoParticipants), want: exitError},
		{name: "sentinel", err: fmt.Errorf("run: %w", domain.ErrInvalidConfiguration), want: exitConfig},
		{name: "other", err: errors.New("boom"), want: exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name: "text at warn drops info", level: "warn", format: "text",
			check: func(t *testing.T, out string) {
				assert.NotContains(t, out, "info message")
				assert.Contains(t, out, "level=WARN")
			},
		},
		{
			name: "json", level: "debug", format: "JSON",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, `"msg":"info message"`)
			},
		},
		{name: "bad level", level: "loud", format: "text", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&buf, tt.level, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			logger.Info("info message")
			logger.Warn("warn message")
			tt.check(t, buf.String())
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RIDDLER_TEST_ENV_KEY=from-file\n"), 0o600))

	t.Setenv("RIDDLER_TEST_ENV_KEY", "")
	require.NoError(t, os.Unsetenv("RIDDLER_TEST_ENV_KEY"))
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("RIDDLER_TEST_ENV_KEY"))

	assert.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env")), "missing file is ignored")
	assert.NoError(t, loadEnvFile(""))
}

func TestBuildRegistry(t *testing.T) {
	cfg := application.DefaultConfig().LLM
	cfg.RequestsPerSecond = 5
	cfg.Providers = map[string]application.ProviderConfig{
		"openai": {Type: "openai", APIKeyEnv: "CUSTOM_OPENAI_KEY", DefaultModel: "custom-model"},
		"local":  {Type: "openai", APIKeyEnv: "LOCAL_KEY", BaseURL: "http://localhost:8080/v1"},
	}

	registry, err := buildRegistry(cfg, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"anthropic", "google", "groq", "local", "openai"}, registry.Providers())

	_, model, err := registry.ParseSelector("openai")
	require.NoError(t, err)
	assert.Equal(t, "custom-model", model, "file providers replace built-ins")

	_, _, err = registry.ParseSelector("local")
	assert.Error(t, err, "local has no default model")

	t.Setenv("CUSTOM_OPENAI_KEY", "")
	_, err = registry.GetClient("openai/gpt-4o-mini")
	assert.ErrorContains(t, err, "CUSTOM_OPENAI_KEY")

	cfg.Budget.MaxCalls = -1
	_, err = buildRegistry(cfg, nil, nil)
	assert.Error(t, err)
}

func TestRunTournamentBudget(t *testing.T) {
	// Given backends allowed a single request each
	srv := newMockBackend(t)
	t.Setenv(mockKeyEnv, "test-key")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL, twoParticipants)
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	data = []byte(strings.Replace(string(data), "  max_retries: 0\n", "  max_retries: 0\n  budget:\n    max_calls: 1\n", 1))
	require.NoError(t, os.WriteFile(cfgPath, data, 0o600))

	// When the tournament runs
	err = runTournament(context.Background(), &runOptions{configPath: cfgPath}, io.Discard, discardLogger())
	require.NoError(t, err)

	// Then alpha's first riddle is answered by beta, after which both
	// backends are spent: alpha falls back and is deactivated, and beta
	// is deactivated as a solver.
	rows := readLedger(t, filepath.Join(dir, "out", "results.csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"alpha", "beta", "true"}, []string{rows[1][2], rows[1][3], rows[1][8]})
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--env-file", "", "run", "--config", filepath.Join(t.TempDir(), "absent.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))

	assert.Equal(t, exitConfig, run([]string{"--env-file", "", "--log-level", "error", "check", "-c", filepath.Join(t.TempDir(), "absent.yaml")}))
	assert.Equal(t, exitError, run([]string{"--log-level", "nope", "check"}))
}
