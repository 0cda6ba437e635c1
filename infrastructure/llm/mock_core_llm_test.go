package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockCoreLLM is a scriptable CoreLLM for middleware tests.
type MockCoreLLM struct {
	mu sync.Mutex

	Response      string
	Usage         Usage
	Error         error
	Model         string
	ProviderName  string
	ResponseDelay time.Duration

	// FailUntilAttempt makes the first N calls return Error (or a generic
	// failure when Error is nil), after which calls succeed.
	FailUntilAttempt int

	callCount   int
	lastPrompt  string
	lastOptions RequestOptions
	lastContext context.Context
}

func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:     "test response",
		Usage:        Usage{InputTokens: 10, OutputTokens: 20},
		Model:        "test-model",
		ProviderName: "mock",
	}
}

func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, Usage, error) {
	m.mu.Lock()
	m.callCount++
	call := m.callCount
	m.lastPrompt = prompt
	m.lastOptions = opts
	m.lastContext = ctx
	delay := m.ResponseDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", Usage{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUntilAttempt > 0 && call <= m.FailUntilAttempt {
		if m.Error != nil {
			return "", Usage{}, m.Error
		}
		return "", Usage{}, errors.New("simulated failure")
	}
	if m.FailUntilAttempt == 0 && m.Error != nil {
		return "", Usage{}, m.Error
	}
	return m.Response, m.Usage, nil
}

func (m *MockCoreLLM) GetModel() string { return m.Model }

func (m *MockCoreLLM) Provider() string { return m.ProviderName }

func (m *MockCoreLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *MockCoreLLM) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

func (m *MockCoreLLM) LastOptions() RequestOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOptions
}

func (m *MockCoreLLM) LastContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastContext
}

// recordingCollector is an in-memory ports.MetricsCollector.
type recordingCollector struct {
	mu         sync.Mutex
	counters   []recordedMetric
	histograms []recordedMetric
}

type recordedMetric struct {
	name   string
	value  float64
	labels map[string]string
}

func (c *recordingCollector) RecordLatency(string, time.Duration, map[string]string) {}

func (c *recordingCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = append(c.counters, recordedMetric{metric, value, labels})
}

func (c *recordingCollector) RecordGauge(string, float64, map[string]string) {}

func (c *recordingCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms = append(c.histograms, recordedMetric{metric, value, labels})
}
