package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-riddler/internal/ports"
)

// Metric names recorded by MetricsMiddleware.
const (
	MetricRequestsTotal  = "llm_requests_total"
	MetricLatencySeconds = "llm_latency_seconds"
	MetricTokensTotal    = "llm_tokens_total"
)

type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware records request counts, latency and token usage labeled
// by provider, model and status.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		if collector == nil {
			return next
		}
		return &metricsLLM{next: next, collector: collector}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, Usage, error) {
	start := time.Now()
	text, usage, err := m.next.DoRequest(ctx, prompt, opts)

	labels := map[string]string{
		"provider": m.next.Provider(),
		"model":    m.next.GetModel(),
		"status":   requestStatus(err),
	}
	m.collector.RecordHistogram(MetricLatencySeconds, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(MetricRequestsTotal, 1, labels)

	if err == nil {
		m.collector.RecordCounter(MetricTokensTotal, float64(usage.InputTokens), withLabel(labels, "token_type", "input"))
		m.collector.RecordCounter(MetricTokensTotal, float64(usage.OutputTokens), withLabel(labels, "token_type", "output"))
	}

	return text, usage, err
}

// requestStatus maps an outcome to a low-cardinality label value.
func requestStatus(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrCircuitOpen) {
		return "circuit_open"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Type != ErrorTypeUnknown {
		return pe.Type.String()
	}
	return "error"
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

func (m *metricsLLM) Provider() string { return m.next.Provider() }
