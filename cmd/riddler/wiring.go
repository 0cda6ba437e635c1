package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-riddler/infrastructure/llm"
	"github.com/ahrav/go-riddler/infrastructure/middleware"
	"github.com/ahrav/go-riddler/internal/application"
	"github.com/ahrav/go-riddler/internal/ports"
)

const serviceName = "riddler"

// newMetrics returns a collector backed by a fresh registry that also
// exports Go runtime and process metrics.
func newMetrics() *middleware.PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return middleware.NewPrometheusMetrics(reg)
}

// newTracerProvider writes spans as JSON lines to path. An empty path yields
// nil so callers fall back to the global no-op provider.
func newTracerProvider(path string) (trace.TracerProvider, func(context.Context) error, error) {
	if path == "" {
		return nil, func(context.Context) error { return nil }, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create trace directory: %w", err)
		}
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("create trace file: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), f.Close())
	}
	return tp, shutdown, nil
}

// buildRegistry turns the llm section of the configuration into a client
// registry. Providers declared in the file replace built-ins of the same
// name. Every client is wrapped, outermost first, in tracing, metrics, its
// own budget, retry and circuit breaking. Each provider gets its own rate
// limiter and request timeout inside those.
func buildRegistry(cfg application.LLMConfig, metrics ports.MetricsCollector, tp trace.TracerProvider) (*llm.Registry, error) {
	providers := maps.Clone(llm.DefaultProviders)
	for name, pc := range cfg.Providers {
		providers[name] = llm.ProviderConfig{
			Type:         pc.Type,
			EnvVar:       pc.APIKeyEnv,
			DefaultModel: pc.DefaultModel,
			BaseURL:      pc.BaseURL,
		}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	for name, pc := range providers {
		pc.Middleware = providerMiddleware(cfg, timeout)
		providers[name] = pc
	}

	budget := middleware.Budget{MaxTokens: cfg.Budget.MaxTokens, MaxCalls: cfg.Budget.MaxCalls}
	if err := budget.Validate(); err != nil {
		return nil, err
	}

	defaults := []llm.Middleware{
		llm.TracingMiddleware(tp),
		llm.MetricsMiddleware(metrics),
		middleware.BudgetMiddleware(budget, middleware.NewOTelBudgetObserver(metrics)),
		llm.RetryMiddleware(cfg.MaxRetries,
			time.Duration(cfg.InitialBackoffMS)*time.Millisecond,
			time.Duration(cfg.MaxBackoffMS)*time.Millisecond),
	}
	if cfg.CircuitBreaker.MaxFailures > 0 {
		defaults = append(defaults, llm.CircuitBreakerMiddleware(
			cfg.CircuitBreaker.MaxFailures,
			time.Duration(cfg.CircuitBreaker.CooldownSeconds)*time.Second))
	}

	return llm.NewRegistry(llm.RegistryConfig{
		Providers:         providers,
		DefaultTimeout:    timeout,
		DefaultMiddleware: defaults,
	})
}

func providerMiddleware(cfg application.LLMConfig, timeout time.Duration) []llm.Middleware {
	var mw []llm.Middleware
	if cfg.RequestsPerSecond > 0 {
		mw = append(mw, llm.RateLimitMiddleware(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1)))
	}
	return append(mw, llm.TimeoutMiddleware(timeout))
}

// closeQuietly is for read-side and best-effort closes.
func closeQuietly(c io.Closer) { _ = c.Close() }
