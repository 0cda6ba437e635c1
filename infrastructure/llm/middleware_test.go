package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/time/rate"
)

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("slow backend times out", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.ResponseDelay = time.Second
		wrapped := TimeoutMiddleware(20 * time.Millisecond)(mock)

		_, _, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})

		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("request carries a deadline", func(t *testing.T) {
		mock := NewMockCoreLLM()
		wrapped := TimeoutMiddleware(time.Minute)(mock)

		_, _, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})

		require.NoError(t, err)
		_, ok := mock.LastContext().Deadline()
		assert.True(t, ok)
	})

	t.Run("zero disables the layer", func(t *testing.T) {
		mock := NewMockCoreLLM()
		assert.Same(t, mock, TimeoutMiddleware(0)(mock))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("burst passes immediately", func(t *testing.T) {
		mock := NewMockCoreLLM()
		wrapped := RateLimitMiddleware(rate.Limit(1), 3)(mock)

		start := time.Now()
		for range 3 {
			_, _, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
			require.NoError(t, err)
		}
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, 3, mock.CallCount())
	})

	t.Run("waiting honors cancellation", func(t *testing.T) {
		mock := NewMockCoreLLM()
		wrapped := RateLimitMiddleware(rate.Every(time.Hour), 1)(mock)

		_, _, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, _, err = wrapped.DoRequest(ctx, "p", RequestOptions{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limit")
		assert.Equal(t, 1, mock.CallCount())
	})
}

func TestMetricsMiddleware(t *testing.T) {
	t.Run("success records latency requests and tokens", func(t *testing.T) {
		mock := NewMockCoreLLM()
		collector := &recordingCollector{}
		wrapped := MetricsMiddleware(collector)(mock)

		_, _, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
		require.NoError(t, err)

		require.Len(t, collector.histograms, 1)
		assert.Equal(t, MetricLatencySeconds, collector.histograms[0].name)
		assert.Equal(t, map[string]string{"provider": "mock", "model": "test-model", "status": "success"},
			collector.histograms[0].labels)

		require.Len(t, collector.counters, 3)
		assert.Equal(t, MetricRequestsTotal, collector.counters[0].name)
		assert.Equal(t, float64(10), collector.counters[1].value)
		assert.Equal(t, "input", collector.counters[1].labels["token_type"])
		assert.Equal(t, float64(20), collector.counters[2].value)
		assert.Equal(t, "output", collector.counters[2].labels["token_type"])
		_, leaked := collector.counters[0].labels["token_type"]
		assert.False(t, leaked, "request labels must not be mutated")
	})

	t.Run("failure status comes from the error type", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.Error = NewProviderError("mock", ErrorTypeRateLimit, 429, "slow down", nil)
		collector := &recordingCollector{}
		wrapped := MetricsMiddleware(collector)(mock)

		_, _, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})
		require.Error(t, err)

		require.Len(t, collector.counters, 1)
		assert.Equal(t, "rate_limit", collector.counters[0].labels["status"])
	})

	t.Run("nil collector disables the layer", func(t *testing.T) {
		mock := NewMockCoreLLM()
		assert.Same(t, mock, MetricsMiddleware(nil)(mock))
	})
}

func TestRequestStatus(t *testing.T) {
	assert.Equal(t, "success", requestStatus(nil))
	assert.Equal(t, "circuit_open", requestStatus(ErrCircuitOpen))
	assert.Equal(t, "timeout", requestStatus(context.DeadlineExceeded))
	assert.Equal(t, "authentication", requestStatus(NewProviderError("x", ErrorTypeAuthentication, 401, "", nil)))
	assert.Equal(t, "error", requestStatus(NewProviderError("x", ErrorTypeUnknown, 0, "", nil)))
}

func TestTracingMiddleware(t *testing.T) {
	newProvider := func() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
		recorder := tracetest.NewSpanRecorder()
		return recorder, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	}

	t.Run("records a client span with usage", func(t *testing.T) {
		recorder, tp := newProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		mock := NewMockCoreLLM()
		wrapped := TracingMiddleware(tp)(mock)

		_, _, err := wrapped.DoRequest(context.Background(), "hello", RequestOptions{})
		require.NoError(t, err)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "llm.request", spans[0].Name())

		attrs := map[string]any{}
		for _, kv := range spans[0].Attributes() {
			attrs[string(kv.Key)] = kv.Value.AsInterface()
		}
		assert.Equal(t, "mock", attrs["llm.provider"])
		assert.Equal(t, "test-model", attrs["llm.model"])
		assert.Equal(t, int64(5), attrs["llm.prompt.length"])
		assert.Equal(t, int64(20), attrs["llm.tokens.output"])
	})

	t.Run("marks failures", func(t *testing.T) {
		recorder, tp := newProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		mock := NewMockCoreLLM()
		mock.Error = NewProviderError("mock", ErrorTypeServerError, 500, "down", nil)
		wrapped := TracingMiddleware(tp)(mock)

		_, _, err := wrapped.DoRequest(context.Background(), "hello", RequestOptions{})
		require.Error(t, err)

		spans := recorder.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		require.NotEmpty(t, spans[0].Events())
		assert.Equal(t, "exception", spans[0].Events()[0].Name)
	})
}

func TestChain_OrdersOutermostFirst(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &orderLLM{CoreLLM: next, name: name, order: &order}
		}
	}

	wrapped := Chain(NewMockCoreLLM(), tag("outer"), tag("inner"))
	_, _, err := wrapped.DoRequest(context.Background(), "p", RequestOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type orderLLM struct {
	CoreLLM
	name  string
	order *[]string
}

func (o *orderLLM) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, Usage, error) {
	*o.order = append(*o.order, o.name)
	return o.CoreLLM.DoRequest(ctx, prompt, opts)
}
