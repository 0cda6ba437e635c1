package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans emitted by this package.
const TracerName = "github.com/ahrav/go-riddler/infrastructure/llm"

type tracedLLM struct {
	next   CoreLLM
	tracer trace.Tracer
}

// TracingMiddleware wraps each request in an "llm.request" client span. A nil
// provider uses the global tracer provider.
func TracingMiddleware(tp trace.TracerProvider) Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(TracerName)
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{next: next, tracer: tracer}
	}
}

func (t *tracedLLM) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, Usage, error) {
	ctx, span := t.tracer.Start(ctx, "llm.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", t.next.Provider()),
			attribute.String("llm.model", t.next.GetModel()),
			attribute.Int("llm.prompt.length", len(prompt)),
		),
	)
	defer span.End()

	text, usage, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return text, usage, err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", usage.InputTokens),
		attribute.Int("llm.tokens.output", usage.OutputTokens),
	)
	return text, usage, nil
}

func (t *tracedLLM) GetModel() string { return t.next.GetModel() }

func (t *tracedLLM) Provider() string { return t.next.Provider() }
