package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-riddler/internal/ports"
)

// Budget metric names.
const (
	MetricBudgetTokensUsed     = "budget_tokens_used"
	MetricBudgetCallsUsed      = "budget_calls_used"
	MetricBudgetRemainingRatio = "budget_remaining_ratio"
	MetricBudgetExceededTotal  = "budget_exceeded_total"
)

// Usage fractions at which a span event is added.
const (
	budgetWarningThreshold  = 0.8
	budgetCriticalThreshold = 0.9
)

var _ BudgetObserver = (*OTelBudgetObserver)(nil)

// OTelBudgetObserver records budget usage as gauges and as events on the
// span already in the request context, normally the "llm.request" span.
type OTelBudgetObserver struct {
	metrics ports.MetricsCollector
}

// NewOTelBudgetObserver returns an observer. A nil collector records span
// events only.
func NewOTelBudgetObserver(metrics ports.MetricsCollector) *OTelBudgetObserver {
	return &OTelBudgetObserver{metrics: metrics}
}

// PreCheck adds a threshold event when usage is close to a limit.
func (o *OTelBudgetObserver) PreCheck(ctx context.Context, backend string, usage Usage, budget Budget) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	thresholdEvent(span, "tokens", usage.Tokens, budget.MaxTokens)
	thresholdEvent(span, "calls", usage.Calls, budget.MaxCalls)
}

// PostCheck updates the usage gauges and, for a refused request, counts it
// and marks the span.
func (o *OTelBudgetObserver) PostCheck(ctx context.Context, backend string, usage Usage, budget Budget, _ time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int64("budget.tokens_used", usage.Tokens),
		attribute.Int64("budget.calls_made", usage.Calls),
	)

	var exceeded *BudgetExceededError
	if errors.As(err, &exceeded) {
		span.AddEvent("budget.exceeded", trace.WithAttributes(
			attribute.String("limit_type", exceeded.LimitType),
			attribute.Int64("limit_value", exceeded.Limit),
			attribute.Int64("used_value", exceeded.Used),
		))
		if o.metrics != nil {
			o.metrics.RecordCounter(MetricBudgetExceededTotal, 1, map[string]string{
				"backend":    backend,
				"limit_type": exceeded.LimitType,
			})
		}
		return
	}

	if o.metrics == nil {
		return
	}
	labels := map[string]string{"backend": backend}
	o.metrics.RecordGauge(MetricBudgetTokensUsed, float64(usage.Tokens), labels)
	o.metrics.RecordGauge(MetricBudgetCallsUsed, float64(usage.Calls), labels)
	if ratio, ok := remainingRatio(usage, budget); ok {
		o.metrics.RecordGauge(MetricBudgetRemainingRatio, ratio, labels)
	}
}

func thresholdEvent(span trace.Span, resource string, used, limit int64) {
	if limit <= 0 {
		return
	}
	fraction := float64(used) / float64(limit)
	name := ""
	switch {
	case fraction >= budgetCriticalThreshold:
		name = "budget.threshold.critical"
	case fraction >= budgetWarningThreshold:
		name = "budget.threshold.warning"
	default:
		return
	}
	span.AddEvent(name, trace.WithAttributes(
		attribute.String("resource_type", resource),
		attribute.Float64("usage_percentage", fraction*100),
	))
}

// remainingRatio returns the smaller remaining fraction of the set limits.
func remainingRatio(usage Usage, budget Budget) (float64, bool) {
	ratio, ok := 1.0, false
	if budget.MaxTokens > 0 {
		ratio, ok = min(ratio, 1-float64(usage.Tokens)/float64(budget.MaxTokens)), true
	}
	if budget.MaxCalls > 0 {
		ratio, ok = min(ratio, 1-float64(usage.Calls)/float64(budget.MaxCalls)), true
	}
	return max(ratio, 0), ok
}
