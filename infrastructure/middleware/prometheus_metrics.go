// Package middleware provides cross-cutting concerns for the riddle
// tournament: the Prometheus metrics collector shared by the tournament and
// the LLM middleware, and per-backend spending budgets.
package middleware

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/go-riddler/internal/ports"
)

// Namespace prefixes every metric this collector exports.
const Namespace = "riddler"

// LatencyBuckets suit backend calls, which take from a few hundred
// milliseconds to over a minute.
var LatencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// help describes the metrics the application is known to emit. Other names
// still work and get a generic description.
var help = map[string]string{
	"llm_requests_total":               "Backend requests by provider, model and status.",
	"llm_latency_seconds":              "Backend request latency.",
	"llm_tokens_total":                 "Tokens consumed by provider, model and token type.",
	"budget_tokens_used":               "Tokens a backend has consumed against its budget.",
	"budget_calls_used":                "Requests a backend has made against its budget.",
	"budget_remaining_ratio":           "Smallest remaining fraction of a backend's budget limits.",
	"budget_exceeded_total":            "Requests refused because a backend spent its budget.",
	"tournament_riddles_total":         "Riddles used, by setter, category and outcome (accepted or fallback).",
	"tournament_acquire_errors_total":  "Failed riddle requests by setter, category and kind.",
	"tournament_duplicates_total":      "Word riddles rejected as duplicates.",
	"tournament_answers_total":         "Scored answers by solver, category and correctness.",
	"tournament_deactivations_total":   "Participants removed from the tournament, by role.",
	"tournament_rounds_skipped_total":  "Setter rounds dropped after a scoring failure or panic.",
	"tournament_active_participants":   "Participants still playing.",
	"tournament_round_latency_seconds": "Wall time of one setter round.",
}

// PrometheusMetrics implements ports.MetricsCollector on a Prometheus
// registry. Metric vectors are created on first use; the label names of a
// metric are fixed by that first call.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	factory  promauto.Factory

	mu         sync.Mutex
	counters   map[string]*vec[*prometheus.CounterVec]
	gauges     map[string]*vec[*prometheus.GaugeVec]
	histograms map[string]*vec[*prometheus.HistogramVec]
	kinds      map[string]string

	// conflicts counts calls that reused a name with a different kind.
	conflicts prometheus.Counter
}

type vec[V any] struct {
	v      V
	labels []string
}

// NewPrometheusMetrics returns a collector that registers into registry. A
// nil registry gets a fresh one.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		registry:   registry,
		factory:    factory,
		counters:   make(map[string]*vec[*prometheus.CounterVec]),
		gauges:     make(map[string]*vec[*prometheus.GaugeVec]),
		histograms: make(map[string]*vec[*prometheus.HistogramVec]),
		kinds:      make(map[string]string),
		conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "metric_conflicts_total",
			Help:      "Metric updates dropped because the name was registered with another kind.",
		}),
	}
}

// Registry returns the underlying registry, e.g. to add runtime collectors.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{Registry: pm.registry})
}

// RecordLatency observes duration in seconds on the histogram named
// operation.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.RecordHistogram(operation, duration.Seconds(), labels)
}

// RecordCounter adds value to the counter named metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.claim(metric, "counter") {
		return
	}
	c, ok := pm.counters[metric]
	if !ok {
		names := labelNames(labels)
		c = &vec[*prometheus.CounterVec]{
			v: pm.factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      metric,
				Help:      helpFor(metric),
			}, names),
			labels: names,
		}
		pm.counters[metric] = c
	}
	c.v.WithLabelValues(labelValues(c.labels, labels)...).Add(value)
}

// RecordGauge sets the gauge named metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.claim(metric, "gauge") {
		return
	}
	g, ok := pm.gauges[metric]
	if !ok {
		names := labelNames(labels)
		g = &vec[*prometheus.GaugeVec]{
			v: pm.factory.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      metric,
				Help:      helpFor(metric),
			}, names),
			labels: names,
		}
		pm.gauges[metric] = g
	}
	g.v.WithLabelValues(labelValues(g.labels, labels)...).Set(value)
}

// RecordHistogram observes value on the histogram named metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if !pm.claim(metric, "histogram") {
		return
	}
	h, ok := pm.histograms[metric]
	if !ok {
		names := labelNames(labels)
		buckets := prometheus.DefBuckets
		if strings.HasSuffix(metric, "_seconds") {
			buckets = LatencyBuckets
		}
		h = &vec[*prometheus.HistogramVec]{
			v: pm.factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      metric,
				Help:      helpFor(metric),
				Buckets:   buckets,
			}, names),
			labels: names,
		}
		pm.histograms[metric] = h
	}
	h.v.WithLabelValues(labelValues(h.labels, labels)...).Observe(value)
}

// claim binds metric to kind on first use and reports whether later calls
// agree. Callers hold pm.mu.
func (pm *PrometheusMetrics) claim(metric, kind string) bool {
	existing, ok := pm.kinds[metric]
	if !ok {
		pm.kinds[metric] = kind
		return true
	}
	if existing != kind {
		pm.conflicts.Inc()
		return false
	}
	return true
}

func helpFor(metric string) string {
	if h, ok := help[metric]; ok {
		return h
	}
	return "Application metric " + metric + "."
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// labelValues orders labels by names. Missing labels are empty; labels not
// in names are dropped.
func labelValues(names []string, labels map[string]string) []string {
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = labels[n]
	}
	return values
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
