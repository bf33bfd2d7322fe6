// Package metrics holds the Prometheus collectors exposed by the
// dashboard's operational endpoint. The otel meters in pkg/telemetry
// feed the tracing backend; these collectors feed local scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the acquisition pipeline.
type Metrics struct {
	fetchesTotal    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	guardDeferrals  *prometheus.CounterVec
	projectionSkips *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	widgetsActive   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a metrics instance with a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalcore_fetches_total",
				Help: "Fetch cycles by domain, mode and outcome",
			},
			[]string{"domain", "mode", "outcome"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vitalcore_fetch_duration_seconds",
				Help:    "Fetch cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"domain", "mode"},
		),
		guardDeferrals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalcore_guard_deferrals_total",
				Help: "Failing guard verdicts by guard and reason",
			},
			[]string{"guard", "reason"},
		),
		projectionSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalcore_projection_skips_total",
				Help: "Projections skipped by the equality predicate",
			},
			[]string{"domain"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vitalcore_cache_hits_total",
				Help: "Sealed-result cache hits by domain",
			},
			[]string{"domain"},
		),
		widgetsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vitalcore_widgets_active",
				Help: "Currently subscribed widgets",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.fetchesTotal,
		m.fetchDuration,
		m.guardDeferrals,
		m.projectionSkips,
		m.cacheHits,
		m.widgetsActive,
	)

	return m
}

// RecordFetch counts one completed fetch cycle.
func (m *Metrics) RecordFetch(domain, mode, outcome string, seconds float64) {
	m.fetchesTotal.WithLabelValues(domain, mode, outcome).Inc()
	if seconds > 0 {
		m.fetchDuration.WithLabelValues(domain, mode).Observe(seconds)
	}
}

// RecordDeferral counts one guard deferral.
func (m *Metrics) RecordDeferral(guard, reason string) {
	m.guardDeferrals.WithLabelValues(guard, reason).Inc()
}

// RecordProjectionSkip counts one equality skip.
func (m *Metrics) RecordProjectionSkip(domain string) {
	m.projectionSkips.WithLabelValues(domain).Inc()
}

// RecordCacheHit counts one sealed-result cache hit.
func (m *Metrics) RecordCacheHit(domain string) {
	m.cacheHits.WithLabelValues(domain).Inc()
}

// WidgetSubscribed adjusts the active-widget gauge.
func (m *Metrics) WidgetSubscribed(delta int) {
	m.widgetsActive.Add(float64(delta))
}

// Handler returns an HTTP handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
