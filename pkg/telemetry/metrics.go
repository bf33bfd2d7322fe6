package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/vitalview/vitalcore/pkg/domain"
)

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	fetchCycleCounter     metric.Int64Counter
	fetchRetryCounter     metric.Int64Counter
	guardDeferralCounter  metric.Int64Counter
	projectionSkipCounter metric.Int64Counter
	fetchLatencyHistogram metric.Float64Histogram
)

// FetchMetrics captures the fields recorded after one fetch cycle.
type FetchMetrics struct {
	Domain   domain.Key
	Mode     string // demo or live
	Outcome  string // ready, error, deferred
	Duration time.Duration
	Retries  int
}

// RecordFetchMetrics emits the counters and histogram describing one
// orchestrated fetch cycle.
func RecordFetchMetrics(ctx context.Context, m FetchMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("vital.domain", string(m.Domain)),
		attribute.String("fetch.mode", m.Mode),
		attribute.String("fetch.outcome", m.Outcome),
	}

	fetchCycleCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Duration > 0 {
		fetchLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
	if m.Retries > 0 {
		fetchRetryCounter.Add(ctx, int64(m.Retries), metric.WithAttributes(attrs...))
	}
}

// RecordGuardDeferral counts one failing guard verdict.
func RecordGuardDeferral(ctx context.Context, guardName string, reason domain.DeferralReason) {
	if err := ensureMetrics(); err != nil {
		return
	}
	guardDeferralCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("guard.name", guardName),
		attribute.String("guard.reason", string(reason)),
	))
}

// RecordProjectionSkip counts one equality-predicate skip.
func RecordProjectionSkip(ctx context.Context, key domain.Key) {
	if err := ensureMetrics(); err != nil {
		return
	}
	projectionSkipCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("vital.domain", string(key)),
	))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("vitalcore.pipeline")

		fetchCycleCounter, metricsInitErr = meter.Int64Counter(
			"vitalcore.fetch.cycles_total",
			metric.WithDescription("Fetch cycles partitioned by domain, mode and outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		fetchRetryCounter, metricsInitErr = meter.Int64Counter(
			"vitalcore.fetch.retries_total",
			metric.WithDescription("Retry attempts performed by fetch cycles"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		guardDeferralCounter, metricsInitErr = meter.Int64Counter(
			"vitalcore.guard.deferrals_total",
			metric.WithDescription("Failing guard verdicts partitioned by guard and reason"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		projectionSkipCounter, metricsInitErr = meter.Int64Counter(
			"vitalcore.projection.skips_total",
			metric.WithDescription("Projections skipped by the equality predicate"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		fetchLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"vitalcore.fetch.duration_ms",
			metric.WithDescription("Observed fetch cycle latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
