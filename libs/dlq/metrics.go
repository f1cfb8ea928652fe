package dlq

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	messages      metric.Int64Counter
	retries       metric.Int64Counter
	successes     metric.Int64Counter
	failures      metric.Int64Counter
	sweepDuration metric.Float64Histogram
}

func newMetrics() *metrics {
	meter := otel.Meter("github.com/md-rashed-zaman/storefront/libs/dlq")
	fallback := noop.NewMeterProvider().Meter("dlq")

	m := &metrics{}
	var err error
	if m.messages, err = meter.Int64Counter("dlq.messages", metric.WithDescription("Failed deliveries ingested into the DLQ")); err != nil {
		m.messages, _ = fallback.Int64Counter("dlq.messages")
	}
	if m.retries, err = meter.Int64Counter("dlq.retries", metric.WithDescription("Redelivery attempts")); err != nil {
		m.retries, _ = fallback.Int64Counter("dlq.retries")
	}
	if m.successes, err = meter.Int64Counter("dlq.retry.successes"); err != nil {
		m.successes, _ = fallback.Int64Counter("dlq.retry.successes")
	}
	if m.failures, err = meter.Int64Counter("dlq.retry.failures"); err != nil {
		m.failures, _ = fallback.Int64Counter("dlq.retry.failures")
	}
	if m.sweepDuration, err = meter.Float64Histogram("dlq.sweep.duration", metric.WithUnit("s")); err != nil {
		m.sweepDuration, _ = fallback.Float64Histogram("dlq.sweep.duration")
	}
	return m
}

func (m *metrics) ingested(ctx context.Context, topic string, status Status) {
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic), attribute.String("status", string(status))))
}

func (m *metrics) attempted(ctx context.Context, topic string, err error, exhausted bool) {
	attrs := metric.WithAttributes(attribute.String("topic", topic))
	m.retries.Add(ctx, 1, attrs)
	if err == nil {
		m.successes.Add(ctx, 1, attrs)
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic), attribute.Bool("exhausted", exhausted)))
}

func (m *metrics) swept(ctx context.Context, started time.Time) {
	m.sweepDuration.Record(ctx, time.Since(started).Seconds())
}
