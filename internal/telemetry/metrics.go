package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DispatchMetrics records per-channel dispatch outcomes and latency.
type DispatchMetrics struct {
	attempts metric.Int64Counter
	duration metric.Float64Histogram
}

// NewDispatchMetrics creates the dispatch instruments on the global
// meter provider.
func NewDispatchMetrics() (*DispatchMetrics, error) {
	meter := otel.Meter("github.com/lablink/lablink/internal/notify")

	attempts, err := meter.Int64Counter(
		"notification.dispatch.attempts",
		metric.WithDescription("Channel delivery attempts by channel and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create attempts counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"notification.dispatch.duration",
		metric.WithDescription("Wall time of a full multi-channel dispatch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &DispatchMetrics{attempts: attempts, duration: duration}, nil
}

// RecordResult counts one channel outcome.
func (m *DispatchMetrics) RecordResult(ctx context.Context, channel, status string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("status", status),
	))
}

// RecordDuration records the wall time of a dispatch call.
func (m *DispatchMetrics) RecordDuration(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, d.Seconds())
}
