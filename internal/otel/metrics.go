package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "jump-ssh"

// Metrics holds the OTEL metric instruments for bastion sessions.
// All instruments are safe for concurrent use.
type Metrics struct {
	// Sessions counts finished sessions partitioned by outcome
	// ("ok" or a failure kind such as "NotFound").
	Sessions metric.Int64Counter

	// BytesRead counts raw bytes read from the transport.
	BytesRead metric.Int64Counter

	// ExpectWait records how long each prompt wait took, by step.
	ExpectWait metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Sessions, err = meter.Int64Counter("jump.sessions",
		metric.WithDescription("Bastion sessions partitioned by outcome"))
	if err != nil {
		return nil, err
	}

	m.BytesRead, err = meter.Int64Counter("jump.bytes_read",
		metric.WithDescription("Bytes read from the bastion transport"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	m.ExpectWait, err = meter.Float64Histogram("jump.expect.wait",
		metric.WithDescription("Time spent waiting for a prompt"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordSession records a finished session.
func (m *Metrics) RecordSession(ctx context.Context, transport, outcome string) {
	if m == nil {
		return
	}
	m.Sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("jump.transport", transport),
		attribute.String("jump.outcome", outcome),
	))
}

// RecordBytes records n bytes read from the transport.
func (m *Metrics) RecordBytes(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesRead.Add(ctx, int64(n))
}

// RecordExpectWait records one prompt wait.
func (m *Metrics) RecordExpectWait(ctx context.Context, step string, ms float64, matched bool) {
	if m == nil {
		return
	}
	m.ExpectWait.Record(ctx, ms, metric.WithAttributes(
		attribute.String("jump.step", step),
		attribute.Bool("jump.matched", matched),
	))
}
