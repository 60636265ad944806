package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "commerce-auth/auth"

// Outcomes recorded on login and refresh counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the authentication counters.
type Metrics struct {
	logins      metric.Int64Counter
	refreshes   metric.Int64Counter
	revocations metric.Int64Counter
}

// NewMetrics registers the counters on provider. A nil provider yields no-op counters.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)
	logins, err := meter.Int64Counter("auth.logins", metric.WithDescription("Login attempts by principal type and outcome"))
	if err != nil {
		return nil, err
	}
	refreshes, err := meter.Int64Counter("auth.refreshes", metric.WithDescription("Refresh token rotations by outcome"))
	if err != nil {
		return nil, err
	}
	revocations, err := meter.Int64Counter("auth.session_revocations", metric.WithDescription("Revoked customer sessions by reason"))
	if err != nil {
		return nil, err
	}
	return &Metrics{logins: logins, refreshes: refreshes, revocations: revocations}, nil
}

// Login records one login attempt.
func (m *Metrics) Login(ctx context.Context, principalType, outcome string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("principal_type", principalType),
		attribute.String("outcome", outcome),
	))
}

// Refresh records one rotation attempt.
func (m *Metrics) Refresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Revoked records n revoked sessions.
func (m *Metrics) Revoked(ctx context.Context, reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revocations.Add(ctx, n, metric.WithAttributes(attribute.String("reason", reason)))
}
