package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "storefront/backend/internal/auth"

type metrics struct {
	logins metric.Int64Counter
}

// newMetrics registers the auth instruments on the global MeterProvider. Without a
// configured provider the instruments are no-ops.
func newMetrics() *metrics {
	m := &metrics{}
	c, err := otel.Meter(meterName).Int64Counter("auth.login.attempts",
		metric.WithDescription("Sign-in attempts by outcome"))
	if err == nil {
		m.logins = c
	}
	return m
}

func (m *metrics) login(ctx context.Context, outcome string) {
	if m == nil || m.logins == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
