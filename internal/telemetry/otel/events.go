package otel

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"storefront/backend/internal/events"
)

const instrumentationName = "storefront/backend/internal/events"

// recordEmitter is the part of otellog.Logger the publisher needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// EventPublisher mirrors every account event into the OTel log pipeline, then forwards it to
// the wrapped publisher.
type EventPublisher struct {
	next   events.Publisher
	logger recordEmitter
}

// NewEventPublisher wraps next. With a nil provider, next is returned unchanged.
func NewEventPublisher(next events.Publisher, provider *sdklog.LoggerProvider) events.Publisher {
	if provider == nil {
		return next
	}
	return &EventPublisher{next: next, logger: provider.Logger(instrumentationName)}
}

// Publish emits e as a log record and returns the wrapped publisher's result.
func (p *EventPublisher) Publish(ctx context.Context, e events.AccountEvent) error {
	p.logger.Emit(ctx, eventRecord(e))
	if p.next == nil {
		return nil
	}
	return p.next.Publish(ctx, e)
}

func (p *EventPublisher) Close() error {
	if p.next == nil {
		return nil
	}
	return p.next.Close()
}

func eventRecord(e events.AccountEvent) otellog.Record {
	var rec otellog.Record
	rec.SetTimestamp(e.OccurredAt)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName(string(e.Type))
	rec.SetBody(otellog.StringValue(string(e.Type)))
	rec.AddAttributes(
		otellog.String("event.id", e.ID),
		otellog.String("account.id", e.AccountID),
	)
	for k, v := range e.Metadata {
		rec.AddAttributes(otellog.String("event."+k, v))
	}
	return rec
}
