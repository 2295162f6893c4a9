package events

import (
	"context"

	"go.uber.org/zap"

	"storefront/backend/internal/platform/logging"
)

// LogPublisher writes events to the log. Used when RabbitMQ is not configured or unreachable.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logging.OrNop(logger).Named("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, e AccountEvent) error {
	p.logger.Info("account event", zap.String("type", string(e.Type)), zap.String("account_id", e.AccountID))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
