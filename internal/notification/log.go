package notification

import (
	"context"

	"go.uber.org/zap"

	"storefront/backend/internal/platform/logging"
)

// LogMailer records messages in the log instead of sending them. Bodies carry tokens and
// are never logged.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logging.OrNop(logger).Named("mail")}
}

func (l *LogMailer) Send(ctx context.Context, m Message) error {
	l.logger.Info("mail not delivered (no transport configured)",
		zap.String("kind", string(m.Kind)), zap.String("account_id", m.AccountID), zap.String("subject", m.Subject))
	return nil
}
