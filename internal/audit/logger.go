package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/backend/internal/audit/domain"
	auditrepo "storefront/backend/internal/audit/repository"
	"storefront/backend/internal/platform/logging"
)

// unknownIP is recorded when the request carried no client address.
const unknownIP = "unknown"

// IPExtractor reads the client address recorded on the request context.
type IPExtractor func(context.Context) string

// AuditLogger records account activity. Implementations never fail the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, accountID, action, resource string, metadata map[string]string)
}

// Logger persists audit entries through the audit repository.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	logger      *zap.Logger
}

// NewLogger returns a Logger writing to repo. A nil ipExtractor records every entry as unknownIP.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, logger *zap.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, logger: logging.OrNop(logger).Named("audit")}
}

// LogEvent stores one entry. metadata is kept as a JSON object; write errors are logged.
func (l *Logger) LogEvent(ctx context.Context, accountID, action, resource string, metadata map[string]string) {
	if l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Action:    action,
		Resource:  resource,
		IP:        l.clientIP(ctx),
		Metadata:  encodeMetadata(metadata),
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Warn("audit write failed",
			zap.String("account_id", accountID), zap.String("action", action), zap.Error(err))
	}
}

func (l *Logger) clientIP(ctx context.Context) string {
	if l.ipExtractor == nil {
		return unknownIP
	}
	if ip := l.ipExtractor(ctx); ip != "" {
		return ip
	}
	return unknownIP
}

func encodeMetadata(md map[string]string) string {
	if len(md) == 0 {
		return ""
	}
	b, err := json.Marshal(md)
	if err != nil {
		return ""
	}
	return string(b)
}

// Nop discards audit events.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, map[string]string) {}
