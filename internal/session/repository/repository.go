package repository

import (
	"context"
	"time"

	"storefront/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllByAccount(ctx context.Context, accountID string, at time.Time) error
	RevokeOthersByAccount(ctx context.Context, accountID, keepSessionID string, at time.Time) error
	RotateRefreshToken(ctx context.Context, sessionID, oldJti, newJti, newHash string, expiresAt, at time.Time) (bool, error)
}
