package repository

import (
	"context"
	"errors"
	"time"

	"storefront/backend/internal/account/domain"
)

// ErrDuplicate is matched (errors.Is) by every *DuplicateError.
var ErrDuplicate = errors.New("duplicate account identity")

// DuplicateError reports which identity field collided on insert or update.
type DuplicateError struct {
	Field string // "email", "phone", "googleId", "facebookId"
}

func (e *DuplicateError) Error() string { return "duplicate account " + e.Field }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// LoginState is the lockout bookkeeping after a failed-login update.
type LoginState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
}

// ProfileUpdate holds optional profile fields; nil means unchanged. An empty Phone clears it.
type ProfileUpdate struct {
	Name      *string
	Phone     *string
	AvatarURL *string
}

// Repository defines persistence for accounts. Every mutation is a single statement so
// concurrent requests for the same account cannot lose updates.
// Getters return (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByProviderID(ctx context.Context, provider domain.Provider, providerID string) (*domain.Account, error)

	RecordFailedLogin(ctx context.Context, id string, now time.Time, threshold int, lockFor time.Duration) (*LoginState, error)
	RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error
	TouchLastLogin(ctx context.Context, id string, now time.Time) error

	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*domain.Account, error)
	MarkVerified(ctx context.Context, id string, now time.Time) (*domain.Account, error)
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (*domain.Account, error)

	UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error
	UpdateProfile(ctx context.Context, id string, u ProfileUpdate, now time.Time) (*domain.Account, error)
	LinkProvider(ctx context.Context, id string, provider domain.Provider, providerID, avatarURL string, now time.Time) (*domain.Account, error)
}
