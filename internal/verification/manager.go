// Package verification issues and redeems the single-use secrets that prove control of an
// email address: link tokens for email verification and password reset, and short numeric
// codes for in-app verification.
package verification

import (
	"context"
	"fmt"
	"time"

	"storefront/backend/internal/account/domain"
	"storefront/backend/internal/platform/autherr"
	"storefront/backend/internal/security"
)

// Kind selects which token slot on the account is used.
type Kind int

const (
	KindEmailVerification Kind = iota + 1
	KindPasswordReset
)

func (k Kind) String() string {
	switch k {
	case KindEmailVerification:
		return "email_verification"
	case KindPasswordReset:
		return "password_reset"
	}
	return "unknown"
}

// AccountStore is the subset of the account repository the manager needs.
type AccountStore interface {
	SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*domain.Account, error)
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (*domain.Account, error)
}

// RedeemOptions carries per-kind inputs. NewPasswordHash is required for KindPasswordReset.
type RedeemOptions struct {
	NewPasswordHash string
}

// Manager issues opaque link tokens and redeems them. Only sha256(token) is stored.
type Manager struct {
	accounts  AccountStore
	verifyTTL time.Duration
	resetTTL  time.Duration
	now       func() time.Time
}

// NewManager returns a Manager. verifyTTL and resetTTL are the token lifetimes per kind.
func NewManager(accounts AccountStore, verifyTTL, resetTTL time.Duration) *Manager {
	return &Manager{accounts: accounts, verifyTTL: verifyTTL, resetTTL: resetTTL, now: time.Now}
}

// Issue generates a new token of kind for the account, replacing any pending one, and returns
// the plaintext for delivery.
func (m *Manager) Issue(ctx context.Context, kind Kind, accountID string) (string, error) {
	token, err := security.NewOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("verification: issue: %w", err)
	}
	now := m.now().UTC()
	hash := security.HashToken(token)
	switch kind {
	case KindEmailVerification:
		err = m.accounts.SetVerificationToken(ctx, accountID, hash, now.Add(m.verifyTTL), now)
	case KindPasswordReset:
		err = m.accounts.SetResetToken(ctx, accountID, hash, now.Add(m.resetTTL), now)
	default:
		return "", fmt.Errorf("verification: issue: unknown kind %d", kind)
	}
	if err != nil {
		return "", fmt.Errorf("verification: issue %s: %w", kind, err)
	}
	return token, nil
}

// Redeem consumes a token of kind. A wrong, expired or already-used token returns
// autherr.ErrTokenInvalidOrExpired; when two requests race, only the first succeeds.
func (m *Manager) Redeem(ctx context.Context, kind Kind, token string, opts RedeemOptions) (*domain.Account, error) {
	if token == "" {
		return nil, autherr.ErrTokenInvalidOrExpired
	}
	now := m.now().UTC()
	hash := security.HashToken(token)
	var (
		a   *domain.Account
		err error
	)
	switch kind {
	case KindEmailVerification:
		a, err = m.accounts.ConsumeVerificationToken(ctx, hash, now)
	case KindPasswordReset:
		if opts.NewPasswordHash == "" {
			return nil, fmt.Errorf("verification: redeem: new password hash required")
		}
		a, err = m.accounts.ConsumeResetToken(ctx, hash, opts.NewPasswordHash, now)
	default:
		return nil, fmt.Errorf("verification: redeem: unknown kind %d", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("verification: redeem %s: %w", kind, err)
	}
	if a == nil {
		return nil, autherr.ErrTokenInvalidOrExpired
	}
	return a, nil
}
