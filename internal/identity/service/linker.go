package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "storefront/backend/internal/account/domain"
	accountrepo "storefront/backend/internal/account/repository"
	"storefront/backend/internal/identity/domain"
	"storefront/backend/internal/platform/autherr"
	"storefront/backend/internal/platform/logging"
)

// AccountRepo is the minimal account repository needed by the linker.
type AccountRepo interface {
	Create(ctx context.Context, a *accountdomain.Account) error
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	GetByProviderID(ctx context.Context, provider accountdomain.Provider, providerID string) (*accountdomain.Account, error)
	TouchLastLogin(ctx context.Context, id string, now time.Time) error
	LinkProvider(ctx context.Context, id string, provider accountdomain.Provider, providerID, avatarURL string, now time.Time) (*accountdomain.Account, error)
}

// Linker resolves a social profile to exactly one account: an existing link, an existing
// account with the same email, or a new social-only account.
type Linker struct {
	accounts AccountRepo
	logger   *zap.Logger
	now      func() time.Time
}

// NewLinker returns a Linker over accounts.
func NewLinker(accounts AccountRepo, logger *zap.Logger) *Linker {
	return &Linker{accounts: accounts, logger: logging.OrNop(logger).Named("identity"), now: time.Now}
}

// Link returns the account for p and how it was found. Every storage failure is reported as
// autherr.KindAccountLinkError and leaves no partial link behind.
func (l *Linker) Link(ctx context.Context, p domain.Profile) (*accountdomain.Account, domain.LinkOutcome, error) {
	if !p.Provider.Valid() || p.ProviderUserID == "" {
		return nil, "", autherr.Wrap(autherr.KindAccountLinkError, fmt.Errorf("identity: incomplete profile for %q", p.Provider))
	}
	now := l.now().UTC()

	a, err := l.accounts.GetByProviderID(ctx, p.Provider, p.ProviderUserID)
	if err != nil {
		return nil, "", linkErr("lookup provider", err)
	}
	if a != nil {
		if err := l.accounts.TouchLastLogin(ctx, a.ID, now); err != nil {
			return nil, "", linkErr("touch last login", err)
		}
		a.LastLoginAt = &now
		return a, domain.LinkOutcomeLogin, nil
	}

	email := accountdomain.NormalizeEmail(p.Email)
	if email != "" {
		existing, err := l.accounts.GetByEmail(ctx, email)
		if err != nil {
			return nil, "", linkErr("lookup email", err)
		}
		if existing != nil {
			linked, err := l.accounts.LinkProvider(ctx, existing.ID, p.Provider, p.ProviderUserID, p.AvatarURL, now)
			if err != nil {
				return nil, "", linkErr("link provider", err)
			}
			if linked == nil {
				// The email account already carries a different id for this provider.
				return nil, "", linkErr("link provider", fmt.Errorf("account %s already linked to another %s identity", existing.ID, p.Provider))
			}
			l.logger.Info("social identity linked",
				zap.String("account_id", linked.ID), zap.String("provider", string(p.Provider)))
			return linked, domain.LinkOutcomeLinked, nil
		}
	}

	created, err := accountdomain.NewSocialAccount(uuid.New().String(), p.Provider, p.ProviderUserID, p.Name, email, p.AvatarURL, now)
	if err != nil {
		return nil, "", linkErr("build account", err)
	}
	if err := l.accounts.Create(ctx, created); err != nil {
		if errors.Is(err, accountrepo.ErrDuplicate) {
			l.logger.Warn("social sign-up raced with another request",
				zap.String("provider", string(p.Provider)), zap.Error(err))
		}
		return nil, "", linkErr("create account", err)
	}
	l.logger.Info("social account created",
		zap.String("account_id", created.ID), zap.String("provider", string(p.Provider)))
	return created, domain.LinkOutcomeCreated, nil
}

func linkErr(op string, err error) error {
	return autherr.Wrap(autherr.KindAccountLinkError, fmt.Errorf("identity: %s: %w", op, err))
}
