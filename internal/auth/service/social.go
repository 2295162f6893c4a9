package service

import (
	"context"

	"go.uber.org/zap"

	"storefront/backend/internal/audit"
	"storefront/backend/internal/events"
	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/platform/autherr"
)

// SocialCallback signs in with a provider profile, linking or creating the account as needed.
func (s *AuthService) SocialCallback(ctx context.Context, p identitydomain.Profile, meta RequestMeta) (*AuthResult, error) {
	if s.linker == nil {
		return nil, autherr.ErrAccountLink
	}
	a, outcome, err := s.linker.Link(ctx, p)
	if err != nil {
		s.logger.Warn("social sign-in failed", zap.String("provider", string(p.Provider)), zap.Error(err))
		return nil, err
	}
	if !a.IsActive() {
		return nil, autherr.ErrAccountInactive
	}
	res, err := s.openSession(ctx, a, false, meta)
	if err != nil {
		return nil, err
	}
	md := map[string]string{"provider": string(p.Provider), "outcome": string(outcome)}
	s.metrics.login(ctx, "social_"+string(outcome))
	s.audit.LogEvent(ctx, a.ID, audit.ActionSocialLogin, audit.ResourceSession, md)
	switch outcome {
	case identitydomain.LinkOutcomeCreated:
		s.publish(ctx, events.AccountRegistered, a, md)
		s.publish(ctx, events.AccountSocialLinked, a, md)
	case identitydomain.LinkOutcomeLinked:
		s.publish(ctx, events.AccountSocialLinked, a, md)
	}
	s.publish(ctx, events.AccountLoggedIn, a, map[string]string{"method": string(p.Provider)})
	return res, nil
}
