package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	accountdomain "storefront/backend/internal/account/domain"
	"storefront/backend/internal/audit"
	"storefront/backend/internal/events"
	"storefront/backend/internal/platform/autherr"
	"storefront/backend/internal/verification"
)

// Throttle scopes.
const (
	scopeResendVerification = "resend-verification"
	scopeForgotPassword     = "forgot-password"
	scopeVerificationCode   = "verification-code"
)

// VerifyEmail redeems an email verification link token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*AccountView, error) {
	a, err := s.verification.Redeem(ctx, verification.KindEmailVerification, token, verification.RedeemOptions{})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionEmailVerified, audit.ResourceAccount, map[string]string{"method": "link"})
	s.publish(ctx, events.AccountVerified, a, map[string]string{"method": "link"})
	return viewOf(a), nil
}

// ResendVerification issues a new verification link, replacing any pending one.
func (s *AuthService) ResendVerification(ctx context.Context, accountID string) error {
	a, err := s.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if a.IsVerified {
		return autherr.Validation(map[string]string{"email": "email is already verified"})
	}
	if err := s.allow(ctx, scopeResendVerification, a.ID); err != nil {
		return err
	}
	token, err := s.verification.Issue(ctx, verification.KindEmailVerification, a.ID)
	if err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.SendVerificationEmail(ctx, a, token); err != nil {
			s.logger.Warn("send verification email", zap.String("account_id", a.ID), zap.Error(err))
		}
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionVerificationSent, audit.ResourceAccount, map[string]string{"method": "link"})
	return nil
}

// ForgotPassword sends a reset link when an active account owns email. The result never
// reveals whether the account exists, and throttled requests succeed silently.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = accountdomain.NormalizeEmail(email)
	if msg := validateEmail(email); msg != "" {
		return autherr.Validation(map[string]string{"email": msg})
	}
	if err := s.allow(ctx, scopeForgotPassword, email); err != nil {
		s.logger.Info("password reset request throttled", zap.String("email", email))
		return nil
	}
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if a == nil || !a.IsActive() {
		s.logger.Debug("password reset requested for unknown or inactive account")
		return nil
	}
	token, err := s.verification.Issue(ctx, verification.KindPasswordReset, a.ID)
	if err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.SendPasswordResetEmail(ctx, a, token); err != nil {
			s.logger.Warn("send password reset email", zap.String("account_id", a.ID), zap.Error(err))
		}
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionPasswordResetRequested, audit.ResourceAccount, nil)
	return nil
}

// ResetPassword redeems a reset token, sets the new password, clears any lock and signs
// out every session.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if msg := validatePassword(newPassword); msg != "" {
		return autherr.Validation(map[string]string{"password": msg})
	}
	if token == "" {
		return autherr.ErrTokenInvalidOrExpired
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	a, err := s.verification.Redeem(ctx, verification.KindPasswordReset, token, verification.RedeemOptions{NewPasswordHash: hashed})
	if err != nil {
		return err
	}
	if err := s.sessions.RevokeAllByAccount(ctx, a.ID, s.now().UTC()); err != nil {
		s.logger.Error("revoke sessions after password reset", zap.String("account_id", a.ID), zap.Error(err))
	}
	s.sendPasswordChanged(ctx, a)
	s.audit.LogEvent(ctx, a.ID, audit.ActionPasswordReset, audit.ResourceAccount, nil)
	s.publish(ctx, events.AccountPasswordReset, a, nil)
	return nil
}

// ChangePassword replaces the caller's password after checking the current one. Other
// sessions are signed out; the caller's session stays.
func (s *AuthService) ChangePassword(ctx context.Context, id Identity, current, next string) error {
	a, err := s.activeAccount(ctx, id.AccountID)
	if err != nil {
		return err
	}
	if !a.HasPassword() || !s.hasher.Verify([]byte(current), a.PasswordHash) {
		return autherr.ErrInvalidCredentials
	}
	if msg := validatePassword(next); msg != "" {
		return autherr.Validation(map[string]string{"newPassword": msg})
	}
	if next == current {
		return autherr.Validation(map[string]string{"newPassword": "new password must differ from the current password"})
	}
	hashed, err := s.hasher.Hash([]byte(next))
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	now := s.now().UTC()
	if err := s.accounts.UpdatePassword(ctx, a.ID, hashed, now); err != nil {
		return err
	}
	if err := s.sessions.RevokeOthersByAccount(ctx, a.ID, id.SessionID, now); err != nil {
		s.logger.Error("revoke other sessions after password change", zap.String("account_id", a.ID), zap.Error(err))
	}
	s.sendPasswordChanged(ctx, a)
	s.audit.LogEvent(ctx, a.ID, audit.ActionPasswordChanged, audit.ResourceAccount, nil)
	s.publish(ctx, events.AccountPasswordChanged, a, nil)
	return nil
}

// SendVerificationCode emails a 6-digit code the caller can enter instead of following the link.
func (s *AuthService) SendVerificationCode(ctx context.Context, accountID string) error {
	a, err := s.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if a.IsVerified {
		return autherr.Validation(map[string]string{"email": "email is already verified"})
	}
	if s.codes == nil {
		return errors.New("auth: verification codes are not configured")
	}
	if err := s.allow(ctx, scopeVerificationCode, a.ID); err != nil {
		return err
	}
	code, err := s.codes.Issue(ctx, a.ID)
	if err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.SendVerificationCodeEmail(ctx, a, code); err != nil {
			s.logger.Warn("send verification code", zap.String("account_id", a.ID), zap.Error(err))
		}
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionVerificationSent, audit.ResourceAccount, map[string]string{"method": "code"})
	return nil
}

// VerifyCode checks a verification code and marks the account verified.
func (s *AuthService) VerifyCode(ctx context.Context, accountID, code string) (*AccountView, error) {
	if !validCode(code) {
		return nil, autherr.Validation(map[string]string{"code": "code must be 6 digits"})
	}
	if s.codes == nil {
		return nil, errors.New("auth: verification codes are not configured")
	}
	if err := s.codes.Check(ctx, accountID, code); err != nil {
		return nil, err
	}
	a, err := s.accounts.MarkVerified(ctx, accountID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, autherr.ErrTokenInvalid
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionEmailVerified, audit.ResourceAccount, map[string]string{"method": "code"})
	s.publish(ctx, events.AccountVerified, a, map[string]string{"method": "code"})
	return viewOf(a), nil
}

// allow applies the mail throttle. Redis failures fail open.
func (s *AuthService) allow(ctx context.Context, scope, subject string) error {
	if s.throttle == nil {
		return nil
	}
	err := s.throttle.Allow(ctx, scope, subject)
	if err == nil || errors.Is(err, autherr.ErrRateLimited) {
		return err
	}
	s.logger.Warn("throttle unavailable; allowing request", zap.String("scope", scope), zap.Error(err))
	return nil
}

func (s *AuthService) sendVerificationEmail(ctx context.Context, a *accountdomain.Account) {
	token, err := s.verification.Issue(ctx, verification.KindEmailVerification, a.ID)
	if err != nil {
		s.logger.Warn("issue verification token", zap.String("account_id", a.ID), zap.Error(err))
		return
	}
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendVerificationEmail(ctx, a, token); err != nil {
		s.logger.Warn("send verification email", zap.String("account_id", a.ID), zap.Error(err))
	}
}

func (s *AuthService) sendPasswordChanged(ctx context.Context, a *accountdomain.Account) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendPasswordChangedNotice(ctx, a); err != nil {
		s.logger.Warn("send password changed notice", zap.String("account_id", a.ID), zap.Error(err))
	}
}
