// Package service implements the account-security flows of the storefront: registration,
// password and social login, email verification, password recovery, profile changes and
// refresh-token rotation. Every dependency is injected once from cmd/server.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "storefront/backend/internal/account/domain"
	accountrepo "storefront/backend/internal/account/repository"
	"storefront/backend/internal/audit"
	auditdomain "storefront/backend/internal/audit/domain"
	"storefront/backend/internal/events"
	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/notification"
	"storefront/backend/internal/platform/autherr"
	"storefront/backend/internal/platform/logging"
	policyengine "storefront/backend/internal/policy/engine"
	"storefront/backend/internal/security"
	sessiondomain "storefront/backend/internal/session/domain"
	"storefront/backend/internal/verification"
)

// AccountRepo is the minimal account repository needed by the auth service.
type AccountRepo interface {
	Create(ctx context.Context, a *accountdomain.Account) error
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error)
	RecordFailedLogin(ctx context.Context, id string, now time.Time, threshold int, lockFor time.Duration) (*accountrepo.LoginState, error)
	RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error
	MarkVerified(ctx context.Context, id string, now time.Time) (*accountdomain.Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error
	UpdateProfile(ctx context.Context, id string, u accountrepo.ProfileUpdate, now time.Time) (*accountdomain.Account, error)
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllByAccount(ctx context.Context, accountID string, at time.Time) error
	RevokeOthersByAccount(ctx context.Context, accountID, keepSessionID string, at time.Time) error
	RotateRefreshToken(ctx context.Context, sessionID, oldJti, newJti, newHash string, expiresAt, at time.Time) (bool, error)
}

// TokenManager issues and redeems email verification and password reset links.
type TokenManager interface {
	Issue(ctx context.Context, kind verification.Kind, accountID string) (string, error)
	Redeem(ctx context.Context, kind verification.Kind, token string, opts verification.RedeemOptions) (*accountdomain.Account, error)
}

// CodeStore issues and checks 6-digit verification codes.
type CodeStore interface {
	Issue(ctx context.Context, accountID string) (string, error)
	Check(ctx context.Context, accountID, code string) error
}

// Throttle limits mail-sending operations.
type Throttle interface {
	Allow(ctx context.Context, scope, subject string) error
}

// SocialLinker resolves a provider profile to an account.
type SocialLinker interface {
	Link(ctx context.Context, p identitydomain.Profile) (*accountdomain.Account, identitydomain.LinkOutcome, error)
}

// ActivityRepo lists an account's audit trail.
type ActivityRepo interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int32) ([]*auditdomain.AuditLog, error)
}

// Deps are the collaborators of AuthService. Accounts, Sessions, Hasher, Tokens and
// Verification are required; the rest fall back to no-ops when nil.
type Deps struct {
	Accounts     AccountRepo
	Sessions     SessionRepo
	Hasher       *security.Hasher
	Tokens       *security.TokenProvider
	Verification TokenManager
	Codes        CodeStore
	Throttle     Throttle
	Linker       SocialLinker
	Notifier     notification.Notifier
	Events       events.Publisher
	Audit        audit.AuditLogger
	Activity     ActivityRepo
	Policy       policyengine.Evaluator
	Logger       *zap.Logger

	LockoutThreshold int
	LockoutDuration  time.Duration
}

// AuthService orchestrates the account-security operations.
type AuthService struct {
	accounts     AccountRepo
	sessions     SessionRepo
	hasher       *security.Hasher
	tokens       *security.TokenProvider
	verification TokenManager
	codes        CodeStore
	throttle     Throttle
	linker       SocialLinker
	notifier     notification.Notifier
	events       events.Publisher
	audit        audit.AuditLogger
	activity     ActivityRepo
	policy       policyengine.Evaluator
	logger       *zap.Logger
	metrics      *metrics

	lockThreshold int
	lockDuration  time.Duration
	now           func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Deps) *AuthService {
	s := &AuthService{
		accounts:      d.Accounts,
		sessions:      d.Sessions,
		hasher:        d.Hasher,
		tokens:        d.Tokens,
		verification:  d.Verification,
		codes:         d.Codes,
		throttle:      d.Throttle,
		linker:        d.Linker,
		notifier:      d.Notifier,
		events:        d.Events,
		audit:         d.Audit,
		activity:      d.Activity,
		policy:        d.Policy,
		logger:        logging.OrNop(d.Logger).Named("auth"),
		metrics:       newMetrics(),
		lockThreshold: d.LockoutThreshold,
		lockDuration:  d.LockoutDuration,
		now:           time.Now,
	}
	if s.lockThreshold <= 0 {
		s.lockThreshold = 5
	}
	if s.lockDuration <= 0 {
		s.lockDuration = 2 * time.Hour
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.events == nil {
		s.events = events.NewLogPublisher(d.Logger)
	}
	return s
}

// RequestMeta describes the client a session is opened for.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Identity is the authenticated caller, taken from a validated access token.
type Identity struct {
	AccountID string
	SessionID string
	Email     string
	Role      string
}

// AuthResult is returned by every operation that signs the caller in.
type AuthResult struct {
	Account      *AccountView
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
}

// RegisterInput is the self-registration form.
type RegisterInput struct {
	Name          string
	Email         string
	Password      string
	Phone         string
	AcceptTerms   bool
	AcceptPrivacy bool
	RememberMe    bool
}

// Register creates a customer account, sends the verification email and signs the caller in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (*AuthResult, error) {
	email := accountdomain.NormalizeEmail(in.Email)
	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "name is required"
	}
	if msg := validateEmail(email); msg != "" {
		fields["email"] = msg
	}
	if msg := validatePassword(in.Password); msg != "" {
		fields["password"] = msg
	}
	if msg := validatePhone(in.Phone); msg != "" {
		fields["phone"] = msg
	}
	if !in.AcceptTerms {
		fields["acceptTerms"] = "terms of service must be accepted"
	}
	if !in.AcceptPrivacy {
		fields["acceptPrivacy"] = "privacy policy must be accepted"
	}
	if len(fields) > 0 {
		return nil, autherr.Validation(fields)
	}

	existing, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, duplicateErr("email")
	}
	hashed, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	now := s.now().UTC()
	a, err := accountdomain.NewAccount(uuid.New().String(), in.Name, email, in.Phone, hashed, now)
	if err != nil {
		return nil, autherr.Wrap(autherr.KindValidation, err)
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		var dup *accountrepo.DuplicateError
		if errors.As(err, &dup) {
			return nil, duplicateErr(dup.Field)
		}
		return nil, err
	}

	s.sendVerificationEmail(ctx, a)
	res, err := s.openSession(ctx, a, in.RememberMe, meta)
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionRegister, audit.ResourceAccount, nil)
	s.publish(ctx, events.AccountRegistered, a, nil)
	s.logger.Info("account registered", zap.String("account_id", a.ID))
	return res, nil
}

// Login signs in with email and password. Repeated failures lock the account.
func (s *AuthService) Login(ctx context.Context, email, password string, rememberMe bool, meta RequestMeta) (*AuthResult, error) {
	email = accountdomain.NormalizeEmail(email)
	if email == "" || password == "" {
		s.metrics.login(ctx, "invalid")
		return nil, autherr.ErrInvalidCredentials
	}
	a, err := s.findByCredentials(ctx, email, password)
	if err != nil {
		s.metrics.login(ctx, autherr.KindOf(err).String())
		return nil, err
	}
	res, err := s.openSession(ctx, a, rememberMe, meta)
	if err != nil {
		return nil, err
	}
	s.metrics.login(ctx, "ok")
	s.audit.LogEvent(ctx, a.ID, audit.ActionLoginSuccess, audit.ResourceSession, nil)
	s.publish(ctx, events.AccountLoggedIn, a, map[string]string{"method": "password"})
	return res, nil
}

// findByCredentials applies the login-attempt guard: a locked account is refused before the
// password is checked, and each mismatch is counted in one atomic update. An inactive account
// is refused after the password matches and before any success state is written.
func (s *AuthService) findByCredentials(ctx context.Context, email, password string) (*accountdomain.Account, error) {
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if a == nil {
		// Spend comparable time so unknown emails are not distinguishable by latency.
		s.hasher.Verify([]byte(password), s.dummyPasswordHash())
		s.audit.LogEvent(ctx, "", audit.ActionLoginFailure, audit.ResourceSession, map[string]string{"reason": "unknown_email"})
		return nil, autherr.ErrInvalidCredentials
	}
	now := s.now().UTC()
	if a.IsLocked(now) {
		until := *a.LockedUntil
		if st, err := s.accounts.RecordFailedLogin(ctx, a.ID, now, s.lockThreshold, s.lockDuration); err != nil {
			s.logger.Warn("record failed login", zap.String("account_id", a.ID), zap.Error(err))
		} else if st != nil && st.LockedUntil != nil {
			until = *st.LockedUntil
		}
		s.audit.LogEvent(ctx, a.ID, audit.ActionLoginFailure, audit.ResourceSession, map[string]string{"reason": "locked"})
		return nil, autherr.Locked(until)
	}
	if !a.HasPassword() || !s.hasher.Verify([]byte(password), a.PasswordHash) {
		st, err := s.accounts.RecordFailedLogin(ctx, a.ID, now, s.lockThreshold, s.lockDuration)
		if err != nil {
			return nil, err
		}
		s.audit.LogEvent(ctx, a.ID, audit.ActionLoginFailure, audit.ResourceSession, map[string]string{"reason": "bad_password"})
		if st != nil && st.LockedUntil != nil && st.LockedUntil.After(now) {
			s.logger.Warn("account locked after repeated failures",
				zap.String("account_id", a.ID), zap.Int("attempts", st.FailedLoginAttempts), zap.Time("locked_until", *st.LockedUntil))
			s.audit.LogEvent(ctx, a.ID, audit.ActionAccountLocked, audit.ResourceAccount, map[string]string{"locked_until": st.LockedUntil.Format(time.RFC3339)})
			s.publish(ctx, events.AccountLocked, a, map[string]string{"lockedUntil": st.LockedUntil.Format(time.RFC3339)})
		}
		return nil, autherr.ErrInvalidCredentials
	}
	if !a.IsActive() {
		return nil, autherr.ErrAccountInactive
	}
	if err := s.accounts.RecordSuccessfulLogin(ctx, a.ID, now); err != nil {
		return nil, err
	}
	a.RegisterSuccessfulLogin(now)
	s.rehashIfNeeded(ctx, a, password, now)
	return a, nil
}

// rehashIfNeeded upgrades a stored hash made at a different bcrypt cost. Failures are logged only.
func (s *AuthService) rehashIfNeeded(ctx context.Context, a *accountdomain.Account, password string, now time.Time) {
	if !s.hasher.NeedsRehash(a.PasswordHash) {
		return
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		s.logger.Warn("rehash password", zap.String("account_id", a.ID), zap.Error(err))
		return
	}
	if err := s.accounts.UpdatePassword(ctx, a.ID, hashed, now); err != nil {
		s.logger.Warn("store rehashed password", zap.String("account_id", a.ID), zap.Error(err))
		return
	}
	a.PasswordHash = hashed
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash([]byte("storefront-dummy-password"))
		if err != nil {
			s.logger.Error("dummy password hash unavailable; unknown-email logins return early", zap.Error(err))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Logout revokes the caller's session. refreshToken, when it belongs to the same account,
// names a second session to revoke. allDevices revokes every session of the account.
func (s *AuthService) Logout(ctx context.Context, id Identity, refreshToken string, allDevices bool) error {
	now := s.now().UTC()
	if allDevices {
		if err := s.sessions.RevokeAllByAccount(ctx, id.AccountID, now); err != nil {
			return err
		}
		s.audit.LogEvent(ctx, id.AccountID, audit.ActionLogout, audit.ResourceSession, map[string]string{"scope": "all"})
		return nil
	}
	if id.SessionID != "" {
		if err := s.sessions.Revoke(ctx, id.SessionID, now); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		c, err := s.tokens.ValidateRefresh(refreshToken)
		if err == nil && c.AccountID == id.AccountID && c.SessionID != "" && c.SessionID != id.SessionID {
			if err := s.sessions.Revoke(ctx, c.SessionID, now); err != nil {
				return err
			}
		}
	}
	s.audit.LogEvent(ctx, id.AccountID, audit.ActionLogout, audit.ResourceSession, nil)
	return nil
}

// RefreshToken rotates a refresh token and returns a fresh pair. Presenting a superseded
// refresh token revokes every session of the account.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string, meta RequestMeta) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, autherr.ErrTokenInvalid
	}
	c, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, tokenErr(err)
	}
	sess, err := s.sessions.GetByID(ctx, c.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.RevokedAt != nil || sess.AccountID != c.AccountID {
		return nil, autherr.ErrTokenInvalid
	}
	now := s.now().UTC()
	if sess.RefreshJti != c.JTI {
		if err := s.sessions.RevokeAllByAccount(ctx, c.AccountID, now); err != nil {
			s.logger.Error("revoke sessions after refresh reuse", zap.String("account_id", c.AccountID), zap.Error(err))
		}
		s.logger.Warn("refresh token reuse detected; all sessions revoked",
			zap.String("account_id", c.AccountID), zap.String("session_id", sess.ID))
		s.audit.LogEvent(ctx, c.AccountID, audit.ActionRefreshReuse, audit.ResourceSession, map[string]string{"session_id": sess.ID})
		return nil, autherr.ErrTokenInvalid
	}
	if sess.RefreshTokenHash != "" && !security.TokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, autherr.ErrTokenInvalid
	}
	if !sess.Active(now) {
		return nil, autherr.ErrTokenInvalid
	}

	a, err := s.accounts.GetByID(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}
	if a == nil || !a.IsActive() {
		if err := s.sessions.Revoke(ctx, sess.ID, now); err != nil {
			s.logger.Warn("revoke session of inactive account", zap.String("session_id", sess.ID), zap.Error(err))
		}
		return nil, autherr.ErrAccountInactive
	}

	claims := security.Claims{AccountID: a.ID, Email: a.Email, Role: string(a.Role), SessionID: sess.ID}
	newRefresh, newJti, refreshExp, err := s.tokens.IssueRefresh(claims, sess.RememberMe)
	if err != nil {
		return nil, fmt.Errorf("auth: issue refresh token: %w", err)
	}
	rotated, err := s.sessions.RotateRefreshToken(ctx, sess.ID, c.JTI, newJti, security.HashToken(newRefresh), refreshExp, now)
	if err != nil {
		return nil, err
	}
	if !rotated {
		// Another request rotated this session first.
		return nil, autherr.ErrTokenInvalid
	}
	access, _, _, err := s.tokens.IssueAccess(claims)
	if err != nil {
		return nil, fmt.Errorf("auth: issue access token: %w", err)
	}
	return &AuthResult{
		Account:      viewOf(a),
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Authenticate validates a bearer access token and checks that its session is still live.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, autherr.ErrTokenInvalid
	}
	c, err := s.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, tokenErr(err)
	}
	if c.SessionID == "" {
		return nil, autherr.ErrTokenInvalid
	}
	sess, err := s.sessions.GetByID(ctx, c.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.AccountID != c.AccountID || !sess.Active(s.now().UTC()) {
		return nil, autherr.ErrTokenInvalid
	}
	return &Identity{AccountID: c.AccountID, SessionID: c.SessionID, Email: c.Email, Role: c.Role}, nil
}

// openSession persists a new session bound to a fresh refresh token and returns the pair.
func (s *AuthService) openSession(ctx context.Context, a *accountdomain.Account, rememberMe bool, meta RequestMeta) (*AuthResult, error) {
	now := s.now().UTC()
	claims := security.Claims{AccountID: a.ID, Email: a.Email, Role: string(a.Role), SessionID: uuid.New().String()}
	refresh, jti, refreshExp, err := s.tokens.IssueRefresh(claims, rememberMe)
	if err != nil {
		return nil, fmt.Errorf("auth: issue refresh token: %w", err)
	}
	access, _, _, err := s.tokens.IssueAccess(claims)
	if err != nil {
		return nil, fmt.Errorf("auth: issue access token: %w", err)
	}
	sess := &sessiondomain.Session{
		ID:               claims.SessionID,
		AccountID:        a.ID,
		RefreshJti:       jti,
		RefreshTokenHash: security.HashToken(refresh),
		RememberMe:       rememberMe,
		IPAddress:        meta.IP,
		UserAgent:        meta.UserAgent,
		ExpiresAt:        refreshExp,
		LastSeenAt:       &now,
		CreatedAt:        now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &AuthResult{
		Account:      viewOf(a),
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

func (s *AuthService) publish(ctx context.Context, typ events.Type, a *accountdomain.Account, meta map[string]string) {
	e := events.AccountEvent{
		ID:         uuid.New().String(),
		Type:       typ,
		AccountID:  a.ID,
		Email:      a.Email,
		OccurredAt: s.now().UTC(),
		Metadata:   meta,
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("publish account event", zap.String("type", string(typ)), zap.String("account_id", a.ID), zap.Error(err))
	}
}

func tokenErr(err error) error {
	if errors.Is(err, security.ErrTokenExpired) {
		return autherr.ErrTokenExpired
	}
	return autherr.ErrTokenInvalid
}

func duplicateErr(field string) error {
	return &autherr.Error{
		Kind:    autherr.KindDuplicateIdentity,
		Message: autherr.ErrDuplicateIdentity.Message,
		Fields:  map[string]string{field: "already in use"},
	}
}
