package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	accountdomain "storefront/backend/internal/account/domain"
	accountrepo "storefront/backend/internal/account/repository"
	"storefront/backend/internal/audit"
	auditdomain "storefront/backend/internal/audit/domain"
	"storefront/backend/internal/events"
	identityservice "storefront/backend/internal/identity/service"
	"storefront/backend/internal/platform/autherr"
	policyengine "storefront/backend/internal/policy/engine"
	"storefront/backend/internal/security"
	sessiondomain "storefront/backend/internal/session/domain"
	"storefront/backend/internal/verification"
)

// memAccountRepo backs every account-facing interface of the service, the verification
// manager and the linker. It mirrors the single-statement semantics of the Postgres repository.
type memAccountRepo struct {
	mu sync.Mutex
	m  map[string]*accountdomain.Account
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{m: make(map[string]*accountdomain.Account)}
}

func (r *memAccountRepo) get(id string) *accountdomain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		cp := *a
		return &cp
	}
	return nil
}

func (r *memAccountRepo) put(a *accountdomain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.m[a.ID] = &cp
}

func (r *memAccountRepo) Create(ctx context.Context, a *accountdomain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.m {
		switch {
		case strings.EqualFold(x.Email, a.Email):
			return &accountrepo.DuplicateError{Field: "email"}
		case a.Phone != "" && x.Phone == a.Phone:
			return &accountrepo.DuplicateError{Field: "phone"}
		}
	}
	cp := *a
	r.m[a.ID] = &cp
	return nil
}

func (r *memAccountRepo) GetByID(ctx context.Context, id string) (*accountdomain.Account, error) {
	return r.get(id), nil
}

func (r *memAccountRepo) GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.m {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) GetByProviderID(ctx context.Context, p accountdomain.Provider, id string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.m {
		if a.ProviderID(p) == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) RecordFailedLogin(ctx context.Context, id string, now time.Time, threshold int, lockFor time.Duration) (*accountrepo.LoginState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	a.RegisterFailedLogin(now, threshold, lockFor)
	return &accountrepo.LoginState{FailedLoginAttempts: a.FailedLoginAttempts, LockedUntil: a.LockedUntil}, nil
}

func (r *memAccountRepo) RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a.RegisterSuccessfulLogin(now)
	}
	return nil
}

func (r *memAccountRepo) TouchLastLogin(ctx context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a.LastLoginAt = &now
	}
	return nil
}

func (r *memAccountRepo) MarkVerified(ctx context.Context, id string, now time.Time) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	a.IsVerified = true
	a.VerificationTokenHash = ""
	a.VerificationExpiresAt = nil
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) UpdatePassword(ctx context.Context, id, hash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a.PasswordHash = hash
	}
	return nil
}

func (r *memAccountRepo) UpdateProfile(ctx context.Context, id string, u accountrepo.ProfileUpdate, now time.Time) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	if u.Phone != nil && *u.Phone != "" {
		for _, x := range r.m {
			if x.ID != id && x.Phone == *u.Phone {
				return nil, &accountrepo.DuplicateError{Field: "phone"}
			}
		}
	}
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Phone != nil {
		a.Phone = *u.Phone
	}
	if u.AvatarURL != nil {
		a.AvatarURL = *u.AvatarURL
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) LinkProvider(ctx context.Context, id string, p accountdomain.Provider, providerID, avatarURL string, now time.Time) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	if cur := a.ProviderID(p); cur != "" && cur != providerID {
		return nil, nil
	}
	_ = a.SetProviderID(p, providerID)
	a.IsVerified = true
	if a.AvatarURL == "" {
		a.AvatarURL = avatarURL
	}
	a.LastLoginAt = &now
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a.VerificationTokenHash = tokenHash
		a.VerificationExpiresAt = &expiresAt
	}
	return nil
}

func (r *memAccountRepo) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.m {
		if a.VerificationTokenHash == tokenHash && a.VerificationExpiresAt != nil && a.VerificationExpiresAt.After(now) {
			a.IsVerified = true
			a.VerificationTokenHash = ""
			a.VerificationExpiresAt = nil
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a.ResetTokenHash = tokenHash
		a.ResetExpiresAt = &expiresAt
	}
	return nil
}

func (r *memAccountRepo) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.m {
		if a.ResetTokenHash == tokenHash && a.ResetExpiresAt != nil && a.ResetExpiresAt.After(now) {
			a.PasswordHash = newPasswordHash
			a.ResetTokenHash = ""
			a.ResetExpiresAt = nil
			a.ClearLockout()
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[string]*sessiondomain.Session)}
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.m[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && s.RevokedAt == nil {
		s.RevokedAt = &at
	}
	return nil
}

func (r *memSessionRepo) RevokeAllByAccount(ctx context.Context, accountID string, at time.Time) error {
	return r.RevokeOthersByAccount(ctx, accountID, "", at)
}

func (r *memSessionRepo) RevokeOthersByAccount(ctx context.Context, accountID, keep string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.m {
		if s.AccountID == accountID && s.ID != keep && s.RevokedAt == nil {
			s.RevokedAt = &at
		}
	}
	return nil
}

func (r *memSessionRepo) RotateRefreshToken(ctx context.Context, sessionID, oldJti, newJti, newHash string, expiresAt, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[sessionID]
	if !ok || s.RefreshJti != oldJti || s.RevokedAt != nil {
		return false, nil
	}
	s.RefreshJti = newJti
	s.RefreshTokenHash = newHash
	s.ExpiresAt = expiresAt
	s.LastSeenAt = &at
	return true, nil
}

func (r *memSessionRepo) activeCount(accountID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.m {
		if s.AccountID == accountID && s.RevokedAt == nil {
			n++
		}
	}
	return n
}

type fakeCodes struct {
	mu    sync.Mutex
	codes map[string]string
}

func (f *fakeCodes) Issue(ctx context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes == nil {
		f.codes = make(map[string]string)
	}
	f.codes[accountID] = "123456"
	return "123456", nil
}

func (f *fakeCodes) Check(ctx context.Context, accountID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.codes[accountID] != code {
		return autherr.ErrTokenInvalidOrExpired
	}
	delete(f.codes, accountID)
	return nil
}

type fakeThrottle struct {
	mu    sync.Mutex
	limit int
	err   error
	hits  map[string]int
}

func (f *fakeThrottle) Allow(ctx context.Context, scope, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.hits == nil {
		f.hits = make(map[string]int)
	}
	f.hits[scope+":"+subject]++
	if f.limit > 0 && f.hits[scope+":"+subject] > f.limit {
		return autherr.ErrRateLimited
	}
	return nil
}

type sentMail struct {
	kind      string
	accountID string
	secret    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *recordingNotifier) record(kind string, a *accountdomain.Account, secret string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{kind: kind, accountID: a.ID, secret: secret})
	return nil
}

func (n *recordingNotifier) SendVerificationEmail(ctx context.Context, a *accountdomain.Account, token string) error {
	return n.record("verification", a, token)
}

func (n *recordingNotifier) SendPasswordResetEmail(ctx context.Context, a *accountdomain.Account, token string) error {
	return n.record("password_reset", a, token)
}

func (n *recordingNotifier) SendPasswordChangedNotice(ctx context.Context, a *accountdomain.Account) error {
	return n.record("password_changed", a, "")
}

func (n *recordingNotifier) SendVerificationCodeEmail(ctx context.Context, a *accountdomain.Account, code string) error {
	return n.record("verification_code", a, code)
}

// last returns the most recent mail of kind, or false.
func (n *recordingNotifier) last(kind string) (sentMail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i], true
		}
	}
	return sentMail{}, false
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.kind == kind {
			c++
		}
	}
	return c
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []events.Type
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.AccountEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, e.Type)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) has(t events.Type) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, x := range p.types {
		if x == t {
			return true
		}
	}
	return false
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []*auditdomain.AuditLog
}

func (a *recordingAudit) LogEvent(ctx context.Context, accountID, action, resource string, metadata map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, &auditdomain.AuditLog{
		ID: action, AccountID: accountID, Action: action, Resource: resource, CreatedAt: time.Now().UTC(),
	})
}

func (a *recordingAudit) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e.Action == action {
			return true
		}
	}
	return false
}

func (a *recordingAudit) ListByAccount(ctx context.Context, accountID string, limit, offset int32) ([]*auditdomain.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*auditdomain.AuditLog
	for i := len(a.entries) - 1; i >= 0; i-- {
		if a.entries[i].AccountID == accountID {
			out = append(out, a.entries[i])
		}
	}
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

var _ audit.AuditLogger = (*recordingAudit)(nil)

type testEnv struct {
	svc      *AuthService
	accounts *memAccountRepo
	sessions *memSessionRepo
	notifier *recordingNotifier
	events   *recordingPublisher
	audit    *recordingAudit
	throttle *fakeThrottle
	codes    *fakeCodes
	hasher   *security.Hasher
	tokens   *security.TokenProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	policy, err := policyengine.NewOPAEvaluator(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	env := &testEnv{
		accounts: newMemAccountRepo(),
		sessions: newMemSessionRepo(),
		notifier: &recordingNotifier{},
		events:   &recordingPublisher{},
		audit:    &recordingAudit{},
		throttle: &fakeThrottle{limit: 3},
		codes:    &fakeCodes{},
		hasher:   security.NewHasher(4),
		tokens:   tokens,
	}
	env.svc = NewAuthService(Deps{
		Accounts:         env.accounts,
		Sessions:         env.sessions,
		Hasher:           env.hasher,
		Tokens:           tokens,
		Verification:     verification.NewManager(env.accounts, 24*time.Hour, 10*time.Minute),
		Codes:            env.codes,
		Throttle:         env.throttle,
		Linker:           identityservice.NewLinker(env.accounts, nil),
		Notifier:         env.notifier,
		Events:           env.events,
		Audit:            env.audit,
		Activity:         env.audit,
		Policy:           policy,
		LockoutThreshold: 5,
		LockoutDuration:  2 * time.Hour,
	})
	return env
}

const strongPassword = "Sup3r$ecret"

// seedAccount stores an active, verified password account.
func (e *testEnv) seedAccount(t *testing.T, id, email, password string) *accountdomain.Account {
	t.Helper()
	hash, err := e.hasher.Hash([]byte(password))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	a, err := accountdomain.NewAccount(id, "Test User", email, "", hash, time.Now().UTC())
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	a.IsVerified = true
	e.accounts.put(a)
	return a
}
