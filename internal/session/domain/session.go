package domain

import "time"

// Session is one signed-in device/browser. It binds the current refresh token
// (by jti and hash) so rotation and reuse detection work.
type Session struct {
	ID               string
	AccountID        string
	RefreshJti       string // jti of the only refresh token currently valid for this session
	RefreshTokenHash string // SHA-256 hex of that refresh token
	RememberMe       bool
	IPAddress        string
	UserAgent        string
	ExpiresAt        time.Time
	RevokedAt        *time.Time // nil when not revoked
	LastSeenAt       *time.Time
	CreatedAt        time.Time
}

// Active reports whether the session is neither revoked nor expired at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}
