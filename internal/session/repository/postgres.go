package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/backend/internal/db"
	"storefront/backend/internal/session/domain"
)

const sessionColumns = `id, account_id, refresh_jti, refresh_token_hash, remember_me, ip_address, user_agent,
	expires_at, revoked_at, last_seen_at, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sessions: get: %w", err)
	}
	return s, nil
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	const q = `INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.AccountID, s.RefreshJti, s.RefreshTokenHash, s.RememberMe,
		nullString(s.IPAddress), nullString(s.UserAgent), s.ExpiresAt,
		timeToNullTime(s.RevokedAt), timeToNullTime(s.LastSeenAt), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sessions: create: %w", err)
	}
	return nil
}

// Revoke marks the session with the given id as revoked. Revoking twice keeps the first timestamp.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("sessions: revoke: %w", err)
	}
	return nil
}

// RevokeAllByAccount revokes every active session of the account.
func (r *PostgresRepository) RevokeAllByAccount(ctx context.Context, accountID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked_at = $2 WHERE account_id = $1 AND revoked_at IS NULL`, accountID, at)
	if err != nil {
		return fmt.Errorf("sessions: revoke all: %w", err)
	}
	return nil
}

// RevokeOthersByAccount revokes every active session of the account except keepSessionID.
func (r *PostgresRepository) RevokeOthersByAccount(ctx context.Context, accountID, keepSessionID string, at time.Time) error {
	const q = `UPDATE sessions SET revoked_at = $3 WHERE account_id = $1 AND id <> $2 AND revoked_at IS NULL`
	_, err := r.db.ExecContext(ctx, q, accountID, keepSessionID, at)
	if err != nil {
		return fmt.Errorf("sessions: revoke others: %w", err)
	}
	return nil
}

// RotateRefreshToken swaps the session's refresh jti/hash only if the current jti is still oldJti
// and the session is active. It returns false when another request already rotated it.
func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, sessionID, oldJti, newJti, newHash string, expiresAt, at time.Time) (bool, error) {
	const q = `UPDATE sessions SET refresh_jti = $3, refresh_token_hash = $4, expires_at = $5, last_seen_at = $6
		WHERE id = $1 AND refresh_jti = $2 AND revoked_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, sessionID, oldJti, newJti, newHash, expiresAt, at)
	if err != nil {
		return false, fmt.Errorf("sessions: rotate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sessions: rotate: %w", err)
	}
	return n == 1, nil
}

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var (
		s                 domain.Session
		ip, ua            sql.NullString
		revoked, lastSeen sql.NullTime
	)
	err := row.Scan(&s.ID, &s.AccountID, &s.RefreshJti, &s.RefreshTokenHash, &s.RememberMe, &ip, &ua,
		&s.ExpiresAt, &revoked, &lastSeen, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.IPAddress = ip.String
	s.UserAgent = ua.String
	s.RevokedAt = nullTimeToPtr(revoked)
	s.LastSeenAt = nullTimeToPtr(lastSeen)
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
