package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/backend/internal/session/domain"
)

var sessionCols = []string{"id", "account_id", "refresh_jti", "refresh_token_hash", "remember_me", "ip_address",
	"user_agent", "expires_at", "revoked_at", "last_seen_at", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return NewPostgresRepository(conn), mock
}

func TestGetByID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	exp := time.Now().Add(time.Hour).UTC()
	mock.ExpectQuery(`FROM sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("s1", "a1", "jti-1", "hash", true, "10.0.0.1", nil, exp, nil, nil, exp.Add(-time.Hour)))

	s, err := repo.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "a1", s.AccountID)
	assert.True(t, s.RememberMe)
	assert.Equal(t, "10.0.0.1", s.IPAddress)
	assert.Empty(t, s.UserAgent)
	assert.True(t, s.Active(time.Now()))
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM sessions`).WillReturnError(sql.ErrNoRows)

	s, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs("s1", "a1", "jti", "hash", false, sql.NullString{}, sql.NullString{String: "curl", Valid: true},
			now.Add(time.Hour), sql.NullTime{}, sql.NullTime{}, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.Session{
		ID: "s1", AccountID: "a1", RefreshJti: "jti", RefreshTokenHash: "hash",
		UserAgent: "curl", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	})
	require.NoError(t, err)
}

func TestRotateRefreshToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	exp := now.Add(time.Hour)

	mock.ExpectExec(`UPDATE sessions SET refresh_jti = \$3.*WHERE id = \$1 AND refresh_jti = \$2 AND revoked_at IS NULL`).
		WithArgs("s1", "old", "new", "h", exp, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sessions SET refresh_jti`).
		WithArgs("s1", "old", "newer", "h2", exp, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.RotateRefreshToken(context.Background(), "s1", "old", "new", "h", exp, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RotateRefreshToken(context.Background(), "s1", "old", "newer", "h2", exp, now)
	require.NoError(t, err)
	assert.False(t, ok, "a stale jti must not rotate")
}

func TestRevokeVariants(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE sessions SET revoked_at = \$2 WHERE id = \$1 AND revoked_at IS NULL`).
		WithArgs("s1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sessions SET revoked_at = \$2 WHERE account_id = \$1 AND revoked_at IS NULL`).
		WithArgs("a1", now).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`WHERE account_id = \$1 AND id <> \$2`).
		WithArgs("a1", "s1", now).WillReturnError(errors.New("db down"))

	require.NoError(t, repo.Revoke(context.Background(), "s1", now))
	require.NoError(t, repo.RevokeAllByAccount(context.Background(), "a1", now))
	err := repo.RevokeOthersByAccount(context.Background(), "a1", "s1", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sessions: revoke others")
}
