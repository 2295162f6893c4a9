package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/backend/internal/account/domain"
)

var columns = []string{
	"id", "name", "email", "phone", "google_id", "facebook_id", "avatar_url", "password_hash",
	"is_verified", "verification_token_hash", "verification_expires_at", "reset_token_hash", "reset_expires_at",
	"failed_login_attempts", "locked_until", "role", "status", "terms_accepted_at", "privacy_accepted_at",
	"created_at", "updated_at", "last_login_at",
}

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

func accountRow(id, email string, verified bool, attempts int, lockedUntil any) []driver.Value {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	return []driver.Value{
		id, "Ada", email, nil, nil, nil, "", "$2a$12$hash",
		verified, nil, nil, nil, nil,
		attempts, lockedUntil, "customer", "active", now, now,
		now, now, nil,
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	a, err := domain.NewAccount("11111111-1111-1111-1111-111111111111", "Ada", "ada@x.com", "", "$2a$hash", now)
	require.NoError(t, err)

	mock.ExpectExec(`(?s)^INSERT INTO accounts \(id, name, email`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), a))
}

func TestCreate_DuplicateMapsField(t *testing.T) {
	cases := []struct {
		constraint string
		field      string
	}{
		{"accounts_email_key", "email"},
		{"accounts_phone_key", "phone"},
		{"accounts_google_id_key", "googleId"},
		{"something_else", "identity"},
	}
	for _, tc := range cases {
		t.Run(tc.constraint, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectExec(`INSERT INTO accounts`).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tc.constraint})

			err := repo.Create(context.Background(), &domain.Account{ID: "x", Email: "a@x.com", PasswordHash: "h"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDuplicate))
			var dup *DuplicateError
			require.True(t, errors.As(err, &dup))
			assert.Equal(t, tc.field, dup.Field)
		})
	}
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)FROM accounts WHERE lower\(email\) = lower\(\$1\)`).
		WithArgs("Ada@X.com").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(accountRow("id-1", "ada@x.com", false, 0, nil)...))

	a, err := repo.GetByEmail(context.Background(), "Ada@X.com")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "id-1", a.ID)
	assert.Equal(t, domain.RoleCustomer, a.Role)
	assert.Equal(t, "$2a$12$hash", a.PasswordHash)
	assert.Empty(t, a.Phone)
	assert.Nil(t, a.LockedUntil)
}

func TestGetByID_NotFoundReturnsNil(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM accounts WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	a, err := repo.GetByID(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestGetByID_DBErrorWrapped(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM accounts WHERE id = \$1`).
		WillReturnError(errors.New("db down"))

	_, err := repo.GetByID(context.Background(), "id-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accounts: get by id: db down")
}

func TestGetByProviderID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`FROM accounts WHERE facebook_id = \$1`).
		WithArgs("fb-1").
		WillReturnRows(sqlmock.NewRows(columns))

	a, err := repo.GetByProviderID(context.Background(), domain.ProviderFacebook, "fb-1")
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = repo.GetByProviderID(context.Background(), domain.Provider("myspace"), "x")
	assert.Error(t, err)
}

func TestRecordFailedLogin_ReturnsState(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	lockedUntil := now.Add(2 * time.Hour)

	mock.ExpectQuery(`(?s)UPDATE accounts SET\s+failed_login_attempts = CASE.*RETURNING failed_login_attempts, locked_until`).
		WithArgs("id-1", now, 5, lockedUntil).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(5, lockedUntil))

	st, err := repo.RecordFailedLogin(context.Background(), "id-1", now, 5, 2*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 5, st.FailedLoginAttempts)
	require.NotNil(t, st.LockedUntil)
	assert.True(t, st.LockedUntil.Equal(lockedUntil))
}

func TestRecordSuccessfulLogin(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE accounts SET failed_login_attempts = 0, locked_until = NULL, last_login_at = \$2`).
		WithArgs("id-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordSuccessfulLogin(context.Background(), "id-1", now))
}

func TestConsumeVerificationToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)UPDATE accounts SET is_verified = TRUE, verification_token_hash = NULL.*WHERE verification_token_hash = \$1 AND verification_expires_at > \$2`).
		WithArgs("hash-1", now).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(accountRow("id-1", "a@x.com", true, 0, nil)...))
	mock.ExpectQuery(`WHERE verification_token_hash = \$1`).
		WithArgs("hash-1", now).
		WillReturnRows(sqlmock.NewRows(columns))

	a, err := repo.ConsumeVerificationToken(context.Background(), "hash-1", now)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.IsVerified)

	again, err := repo.ConsumeVerificationToken(context.Background(), "hash-1", now)
	require.NoError(t, err)
	assert.Nil(t, again, "second redemption must find nothing")
}

func TestConsumeResetToken_ClearsLockout(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)UPDATE accounts SET password_hash = \$3, reset_token_hash = NULL.*failed_login_attempts = 0, locked_until = NULL.*WHERE reset_token_hash = \$1 AND reset_expires_at > \$2`).
		WithArgs("hash-1", now, "$2a$new").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(accountRow("id-1", "a@x.com", true, 0, nil)...))

	a, err := repo.ConsumeResetToken(context.Background(), "hash-1", "$2a$new", now)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 0, a.FailedLoginAttempts)
	assert.Nil(t, a.LockedUntil)
}

func TestUpdateProfile_PartialFields(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	name := "Grace"

	mock.ExpectQuery(`(?s)UPDATE accounts SET\s+name = COALESCE\(\$2, name\)`).
		WithArgs("id-1", sql.NullString{String: "Grace", Valid: true}, sql.NullString{}, sql.NullString{}, now).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(accountRow("id-1", "a@x.com", true, 0, nil)...))

	a, err := repo.UpdateProfile(context.Background(), "id-1", ProfileUpdate{Name: &name}, now)
	require.NoError(t, err)
	require.NotNil(t, a)
}

func TestUpdateProfile_DuplicatePhone(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	phone := "+15550100"
	mock.ExpectQuery(`UPDATE accounts SET`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_phone_key"})

	_, err := repo.UpdateProfile(context.Background(), "id-1", ProfileUpdate{Phone: &phone}, time.Now())
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "phone", dup.Field)
}

func TestLinkProvider(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)UPDATE accounts SET google_id = \$2, is_verified = TRUE.*WHERE id = \$1 AND \(google_id IS NULL OR google_id = \$2\)`).
		WithArgs("id-1", "g-1", "https://avatar", now).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(accountRow("id-1", "a@x.com", true, 0, nil)...))

	a, err := repo.LinkProvider(context.Background(), "id-1", domain.ProviderGoogle, "g-1", "https://avatar", now)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.True(t, a.IsVerified)
}
