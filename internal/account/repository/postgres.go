package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/backend/internal/account/domain"
	"storefront/backend/internal/db"
)

const accountColumns = `id, name, email, phone, google_id, facebook_id, avatar_url, password_hash,
	is_verified, verification_token_hash, verification_expires_at, reset_token_hash, reset_expires_at,
	failed_login_attempts, locked_until, role, status, terms_accepted_at, privacy_accepted_at,
	created_at, updated_at, last_login_at`

// constraint or index name -> identity field reported to clients
var uniqueFields = map[string]string{
	"accounts_email_key":       "email",
	"accounts_phone_key":       "phone",
	"accounts_google_id_key":   "googleId",
	"accounts_facebook_id_key": "facebookId",
}

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an account repository backed by Postgres.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create inserts a new account. The account must have ID set.
// Unique collisions are returned as *DuplicateError.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	const q = `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.Name, a.Email, nullString(a.Phone), nullString(a.GoogleID), nullString(a.FacebookID), a.AvatarURL,
		nullString(a.PasswordHash), a.IsVerified, nullString(a.VerificationTokenHash), nullTime(a.VerificationExpiresAt),
		nullString(a.ResetTokenHash), nullTime(a.ResetExpiresAt), a.FailedLoginAttempts, nullTime(a.LockedUntil),
		string(a.Role), string(a.Status), nullTime(a.TermsAcceptedAt), nullTime(a.PrivacyAcceptedAt),
		a.CreatedAt, a.UpdatedAt, nullTime(a.LastLoginAt),
	)
	return mapWriteError("create", err)
}

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.queryOne(ctx, "get by id", `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByEmail returns the account with the given email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.queryOne(ctx, "get by email", `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
}

// GetByProviderID returns the account linked to providerID at provider, or nil if not found.
func (r *PostgresRepository) GetByProviderID(ctx context.Context, provider domain.Provider, providerID string) (*domain.Account, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	return r.queryOne(ctx, "get by provider", `SELECT `+accountColumns+` FROM accounts WHERE `+col+` = $1`, providerID)
}

// RecordFailedLogin applies domain.Account.RegisterFailedLogin in one UPDATE:
// an expired lock restarts the counter at 1, an active lock is kept as is,
// and otherwise the counter grows and locks when it reaches threshold.
// Keep both in step; postgres_integration_test.go checks them against each other.
func (r *PostgresRepository) RecordFailedLogin(ctx context.Context, id string, now time.Time, threshold int, lockFor time.Duration) (*LoginState, error) {
	const q = `UPDATE accounts SET
		failed_login_attempts = CASE
			WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
			ELSE failed_login_attempts + 1
		END,
		locked_until = CASE
			WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN NULL
			WHEN locked_until IS NOT NULL THEN locked_until
			WHEN failed_login_attempts + 1 >= $3 THEN $4::timestamptz
			ELSE NULL
		END,
		updated_at = $2
	WHERE id = $1
	RETURNING failed_login_attempts, locked_until`

	var (
		st     LoginState
		locked sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, id, now, threshold, now.Add(lockFor)).Scan(&st.FailedLoginAttempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("accounts: record failed login: %w", err)
	}
	st.LockedUntil = nullTimeToPtr(locked)
	return &st, nil
}

// RecordSuccessfulLogin clears attempts and lock and stamps last_login_at.
func (r *PostgresRepository) RecordSuccessfulLogin(ctx context.Context, id string, now time.Time) error {
	const q = `UPDATE accounts SET failed_login_attempts = 0, locked_until = NULL, last_login_at = $2, updated_at = $2
		WHERE id = $1`
	return r.exec(ctx, "record successful login", q, id, now)
}

// TouchLastLogin stamps last_login_at without touching lockout state (social sign-in).
func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx, "touch last login", `UPDATE accounts SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, now)
}

// SetVerificationToken stores the hash of a new email verification token, replacing any previous one.
func (r *PostgresRepository) SetVerificationToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	const q = `UPDATE accounts SET verification_token_hash = $2, verification_expires_at = $3, updated_at = $4
		WHERE id = $1`
	return r.exec(ctx, "set verification token", q, id, tokenHash, expiresAt, now)
}

// ConsumeVerificationToken redeems a verification token hash in one statement: the row must
// hold the hash with an unexpired deadline. The hash is cleared and the account marked verified.
// Returns nil when no account matched, so a second redemption finds nothing.
func (r *PostgresRepository) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*domain.Account, error) {
	const q = `UPDATE accounts SET is_verified = TRUE, verification_token_hash = NULL, verification_expires_at = NULL, updated_at = $2
		WHERE verification_token_hash = $1 AND verification_expires_at > $2
		RETURNING ` + accountColumns
	return r.queryOne(ctx, "consume verification token", q, tokenHash, now)
}

// MarkVerified sets is_verified and drops any pending verification token.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id string, now time.Time) (*domain.Account, error) {
	const q = `UPDATE accounts SET is_verified = TRUE, verification_token_hash = NULL, verification_expires_at = NULL, updated_at = $2
		WHERE id = $1
		RETURNING ` + accountColumns
	return r.queryOne(ctx, "mark verified", q, id, now)
}

// SetResetToken stores the hash of a new password reset token, replacing any previous one.
func (r *PostgresRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	const q = `UPDATE accounts SET reset_token_hash = $2, reset_expires_at = $3, updated_at = $4
		WHERE id = $1`
	return r.exec(ctx, "set reset token", q, id, tokenHash, expiresAt, now)
}

// ConsumeResetToken redeems a reset token hash and sets the new password in one statement.
// Lockout state is cleared. Returns nil when no account matched.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) (*domain.Account, error) {
	const q = `UPDATE accounts SET password_hash = $3, reset_token_hash = NULL, reset_expires_at = NULL,
			failed_login_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE reset_token_hash = $1 AND reset_expires_at > $2
		RETURNING ` + accountColumns
	return r.queryOne(ctx, "consume reset token", q, tokenHash, now, newPasswordHash)
}

// UpdatePassword replaces the password hash. Verification and lockout state are untouched.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	return r.exec(ctx, "update password", `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, passwordHash, now)
}

// UpdateProfile applies the non-nil fields of u and returns the updated account, or nil if id is unknown.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, u ProfileUpdate, now time.Time) (*domain.Account, error) {
	const q = `UPDATE accounts SET
		name = COALESCE($2, name),
		phone = CASE WHEN $3::text IS NULL THEN phone ELSE NULLIF($3::text, '') END,
		avatar_url = COALESCE($4, avatar_url),
		updated_at = $5
	WHERE id = $1
	RETURNING ` + accountColumns
	return r.queryOne(ctx, "update profile", q, id, ptrString(u.Name), ptrString(u.Phone), ptrString(u.AvatarURL), now)
}

// LinkProvider attaches providerID to the account, marks it verified, backfills an empty
// avatar and stamps last_login_at, all in one statement. Returns nil when the account is
// unknown or already linked to a different id at that provider.
func (r *PostgresRepository) LinkProvider(ctx context.Context, id string, provider domain.Provider, providerID, avatarURL string, now time.Time) (*domain.Account, error) {
	col, err := providerColumn(provider)
	if err != nil {
		return nil, err
	}
	q := `UPDATE accounts SET ` + col + ` = $2, is_verified = TRUE,
			avatar_url = CASE WHEN avatar_url = '' THEN $3 ELSE avatar_url END,
			last_login_at = $4, updated_at = $4
		WHERE id = $1 AND (` + col + ` IS NULL OR ` + col + ` = $2)
		RETURNING ` + accountColumns
	return r.queryOne(ctx, "link provider", q, id, providerID, avatarURL, now)
}

func (r *PostgresRepository) queryOne(ctx context.Context, op, q string, args ...any) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapWriteError(op, err)
	}
	return a, nil
}

func (r *PostgresRepository) exec(ctx context.Context, op, q string, args ...any) error {
	_, err := r.db.ExecContext(ctx, q, args...)
	return mapWriteError(op, err)
}

func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if constraint, ok := db.UniqueViolation(err); ok {
		field, known := uniqueFields[constraint]
		if !known {
			field = "identity"
		}
		return &DuplicateError{Field: field}
	}
	return fmt.Errorf("accounts: %s: %w", op, err)
}

func providerColumn(p domain.Provider) (string, error) {
	switch p {
	case domain.ProviderGoogle:
		return "google_id", nil
	case domain.ProviderFacebook:
		return "facebook_id", nil
	}
	return "", fmt.Errorf("accounts: unsupported provider %q", p)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a                                         domain.Account
		phone, googleID, facebookID, passwordHash sql.NullString
		verificationHash, resetHash               sql.NullString
		verificationExp, resetExp, lockedUntil    sql.NullTime
		termsAt, privacyAt, lastLoginAt           sql.NullTime
		role, status                              string
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Email, &phone, &googleID, &facebookID, &a.AvatarURL, &passwordHash,
		&a.IsVerified, &verificationHash, &verificationExp, &resetHash, &resetExp,
		&a.FailedLoginAttempts, &lockedUntil, &role, &status, &termsAt, &privacyAt,
		&a.CreatedAt, &a.UpdatedAt, &lastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	a.Phone = phone.String
	a.GoogleID = googleID.String
	a.FacebookID = facebookID.String
	a.PasswordHash = passwordHash.String
	a.VerificationTokenHash = verificationHash.String
	a.VerificationExpiresAt = nullTimeToPtr(verificationExp)
	a.ResetTokenHash = resetHash.String
	a.ResetExpiresAt = nullTimeToPtr(resetExp)
	a.LockedUntil = nullTimeToPtr(lockedUntil)
	a.Role = domain.Role(role)
	a.Status = domain.Status(status)
	a.TermsAcceptedAt = nullTimeToPtr(termsAt)
	a.PrivacyAcceptedAt = nullTimeToPtr(privacyAt)
	a.LastLoginAt = nullTimeToPtr(lastLoginAt)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func ptrString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
