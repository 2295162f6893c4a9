// Package domain holds the Account entity: the persisted identity and credential record.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the authorization role of an account.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleSeller   Role = "seller"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleSeller:
		return true
	}
	return false
}

// Status is the administrative lifecycle state of an account.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Provider is an external identity provider that can be linked to an account.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderFacebook
}

// ErrPasswordOrSocialRequired is returned when an account would have neither a password nor a linked provider.
var ErrPasswordOrSocialRequired = errors.New("account requires a password or a social identity")

// Account is the credential store's unit.
type Account struct {
	ID         string
	Name       string
	Email      string // lower-cased
	Phone      string // optional
	GoogleID   string // optional
	FacebookID string // optional
	AvatarURL  string

	PasswordHash string // empty for social-only accounts

	IsVerified            bool
	VerificationTokenHash string
	VerificationExpiresAt *time.Time
	ResetTokenHash        string
	ResetExpiresAt        *time.Time

	FailedLoginAttempts int
	LockedUntil         *time.Time

	Role   Role
	Status Status

	TermsAcceptedAt   *time.Time
	PrivacyAcceptedAt *time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// NewAccount builds an account for self-registration. passwordHash must already be
// computed by the caller; the role is always customer and the account starts unverified.
func NewAccount(id, name, email, phone, passwordHash string, now time.Time) (*Account, error) {
	if passwordHash == "" {
		return nil, ErrPasswordOrSocialRequired
	}
	a := &Account{
		ID:                id,
		Name:              strings.TrimSpace(name),
		Email:             NormalizeEmail(email),
		Phone:             strings.TrimSpace(phone),
		PasswordHash:      passwordHash,
		Role:              RoleCustomer,
		Status:            StatusActive,
		TermsAcceptedAt:   &now,
		PrivacyAcceptedAt: &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewSocialAccount builds an account on first social sign-in. The provider asserts the
// email, so the account is verified. Terms and privacy are recorded as accepted.
// When email is empty a placeholder {provider}_{providerID}@temp.invalid is used.
func NewSocialAccount(id string, provider Provider, providerID, name, email, avatarURL string, now time.Time) (*Account, error) {
	if providerID == "" {
		return nil, ErrPasswordOrSocialRequired
	}
	email = NormalizeEmail(email)
	if email == "" {
		email = PlaceholderEmail(provider, providerID)
	}
	a := &Account{
		ID:                id,
		Name:              strings.TrimSpace(name),
		Email:             email,
		AvatarURL:         avatarURL,
		IsVerified:        true,
		Role:              RoleCustomer,
		Status:            StatusActive,
		TermsAcceptedAt:   &now,
		PrivacyAcceptedAt: &now,
		CreatedAt:         now,
		UpdatedAt:         now,
		LastLoginAt:       &now,
	}
	if err := a.SetProviderID(provider, providerID); err != nil {
		return nil, err
	}
	if a.Name == "" {
		a.Name = strings.SplitN(email, "@", 2)[0]
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the invariants that must hold before persistence.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("id is required")
	}
	if a.Email == "" {
		return errors.New("email is required")
	}
	if a.PasswordHash == "" && !a.HasSocial() {
		return ErrPasswordOrSocialRequired
	}
	if a.Role == "" {
		a.Role = RoleCustomer
	}
	if !a.Role.Valid() {
		return fmt.Errorf("unknown role %q", a.Role)
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	return nil
}

// HasPassword reports whether the account can sign in with a password.
func (a *Account) HasPassword() bool { return a.PasswordHash != "" }

// HasSocial reports whether at least one provider is linked.
func (a *Account) HasSocial() bool { return a.GoogleID != "" || a.FacebookID != "" }

// IsActive reports whether the account has not been deactivated.
func (a *Account) IsActive() bool { return a.Status == StatusActive }

// ProviderID returns the linked id for provider, or "".
func (a *Account) ProviderID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return a.GoogleID
	case ProviderFacebook:
		return a.FacebookID
	}
	return ""
}

// SetProviderID links providerID for provider.
func (a *Account) SetProviderID(p Provider, providerID string) error {
	switch p {
	case ProviderGoogle:
		a.GoogleID = providerID
	case ProviderFacebook:
		a.FacebookID = providerID
	default:
		return fmt.Errorf("unsupported provider %q", p)
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PlaceholderEmail is the synthesized address for providers that share no email.
func PlaceholderEmail(p Provider, providerID string) string {
	return fmt.Sprintf("%s_%s@temp.invalid", p, providerID)
}
