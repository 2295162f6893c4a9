package domain

import accountdomain "storefront/backend/internal/account/domain"

// Profile is the identity asserted by a social provider after a successful OAuth exchange.
// Email is empty when the provider did not return a verified address.
type Profile struct {
	Provider       accountdomain.Provider
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
}

// LinkOutcome says how a profile was resolved to an account.
type LinkOutcome string

const (
	LinkOutcomeLogin   LinkOutcome = "login"   // provider id already linked
	LinkOutcomeLinked  LinkOutcome = "linked"  // provider id attached to an existing email account
	LinkOutcomeCreated LinkOutcome = "created" // new social-only account
)
