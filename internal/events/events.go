// Package events publishes account lifecycle events for other storefront services.
package events

import (
	"context"
	"time"
)

// Type is the routing key of an account event.
type Type string

const (
	AccountRegistered      Type = "account.registered"
	AccountLoggedIn        Type = "account.logged_in"
	AccountLocked          Type = "account.locked"
	AccountVerified        Type = "account.verified"
	AccountPasswordReset   Type = "account.password_reset"
	AccountPasswordChanged Type = "account.password_changed"
	AccountSocialLinked    Type = "account.social_linked"
)

// AccountEvent is the JSON body published for every Type.
type AccountEvent struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	AccountID  string            `json:"accountId"`
	Email      string            `json:"email,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Publisher sends account events. Callers treat failures as best-effort.
type Publisher interface {
	Publish(ctx context.Context, e AccountEvent) error
	Close() error
}
