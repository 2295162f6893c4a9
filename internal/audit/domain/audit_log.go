package domain

import "time"

// AuditLog represents an audit event. AccountID is empty when the actor is unknown
// (e.g. a login attempt for an email that has no account).
type AuditLog struct {
	ID        string
	AccountID string
	Action    string
	Resource  string
	IP        string
	Metadata  string // JSON object, or empty
	CreatedAt time.Time
}
