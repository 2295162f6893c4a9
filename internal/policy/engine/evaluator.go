package engine

import "context"

// Subject is the caller a capability decision is made for.
type Subject struct {
	AccountID string
	Role      string
	Verified  bool
}

// Evaluator answers capability questions for an authenticated account.
type Evaluator interface {
	// Capabilities returns every action the subject may perform, sorted.
	Capabilities(ctx context.Context, s Subject) ([]string, error)
	// Allowed reports whether the subject may perform action.
	Allowed(ctx context.Context, s Subject, action string) (bool, error)
}
