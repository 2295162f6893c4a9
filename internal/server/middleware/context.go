package middleware

import (
	"context"

	authservice "storefront/backend/internal/auth/service"
)

type contextKey struct{ name string }

var (
	identityKey  = contextKey{"identity"}
	clientIPKey  = contextKey{"client_ip"}
	userAgentKey = contextKey{"user_agent"}
)

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id authservice.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the authenticated caller and true if RequireAuth ran; otherwise false.
func IdentityFrom(ctx context.Context) (authservice.Identity, bool) {
	v, ok := ctx.Value(identityKey).(authservice.Identity)
	return v, ok
}

// GetAccountID returns the caller's account id and true if set; otherwise "", false.
func GetAccountID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	if !ok || id.AccountID == "" {
		return "", false
	}
	return id.AccountID, true
}

// WithClient returns a context carrying the client IP and user agent.
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, ip)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// ClientIP returns the client IP recorded by ClientInfo, or "".
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

// UserAgent returns the client user agent recorded by ClientInfo, or "".
func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(userAgentKey).(string)
	return v
}

// RequestMeta builds the session metadata for the current request.
func RequestMeta(ctx context.Context) authservice.RequestMeta {
	return authservice.RequestMeta{IP: ClientIP(ctx), UserAgent: UserAgent(ctx)}
}
