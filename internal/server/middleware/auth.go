package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	authservice "storefront/backend/internal/auth/service"
	"storefront/backend/internal/platform/autherr"
	"storefront/backend/internal/platform/httpjson"
	"storefront/backend/internal/platform/logging"
)

const bearerPrefix = "bearer "

// Authenticator validates an access token and its session.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*authservice.Identity, error)
}

// CapabilityChecker answers policy questions for an account.
type CapabilityChecker interface {
	Allowed(ctx context.Context, accountID, action string) (bool, error)
}

// RequireAuth rejects requests without a valid Bearer access token whose session is still
// live, and stores the caller's identity in the request context.
func RequireAuth(auth Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger).Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				httpjson.Error(w, logger, autherr.ErrTokenInvalid)
				return
			}
			id, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				httpjson.Error(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *id)))
		})
	}
}

// RequireCapability allows the request only when the policy grants action to the caller.
// It must run after RequireAuth.
func RequireCapability(checker CapabilityChecker, action string, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger).Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, ok := GetAccountID(r.Context())
			if !ok {
				httpjson.Error(w, logger, autherr.ErrTokenInvalid)
				return
			}
			allowed, err := checker.Allowed(r.Context(), accountID, action)
			if err != nil {
				httpjson.Error(w, logger, err)
				return
			}
			if !allowed {
				httpjson.Write(w, http.StatusForbidden, httpjson.ErrorBody{Error: httpjson.ErrorDetail{
					Code:    "FORBIDDEN",
					Message: "not allowed to " + action,
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
