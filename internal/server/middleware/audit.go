package middleware

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storefront/backend/internal/audit"
)

// Audit records an audit entry after each authenticated request. skipRoutes holds
// "METHOD pattern" keys (e.g. "POST /api/v1/auth/logout") for routes whose handlers already
// audit themselves. It must run after RequireAuth. Entries are best-effort and never fail
// the request.
func Audit(logger audit.AuditLogger, skipRoutes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			accountID, ok := GetAccountID(r.Context())
			if !ok {
				return
			}
			pattern := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				pattern = rc.RoutePattern()
			}
			if skipRoutes[r.Method+" "+pattern] {
				return
			}
			ar := audit.ParseRoute(r.Method, pattern)
			logger.LogEvent(r.Context(), accountID, ar.Action, ar.Resource, map[string]string{
				"route":  pattern,
				"status": strconv.Itoa(ww.Status()),
			})
		})
	}
}
