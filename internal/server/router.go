package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"storefront/backend/internal/audit"
	authhandler "storefront/backend/internal/auth/handler"
	healthhandler "storefront/backend/internal/health/handler"
	"storefront/backend/internal/platform/logging"
	"storefront/backend/internal/server/middleware"
)

// APIPrefix is where the auth routes are mounted.
const APIPrefix = "/api/v1/auth"

// Deps holds what the HTTP router needs.
type Deps struct {
	// Auth serves the /api/v1/auth routes.
	Auth *authhandler.Handler
	// Authenticator validates bearer tokens for the protected routes.
	Authenticator middleware.Authenticator
	// Audit records authenticated requests the service does not audit itself. Nil disables it.
	Audit audit.AuditLogger
	// Health serves /readyz. If nil, readiness always succeeds.
	Health *healthhandler.Checker
	// DevMail serves GET /dev/mail. Set only in development.
	DevMail http.Handler
	// CORSOrigins are the allowed browser origins.
	CORSOrigins []string
	Logger      *zap.Logger
}

// selfAuditedRoutes are protected routes whose service operations write their own audit entry,
// plus the activity feed, which would otherwise record its own reads.
var selfAuditedRoutes = map[string]bool{
	"POST " + APIPrefix + "/logout":                   true,
	"POST " + APIPrefix + "/resend-verification":      true,
	"POST " + APIPrefix + "/change-password":          true,
	"PATCH " + APIPrefix + "/profile":                 true,
	"POST " + APIPrefix + "/verification-code":        true,
	"POST " + APIPrefix + "/verification-code/verify": true,
	"GET " + APIPrefix + "/activity":                  true,
}

// NewRouter builds the HTTP handler: request id, client info, logging, panic recovery and
// CORS around the auth routes and the health probes, all traced by otelhttp.
func NewRouter(d Deps) http.Handler {
	logger := logging.OrNop(d.Logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.ClientInfo)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthhandler.Liveness)
	if d.Health != nil {
		r.Get("/readyz", d.Health.Readiness)
	} else {
		r.Get("/readyz", healthhandler.Liveness)
	}

	if d.DevMail != nil {
		r.Method(http.MethodGet, "/dev/mail", d.DevMail)
	}

	if d.Auth != nil {
		protect := []func(http.Handler) http.Handler{middleware.RequireAuth(d.Authenticator, logger)}
		if d.Audit != nil {
			protect = append(protect, middleware.Audit(d.Audit, selfAuditedRoutes))
		}
		r.Route(APIPrefix, func(r chi.Router) {
			r.Use(chimw.Timeout(30 * time.Second))
			d.Auth.Routes(r, protect...)
		})
	}

	return otelhttp.NewHandler(r, "storefront-auth",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/readyz"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
