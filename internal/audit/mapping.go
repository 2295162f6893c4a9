package audit

import "strings"

// Actions recorded by the auth service.
const (
	ActionRegister               = "register"
	ActionLoginSuccess           = "login_success"
	ActionLoginFailure           = "login_failure"
	ActionAccountLocked          = "account_locked"
	ActionLogout                 = "logout"
	ActionEmailVerified          = "email_verified"
	ActionVerificationSent       = "verification_sent"
	ActionPasswordResetRequested = "password_reset_requested"
	ActionPasswordReset          = "password_reset"
	ActionPasswordChanged        = "password_changed"
	ActionProfileUpdated         = "profile_updated"
	ActionTokenRefreshed         = "token_refreshed"
	ActionRefreshReuse           = "refresh_token_reuse"
	ActionSocialLogin            = "social_login"
)

// Resources.
const (
	ResourceAccount = "account"
	ResourceSession = "session"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for an HTTP method and chi route pattern
// (e.g. PATCH /api/v1/auth/profile).
// The resource is the first path segment after the API prefix ("auth" maps to "account");
// the action is the method verb, or the last literal segment for POST.
func ParseRoute(method, pattern string) ActionResource {
	segs := routeSegments(pattern)
	if len(segs) == 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := segs[0]
	if resource == "auth" {
		resource = ResourceAccount
	}
	last := segs[len(segs)-1]
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return ActionResource{Action: "get", Resource: resource}
	case "PUT", "PATCH":
		return ActionResource{Action: "update", Resource: resource}
	case "DELETE":
		return ActionResource{Action: "delete", Resource: resource}
	}
	if len(segs) == 1 {
		return ActionResource{Action: "create", Resource: resource}
	}
	return ActionResource{Action: strings.ReplaceAll(last, "-", "_"), Resource: resource}
}

// routeSegments drops the /api/vN prefix and path parameters.
func routeSegments(pattern string) []string {
	var out []string
	for _, s := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if s == "" || s == "*" || strings.HasPrefix(s, "{") {
			continue
		}
		out = append(out, s)
	}
	if len(out) >= 2 && out[0] == "api" && strings.HasPrefix(out[1], "v") {
		out = out[2:]
	}
	return out
}
