package handler

import (
	"net/http"

	"storefront/backend/internal/platform/httpjson"
)

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Liveness always answers 200 while the process is up.
func Liveness(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Readiness answers 200 when every check passes and 503 otherwise.
func (c *Checker) Readiness(w http.ResponseWriter, r *http.Request) {
	checks, ok := c.Check(r.Context())
	if !ok {
		httpjson.Write(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Checks: checks})
		return
	}
	httpjson.Write(w, http.StatusOK, healthResponse{Status: "ok", Checks: checks})
}
