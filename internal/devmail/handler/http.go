// Package handler serves the dev-only mail outbox.
package handler

import (
	"net/http"
	"strings"

	"storefront/backend/internal/devmail"
	"storefront/backend/internal/notification"
	"storefront/backend/internal/platform/autherr"
	"storefront/backend/internal/platform/httpjson"
)

const devNote = "DEV MODE ONLY"

type mailResponse struct {
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Note    string `json:"note"`
}

// Handler returns captured messages. Only mounted when APP_ENV=development.
type Handler struct {
	store devmail.Store
}

func New(store devmail.Store) *Handler {
	return &Handler{store: store}
}

// ServeHTTP answers GET ?email=&kind= with the latest message; kind defaults to verification.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		httpjson.Error(w, nil, autherr.Validation(map[string]string{"email": "email is required"}))
		return
	}
	kind := notification.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = notification.KindVerification
	}
	m, ok := h.store.Get(r.Context(), email, kind)
	if !ok {
		httpjson.Write(w, http.StatusNotFound, httpjson.ErrorBody{Error: httpjson.ErrorDetail{
			Code:    "NOT_FOUND",
			Message: "no message found or it has expired",
		}})
		return
	}
	httpjson.Write(w, http.StatusOK, mailResponse{
		To:      m.To,
		Kind:    string(m.Kind),
		Subject: m.Subject,
		Body:    m.Body,
		Note:    devNote,
	})
}
