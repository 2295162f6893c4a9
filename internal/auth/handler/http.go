// Package handler exposes the auth service over REST under /api/v1/auth.
package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	accountdomain "storefront/backend/internal/account/domain"
	"storefront/backend/internal/auth/service"
	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/identity/oauth"
	"storefront/backend/internal/platform/autherr"
	"storefront/backend/internal/platform/httpjson"
	"storefront/backend/internal/platform/logging"
	"storefront/backend/internal/server/middleware"
)

// AuthService is the set of operations the handlers call.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput, meta service.RequestMeta) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string, rememberMe bool, meta service.RequestMeta) (*service.AuthResult, error)
	Logout(ctx context.Context, id service.Identity, refreshToken string, allDevices bool) error
	GetCurrentAccount(ctx context.Context, accountID string) (*service.AccountView, error)
	VerifyEmail(ctx context.Context, token string) (*service.AccountView, error)
	ResendVerification(ctx context.Context, accountID string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, id service.Identity, current, next string) error
	UpdateProfile(ctx context.Context, accountID string, in service.ProfileInput) (*service.AccountView, error)
	RefreshToken(ctx context.Context, refreshToken string, meta service.RequestMeta) (*service.AuthResult, error)
	SendVerificationCode(ctx context.Context, accountID string) error
	VerifyCode(ctx context.Context, accountID, code string) (*service.AccountView, error)
	SocialCallback(ctx context.Context, p identitydomain.Profile, meta service.RequestMeta) (*service.AuthResult, error)
	Capabilities(ctx context.Context, accountID string) ([]string, error)
	ListActivity(ctx context.Context, accountID string, limit, offset int) ([]service.ActivityEntry, error)
}

// OAuthClient runs the provider redirect and code exchange.
type OAuthClient interface {
	Enabled(p accountdomain.Provider) bool
	AuthCodeURL(ctx context.Context, p accountdomain.Provider) (string, error)
	Exchange(ctx context.Context, p accountdomain.Provider, state, code string) (*identitydomain.Profile, error)
}

// Handler serves the auth REST API.
type Handler struct {
	svc         AuthService
	oauth       OAuthClient
	frontendURL string
	logger      *zap.Logger
}

// New returns a Handler. oauthClient may be nil when social login is not configured.
func New(svc AuthService, oauthClient OAuthClient, frontendURL string, logger *zap.Logger) *Handler {
	return &Handler{
		svc:         svc,
		oauth:       oauthClient,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logging.OrNop(logger).Named("auth.http"),
	}
}

// Routes registers the public routes on r and the bearer-protected ones behind protect.
func (h *Handler) Routes(r chi.Router, protect ...func(http.Handler) http.Handler) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/refresh", h.refresh)
	r.Post("/verify-email", h.verifyEmail)
	r.Post("/forgot-password", h.forgotPassword)
	r.Post("/reset-password", h.resetPassword)
	r.Get("/oauth/{provider}", h.oauthRedirect)
	r.Get("/oauth/{provider}/callback", h.oauthCallback)

	r.Group(func(r chi.Router) {
		r.Use(protect...)
		r.Post("/logout", h.logout)
		r.Get("/me", h.me)
		r.Post("/resend-verification", h.resendVerification)
		r.Post("/change-password", h.changePassword)
		r.Patch("/profile", h.updateProfile)
		r.Post("/verification-code", h.sendVerificationCode)
		r.Post("/verification-code/verify", h.verifyCode)
		r.Get("/capabilities", h.capabilities)
		r.Get("/activity", h.activity)
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpjson.Error(w, h.logger, err)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpjson.Decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.svc.Register(r.Context(), service.RegisterInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		Phone:         req.Phone,
		AcceptTerms:   req.AcceptTerms,
		AcceptPrivacy: req.AcceptPrivacy,
		RememberMe:    req.RememberMe,
	}, middleware.RequestMeta(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toAuthResponse(res))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpjson.Decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password, req.RememberMe, middleware.RequestMeta(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAuthResponse(res))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := httpjson.Decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	id, _ := middleware.IdentityFrom(r.Context())
	if err := h.svc.Logout(r.Context(), id, req.RefreshToken, req.AllDevices); err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	view, err := h.svc.GetCurrentAccount(r.Context(), id.AccountID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAccountResponse(view))
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpjson.Decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.svc.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAccountResponse(view))
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	if err := h.svc.ResendVerification(r.Context(), id.AccountID); err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, messageResponse{Message: "verification email sent"})
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := httpjson.Decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, messageResponse{Message: "if an account exists for this email, a reset link has been sent"})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpjson.Decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, messageResponse{Message: "password has been reset"})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpjson.Decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	id, _ := middleware.IdentityFrom(r.Context())
	if err := h.svc.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, messageResponse{Message: "password changed"})
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := httpjson.Decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	id, _ := middleware.IdentityFrom(r.Context())
	view, err := h.svc.UpdateProfile(r.Context(), id.AccountID, service.ProfileInput{
		Name:      req.Name,
		Phone:     req.Phone,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAccountResponse(view))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpjson.Decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.svc.RefreshToken(r.Context(), req.RefreshToken, middleware.RequestMeta(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAuthResponse(res))
}

func (h *Handler) sendVerificationCode(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	if err := h.svc.SendVerificationCode(r.Context(), id.AccountID); err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, messageResponse{Message: "verification code sent"})
}

func (h *Handler) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := httpjson.Decode(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	id, _ := middleware.IdentityFrom(r.Context())
	view, err := h.svc.VerifyCode(r.Context(), id.AccountID, strings.TrimSpace(req.Code))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toAccountResponse(view))
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	caps, err := h.svc.Capabilities(r.Context(), id.AccountID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if caps == nil {
		caps = []string{}
	}
	httpjson.Write(w, http.StatusOK, capabilitiesResponse{Capabilities: caps})
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := h.svc.ListActivity(r.Context(), id.AccountID, limit, offset)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := activityResponse{Items: make([]activityEntry, 0, len(entries))}
	for _, e := range entries {
		out.Items = append(out.Items, activityEntry{
			ID:        e.ID,
			Action:    e.Action,
			Resource:  e.Resource,
			IP:        e.IP,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) provider(r *http.Request) (accountdomain.Provider, bool) {
	p := accountdomain.Provider(strings.ToLower(chi.URLParam(r, "provider")))
	if !p.Valid() || h.oauth == nil || !h.oauth.Enabled(p) {
		return "", false
	}
	return p, true
}

func (h *Handler) oauthRedirect(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(r)
	if !ok {
		h.fail(w, autherr.Validation(map[string]string{"provider": "unsupported or disabled provider"}))
		return
	}
	target, err := h.oauth.AuthCodeURL(r.Context(), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// oauthCallback finishes social sign-in and hands the tokens to the frontend in the URL
// fragment, which browsers never send to servers.
func (h *Handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.provider(r)
	if !ok {
		h.redirectError(w, r, "unsupported_provider")
		return
	}
	q := r.URL.Query()
	if q.Get("error") != "" {
		h.redirectError(w, r, "provider_denied")
		return
	}
	profile, err := h.oauth.Exchange(r.Context(), p, q.Get("state"), q.Get("code"))
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidState) {
			h.redirectError(w, r, "invalid_state")
			return
		}
		h.logger.Warn("oauth exchange failed", zap.String("provider", string(p)), zap.Error(err))
		h.redirectError(w, r, "exchange_failed")
		return
	}
	res, err := h.svc.SocialCallback(r.Context(), *profile, middleware.RequestMeta(r.Context()))
	if err != nil {
		h.redirectError(w, r, strings.ToLower(autherr.KindOf(err).String()))
		return
	}
	frag := url.Values{}
	frag.Set("access_token", res.AccessToken)
	frag.Set("refresh_token", res.RefreshToken)
	frag.Set("token_type", res.TokenType)
	frag.Set("expires_in", strconv.FormatInt(res.ExpiresIn, 10))
	http.Redirect(w, r, h.frontendURL+"/auth/callback#"+frag.Encode(), http.StatusFound)
}

func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.frontendURL+"/auth/error?reason="+url.QueryEscape(reason), http.StatusFound)
}
