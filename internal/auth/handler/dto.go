package handler

import (
	"time"

	"storefront/backend/internal/auth/service"
)

type registerRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Phone         string `json:"phone"`
	AcceptTerms   bool   `json:"acceptTerms"`
	AcceptPrivacy bool   `json:"acceptPrivacy"`
	RememberMe    bool   `json:"rememberMe"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	AllDevices   bool   `json:"allDevices"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type profileRequest struct {
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatarUrl"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type accountResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	Role        string     `json:"role"`
	IsVerified  bool       `json:"isVerified"`
	HasPassword bool       `json:"hasPassword"`
	Providers   []string   `json:"providers"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

type authResponse struct {
	Account      accountResponse `json:"account"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	TokenType    string          `json:"tokenType"`
	ExpiresIn    int64           `json:"expiresIn"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type capabilitiesResponse struct {
	Capabilities []string `json:"capabilities"`
}

type activityEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type activityResponse struct {
	Items []activityEntry `json:"items"`
}

func toAccountResponse(v *service.AccountView) accountResponse {
	if v == nil {
		return accountResponse{Providers: []string{}}
	}
	providers := v.Providers
	if providers == nil {
		providers = []string{}
	}
	return accountResponse{
		ID:          v.ID,
		Name:        v.Name,
		Email:       v.Email,
		Phone:       v.Phone,
		AvatarURL:   v.AvatarURL,
		Role:        v.Role,
		IsVerified:  v.IsVerified,
		HasPassword: v.HasPassword,
		Providers:   providers,
		CreatedAt:   v.CreatedAt,
		LastLoginAt: v.LastLoginAt,
	}
}

func toAuthResponse(res *service.AuthResult) authResponse {
	return authResponse{
		Account:      toAccountResponse(res.Account),
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		TokenType:    res.TokenType,
		ExpiresIn:    res.ExpiresIn,
	}
}
