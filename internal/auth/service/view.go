package service

import (
	"time"

	accountdomain "storefront/backend/internal/account/domain"
)

// AccountView is the client-facing account summary. It never carries credential material.
type AccountView struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	AvatarURL   string
	Role        string
	IsVerified  bool
	HasPassword bool
	Providers   []string
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

func viewOf(a *accountdomain.Account) *AccountView {
	v := &AccountView{
		ID:          a.ID,
		Name:        a.Name,
		Email:       a.Email,
		Phone:       a.Phone,
		AvatarURL:   a.AvatarURL,
		Role:        string(a.Role),
		IsVerified:  a.IsVerified,
		HasPassword: a.HasPassword(),
		Providers:   []string{},
		CreatedAt:   a.CreatedAt,
		LastLoginAt: a.LastLoginAt,
	}
	if a.GoogleID != "" {
		v.Providers = append(v.Providers, string(accountdomain.ProviderGoogle))
	}
	if a.FacebookID != "" {
		v.Providers = append(v.Providers, string(accountdomain.ProviderFacebook))
	}
	return v
}
