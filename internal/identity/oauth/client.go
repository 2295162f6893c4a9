// Package oauth runs the authorization-code flow against Google and Facebook and turns the
// provider's userinfo response into an identity Profile.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	accountdomain "storefront/backend/internal/account/domain"
	"storefront/backend/internal/identity/domain"
	"storefront/backend/internal/platform/logging"
)

const (
	googleUserInfoURL   = "https://www.googleapis.com/oauth2/v3/userinfo"
	facebookUserInfoURL = "https://graph.facebook.com/v19.0/me?fields=id,name,email,picture.type(large)"
)

// ErrProviderDisabled is returned for a provider with no client credentials configured.
var ErrProviderDisabled = errors.New("oauth: provider not configured")

// ProviderConfig holds client credentials. Endpoint and UserInfoURL default to the provider's
// public endpoints when empty.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
}

type provider struct {
	cfg         *oauth2.Config
	userInfoURL string
}

// Client performs the OAuth2 code flow for the configured providers.
type Client struct {
	providers map[accountdomain.Provider]*provider
	states    *StateStore
	logger    *zap.Logger
}

// NewClient builds a Client. redirectBaseURL is the public base of this API; callbacks land on
// {base}/api/v1/auth/oauth/{provider}/callback.
func NewClient(states *StateStore, redirectBaseURL string, google, facebook ProviderConfig, logger *zap.Logger) *Client {
	c := &Client{
		providers: make(map[accountdomain.Provider]*provider),
		states:    states,
		logger:    logging.OrNop(logger).Named("oauth"),
	}
	base := strings.TrimRight(redirectBaseURL, "/")
	add := func(p accountdomain.Provider, pc ProviderConfig, ep oauth2.Endpoint, userInfo string, scopes []string) {
		if pc.ClientID == "" || pc.ClientSecret == "" {
			return
		}
		if pc.Endpoint.AuthURL != "" {
			ep = pc.Endpoint
		}
		if pc.UserInfoURL != "" {
			userInfo = pc.UserInfoURL
		}
		c.providers[p] = &provider{
			cfg: &oauth2.Config{
				ClientID:     pc.ClientID,
				ClientSecret: pc.ClientSecret,
				Endpoint:     ep,
				RedirectURL:  base + "/api/v1/auth/oauth/" + string(p) + "/callback",
				Scopes:       scopes,
			},
			userInfoURL: userInfo,
		}
	}
	add(accountdomain.ProviderGoogle, google, endpoints.Google, googleUserInfoURL, []string{"openid", "email", "profile"})
	add(accountdomain.ProviderFacebook, facebook, endpoints.Facebook, facebookUserInfoURL, []string{"email", "public_profile"})
	return c
}

// Enabled reports whether p has credentials configured.
func (c *Client) Enabled(p accountdomain.Provider) bool {
	_, ok := c.providers[p]
	return ok
}

// AuthCodeURL returns the provider consent URL with a fresh one-shot state.
func (c *Client) AuthCodeURL(ctx context.Context, p accountdomain.Provider) (string, error) {
	prov, ok := c.providers[p]
	if !ok {
		return "", ErrProviderDisabled
	}
	state, err := c.states.New(ctx, string(p))
	if err != nil {
		return "", err
	}
	return prov.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Exchange consumes state, trades code for a token and fetches the user's profile.
func (c *Client) Exchange(ctx context.Context, p accountdomain.Provider, state, code string) (*domain.Profile, error) {
	prov, ok := c.providers[p]
	if !ok {
		return nil, ErrProviderDisabled
	}
	if err := c.states.Consume(ctx, state, string(p)); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, errors.New("oauth: missing code")
	}
	tok, err := prov.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth: exchange %s: %w", p, err)
	}
	resp, err := prov.cfg.Client(ctx, tok).Get(prov.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("oauth: userinfo %s: %w", p, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oauth: userinfo %s: status %d: %s", p, resp.StatusCode, body)
	}
	profile, err := decodeProfile(p, resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("oauth profile fetched", zap.String("provider", string(p)), zap.Bool("has_email", profile.Email != ""))
	return profile, nil
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

type facebookUserInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

func decodeProfile(p accountdomain.Provider, r io.Reader) (*domain.Profile, error) {
	out := &domain.Profile{Provider: p}
	switch p {
	case accountdomain.ProviderGoogle:
		var u googleUserInfo
		if err := json.NewDecoder(r).Decode(&u); err != nil {
			return nil, fmt.Errorf("oauth: decode google profile: %w", err)
		}
		out.ProviderUserID, out.Name, out.AvatarURL = u.Sub, u.Name, u.Picture
		// An unverified Google address must not be used to link to an existing account.
		if u.EmailVerified {
			out.Email = u.Email
		}
	case accountdomain.ProviderFacebook:
		var u facebookUserInfo
		if err := json.NewDecoder(r).Decode(&u); err != nil {
			return nil, fmt.Errorf("oauth: decode facebook profile: %w", err)
		}
		out.ProviderUserID, out.Name, out.Email, out.AvatarURL = u.ID, u.Name, u.Email, u.Picture.Data.URL
	default:
		return nil, ErrProviderDisabled
	}
	if out.ProviderUserID == "" {
		return nil, fmt.Errorf("oauth: %s profile without id", p)
	}
	return out, nil
}
