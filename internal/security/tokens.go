package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, forged, or minted for another issuer/audience.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a genuine token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the identity carried by access and refresh tokens. Tokens are signed,
// not encrypted, so nothing secret belongs here.
type Claims struct {
	AccountID string
	Email     string
	Role      string
	SessionID string
	// JTI and ExpiresAt are filled on validation.
	JTI       string
	ExpiresAt time.Time
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
}

// TTLs are the token lifetimes. RememberMe applies to refresh tokens issued for
// "remember me" logins.
type TTLs struct {
	Access     time.Duration
	Refresh    time.Duration
	RememberMe time.Duration
}

// TokenProvider issues and validates JWT access and refresh tokens using RS256/ES256 (key pair) or HS256 (secret).
type TokenProvider struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	issuer    string
	audience  string
	ttls      TTLs
	now       func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
// issuer and audience are set on claims and validated on every parse.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttls TTLs) *TokenProvider {
	var method jwt.SigningMethod = jwt.SigningMethodRS256
	if _, ok := privateKey.Public().(*ecdsa.PublicKey); ok {
		method = jwt.SigningMethodES256
	}
	return &TokenProvider{
		method:    method,
		signKey:   privateKey,
		verifyKey: publicKey,
		issuer:    issuer,
		audience:  audience,
		ttls:      ttls,
		now:       time.Now,
	}
}

// NewHMACTokenProvider returns a TokenProvider that signs with HS256 using secret.
func NewHMACTokenProvider(secret []byte, issuer, audience string, ttls TTLs) *TokenProvider {
	return &TokenProvider{
		method:    jwt.SigningMethodHS256,
		signKey:   secret,
		verifyKey: secret,
		issuer:    issuer,
		audience:  audience,
		ttls:      ttls,
		now:       time.Now,
	}
}

// AccessTTL is the access token lifetime; used for the expiresIn field of auth responses.
func (p *TokenProvider) AccessTTL() time.Duration { return p.ttls.Access }

// RefreshTTL returns the refresh lifetime for a normal or remember-me session.
func (p *TokenProvider) RefreshTTL(rememberMe bool) time.Duration {
	if rememberMe && p.ttls.RememberMe > 0 {
		return p.ttls.RememberMe
	}
	return p.ttls.Refresh
}

// IssueAccess issues a short-lived access JWT for c.
// Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(c Claims) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(c, tokenTypeAccess, p.ttls.Access)
}

// IssueRefresh issues a long-lived refresh JWT and returns the token, its jti
// (for rotation binding), and expiration time. Caller should store jti on the session.
func (p *TokenProvider) IssueRefresh(c Claims, rememberMe bool) (token, jti string, expiresAt time.Time, err error) {
	return p.issue(c, tokenTypeRefresh, p.RefreshTTL(rememberMe))
}

func (p *TokenProvider) issue(c Claims, typ string, ttl time.Duration) (string, string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := p.now().UTC()
	expiresAt := now.Add(ttl)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   c.AccountID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:     c.Email,
		Role:      c.Role,
		SessionID: c.SessionID,
		Type:      typ,
	}
	token, err := jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

// ValidateAccess parses and validates an access token (signature, exp, iss, aud, typ).
// Returns ErrTokenExpired for a genuine but expired token and ErrInvalidToken otherwise.
func (p *TokenProvider) ValidateAccess(tokenString string) (*Claims, error) {
	return p.validate(tokenString, tokenTypeAccess)
}

// ValidateRefresh parses and validates a refresh token. Errors as for ValidateAccess.
func (p *TokenProvider) ValidateRefresh(tokenString string) (*Claims, error) {
	return p.validate(tokenString, tokenTypeRefresh)
}

func (p *TokenProvider) validate(tokenString, typ string) (*Claims, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, p.keyFunc,
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && p.genuine(tokenString, typ) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Type != typ || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	out := &Claims{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		JTI:       claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// genuine reports whether an expired token still carries a valid signature,
// issuer, audience, and type, so expiry is reported only for tokens we minted.
func (p *TokenProvider) genuine(tokenString, typ string) bool {
	claims := &jwtClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, p.keyFunc,
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return false
	}
	if claims.Issuer != p.issuer || claims.Type != typ {
		return false
	}
	for _, a := range claims.Audience {
		if a == p.audience {
			return true
		}
	}
	return false
}

func (p *TokenProvider) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA:
		if _, ok := p.verifyKey.(*rsa.PublicKey); ok {
			return p.verifyKey, nil
		}
	case *jwt.SigningMethodECDSA:
		if _, ok := p.verifyKey.(*ecdsa.PublicKey); ok {
			return p.verifyKey, nil
		}
	case *jwt.SigningMethodHMAC:
		if _, ok := p.verifyKey.([]byte); ok {
			return p.verifyKey, nil
		}
	}
	return nil, ErrInvalidToken
}
