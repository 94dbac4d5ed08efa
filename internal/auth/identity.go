package auth

import (
	"errors"
	"strings"
)

var (
	ErrNoCredentials   = errors.New("missing bearer token")
	ErrNotConfigured   = errors.New("authentication not configured")
	ErrInvalidIdentity = errors.New("invalid or expired token")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticator checks bearer tokens against the OIDC verifier first and
// falls back to legacy HMAC tokens when a secret is configured.
type Authenticator struct {
	verifier TokenVerifier
	secret   string
}

func NewAuthenticator(verifier TokenVerifier, secret string) *Authenticator {
	return &Authenticator{verifier: verifier, secret: secret}
}

func (a *Authenticator) Configured() bool {
	return a.verifier != nil || a.secret != ""
}

// Authenticate resolves the identity behind a raw token.
func (a *Authenticator) Authenticate(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrNoCredentials
	}
	if !a.Configured() {
		return nil, ErrNotConfigured
	}

	if a.verifier != nil {
		claims, err := a.verifier.Validate(token)
		if err == nil && claims.UserID != "" {
			return &Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
		}
		if a.secret == "" {
			return nil, ErrInvalidIdentity
		}
	}

	claims, err := ValidateLegacyToken(token, a.secret)
	if err != nil || claims.UserID == "" {
		return nil, ErrInvalidIdentity
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
