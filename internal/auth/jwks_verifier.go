package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/makeasinger/motionvault/internal/config"
)

// TokenVerifier turns a bearer token into the caller's claims.
type TokenVerifier interface {
	Validate(tokenString string) (*Claims, error)
	Close() error
}

// Claims are the parts of an identity token the gallery reads.
type Claims struct {
	UserID string `json:"sub"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWKSVerifier checks RS/ES/EdDSA-signed tokens from one OIDC issuer. Keys are
// refreshed in the background until Close.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	stop   context.CancelFunc
	parser *jwt.Parser
}

var (
	discoveryClient = &http.Client{Timeout: 15 * time.Second}
	signingMethods  = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "PS256", "EdDSA"}
)

const clockSkew = 30 * time.Second

type oidcDiscovery struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

func NewJWKSVerifier(cfg *config.ZitadelConfig) (*JWKSVerifier, error) {
	issuer := strings.TrimRight(cfg.Issuer, "/")
	if issuer == "" {
		return nil, fmt.Errorf("oidc issuer is required")
	}

	dctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	doc, err := discover(dctx, issuer)
	if err != nil {
		return nil, err
	}

	refreshCtx, stop := context.WithCancel(context.Background())
	jwks, err := keyfunc.NewDefaultCtx(refreshCtx, []string{doc.JWKSURI})
	if err != nil {
		stop()
		return nil, fmt.Errorf("load key set %s: %w", doc.JWKSURI, err)
	}

	opts := []jwt.ParserOption{
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods(signingMethods),
		jwt.WithLeeway(clockSkew),
	}
	if cfg.ClientID != "" {
		opts = append(opts, jwt.WithAudience(cfg.ClientID))
	}

	return &JWKSVerifier{jwks: jwks, stop: stop, parser: jwt.NewParser(opts...)}, nil
}

// discover reads the issuer's openid-configuration. The advertised issuer
// must match the configured one.
func discover(ctx context.Context, issuer string) (*oidcDiscovery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+"/.well-known/openid-configuration", nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}
	resp, err := discoveryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oidc discovery: status %d", resp.StatusCode)
	}

	var doc oidcDiscovery
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("oidc discovery: decode: %w", err)
	}
	if got := strings.TrimRight(doc.Issuer, "/"); got != issuer {
		return nil, fmt.Errorf("oidc discovery: issuer %q does not match %q", doc.Issuer, issuer)
	}
	if doc.JWKSURI == "" {
		return nil, fmt.Errorf("oidc discovery: no jwks_uri")
	}
	return &doc, nil
}

func (v *JWKSVerifier) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc); err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return claims, nil
}

// Close stops the background key refresh.
func (v *JWKSVerifier) Close() error {
	v.stop()
	return nil
}
