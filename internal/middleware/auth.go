package middleware

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/auth"
	"github.com/makeasinger/motionvault/pkg/response"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

// NewAuthMiddleware creates auth middleware backed by an OIDC verifier and,
// when jwtSecret is set, legacy HMAC tokens.
func NewAuthMiddleware(verifier auth.TokenVerifier, jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{authenticator: auth.NewAuthenticator(verifier, jwtSecret)}
}

// Authenticate validates the bearer token and stores the caller's identity
// in the request locals. WebSocket upgrades may pass the token as ?token=
// since browsers cannot set headers on them.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok && websocket.IsWebSocketUpgrade(c) {
			token, ok = c.Query("token"), c.Query("token") != ""
		}
		if !ok {
			if c.Get(fiber.HeaderAuthorization) == "" {
				return response.Unauthorized(c, "Missing authorization header")
			}
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		identity, err := m.authenticator.Authenticate(token)
		if err != nil {
			if errors.Is(err, auth.ErrNotConfigured) {
				return response.Unauthorized(c, "Authentication not configured")
			}
			return response.Unauthorized(c, "Invalid or expired token")
		}

		setIdentity(c, identity)
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, identity *auth.Identity) {
	c.Locals("userId", identity.UserID)
	c.Locals("email", identity.Email)
	c.Locals("name", identity.Name)
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}
