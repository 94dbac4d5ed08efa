package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/auth"
)

// AuthHandler handles ForwardAuth verification for the API gateway
type AuthHandler struct {
	authenticator *auth.Authenticator
}

// NewAuthHandler creates a new auth handler for ForwardAuth verification
func NewAuthHandler(verifier auth.TokenVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{authenticator: auth.NewAuthenticator(verifier, jwtSecret)}
}

// Verify handles GET /auth/verify, called by the reverse proxy's ForwardAuth.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	identity, err := h.authenticator.Authenticate(token)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", identity.UserID)
	c.Set("X-User-Email", identity.Email)
	if identity.Name != "" {
		c.Set("X-User-Name", identity.Name)
	}
	return c.SendStatus(fiber.StatusOK)
}
