package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/motionvault/internal/auth"
	"github.com/makeasinger/motionvault/pkg/response"
)

// GatewayAuthMiddleware reads user identity from X-User-* headers
// set by the reverse proxy's ForwardAuth and populates Fiber context locals.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}

		setIdentity(c, &auth.Identity{
			UserID: userID,
			Email:  c.Get("X-User-Email"),
			Name:   c.Get("X-User-Name"),
		})
		return c.Next()
	}
}
