package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/coffre-pay/coffre/internal/auth"
	"github.com/coffre-pay/coffre/internal/identity"
)

// CallerLocal is the fiber locals key carrying the authenticated caller identity.
const CallerLocal = "caller_id"

// JWTAuth returns a middleware that validates bearer tokens, confirms the
// subject still exists, and exposes the caller identity to handlers.
func JWTAuth(authSvc *auth.Service, identities *identity.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		caller, err := authSvc.Verify(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		if identities != nil {
			ok, err := identities.Exists(c.UserContext(), caller)
			if err != nil {
				return fiber.NewError(http.StatusInternalServerError, "identity lookup failed")
			}
			if !ok {
				return fiber.NewError(http.StatusUnauthorized, "unknown subject")
			}
		}

		c.Locals(CallerLocal, caller)
		return c.Next()
	}
}
