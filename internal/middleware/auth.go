package middleware

import (
	"errors"
	"strings"

	"memberconsole/internal/model"

	"github.com/gofiber/fiber/v2"
)

// Locals keys set by BearerToken.
const (
	LocalPrincipal = "principal"
	LocalUserID    = "user_id"
	LocalToken     = "access_token"
)

// ErrTokenExpired lets a TokenResolver report an expired token apart from an
// unknown one. The client renews on the former.
var ErrTokenExpired = errors.New("token expired")

type TokenResolver interface {
	ResolveAccess(token string) (model.Principal, error)
}

// BearerToken authenticates the request from its Authorization header and
// stores the principal in Locals.
func BearerToken(resolver TokenResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "Missing Authorization header")
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "Invalid Authorization header")
		}

		p, err := resolver.ResolveAccess(token)
		if errors.Is(err, ErrTokenExpired) {
			return ErrorResponse(c, fiber.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
		}
		if err != nil {
			return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "Invalid token")
		}

		c.Locals(LocalPrincipal, p)
		c.Locals(LocalUserID, p.ID)
		c.Locals(LocalToken, token)
		return c.Next()
	}
}

// Principal returns the principal stored by BearerToken.
func Principal(c *fiber.Ctx) (model.Principal, bool) {
	p, ok := c.Locals(LocalPrincipal).(model.Principal)
	return p, ok
}
