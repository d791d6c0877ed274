package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/digiwallet/internal/auth"
)

// AccountIDLocal is the fiber local holding the authenticated account id.
const AccountIDLocal = "account_id"

// JWTAuth rejects requests without a valid bearer token and stores the
// token subject under AccountIDLocal.
func JWTAuth(issuer *auth.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ExtractBearer(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := issuer.Parse(token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(AccountIDLocal, claims.Subject)
		return c.Next()
	}
}
