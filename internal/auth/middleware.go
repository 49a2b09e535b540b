package auth

import (
	"strings"

	"backend-quranicare/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

const userIDKey = "user_id"

// JWTMiddleware validates bearer tokens and stores user_id in locals.
func JWTMiddleware(gw *Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := gw.Authenticate(bearerFromHeader(c.Get("Authorization")))
		if err != nil {
			return apperr.Fiber(err)
		}
		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// StreamMiddleware is JWTMiddleware for websocket upgrades. Browsers cannot
// set headers on a websocket handshake, so the token may also come from the
// access_token query parameter.
func StreamMiddleware(gw *Gateway) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerFromHeader(c.Get("Authorization"))
		if token == "" {
			token = c.Query("access_token")
		}
		userID, err := gw.Authenticate(token)
		if err != nil {
			return apperr.Fiber(err)
		}
		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

// UserID returns the identity resolved by JWTMiddleware, or "" when the
// route is not protected.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
