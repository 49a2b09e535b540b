package auth

import (
	"backend-quranicare/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, gw *Gateway) {
	r.Get("/verify", func(c *fiber.Ctx) error {
		userID, err := gw.Authenticate(bearerFromHeader(c.Get("Authorization")))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(fiber.Map{"user_id": userID})
	})
}
