package engagement

import (
	"backend-quranicare/internal/auth"
	"backend-quranicare/internal/shared/apperr"
	"backend-quranicare/internal/shared/request"

	"github.com/gofiber/fiber/v2"
)

type rateRequest struct {
	Score int `json:"score" validate:"required"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/items/:id/play", authMiddleware, func(c *fiber.Ctx) error {
		count, err := svc.RecordPlay(c.Context(), c.Params("id"))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(count)
	})

	r.Post("/items/:id/rate", authMiddleware, func(c *fiber.Ctx) error {
		var req rateRequest
		if err := request.Bind(c, &req); err != nil {
			return err
		}
		agg, err := svc.Rate(c.Context(), auth.UserID(c), c.Params("id"), req.Score)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(agg)
	})
}
