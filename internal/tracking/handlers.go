package tracking

import (
	"backend-quranicare/internal/auth"
	"backend-quranicare/internal/shared/apperr"
	"backend-quranicare/internal/shared/request"

	"github.com/gofiber/fiber/v2"
)

type startRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

// elapsed is a pointer so that an explicit 0 passes the required check.
type elapsedRequest struct {
	ElapsedSeconds *int64 `json:"elapsed_seconds" validate:"required"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		var req startRequest
		if err := request.Bind(c, &req); err != nil {
			return err
		}
		session, err := svc.Start(c.Context(), auth.UserID(c), req.ItemID)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Get("/sessions/:id", authMiddleware, func(c *fiber.Ctx) error {
		session, err := svc.Get(c.Context(), auth.UserID(c), c.Params("id"))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(session)
	})

	r.Put("/sessions/:id/progress", authMiddleware, func(c *fiber.Ctx) error {
		var req elapsedRequest
		if err := request.Bind(c, &req); err != nil {
			return err
		}
		session, err := svc.UpdateProgress(c.Context(), auth.UserID(c), c.Params("id"), *req.ElapsedSeconds)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(session)
	})

	r.Post("/sessions/:id/complete", authMiddleware, func(c *fiber.Ctx) error {
		var req elapsedRequest
		if err := request.Bind(c, &req); err != nil {
			return err
		}
		session, err := svc.Complete(c.Context(), auth.UserID(c), c.Params("id"), *req.ElapsedSeconds)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(session)
	})

	r.Post("/sessions/:id/abandon", authMiddleware, func(c *fiber.Ctx) error {
		session, err := svc.Abandon(c.Context(), auth.UserID(c), c.Params("id"))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(session)
	})
}
