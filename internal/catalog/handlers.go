package catalog

import (
	"backend-quranicare/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Get("/categories", func(c *fiber.Ctx) error {
		categories, err := svc.Categories(c.Context(), Kind(c.Query("kind")))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(categories)
	})

	r.Get("/categories/:id/items", func(c *fiber.Ctx) error {
		items, err := svc.ListByCategory(c.Context(), c.Params("id"))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(items)
	})

	r.Get("/items/popular", func(c *fiber.Ctx) error {
		items, err := svc.Popular(c.Context(), Kind(c.Query("kind")), c.QueryInt("limit", defaultPopularLimit))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(items)
	})

	r.Get("/items/search", func(c *fiber.Ctx) error {
		items, err := svc.Search(c.Context(), c.Query("q"), Kind(c.Query("kind")))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(items)
	})

	r.Get("/items/:id", func(c *fiber.Ctx) error {
		item, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(item)
	})
}
