package history

import (
	"fmt"
	"time"

	"backend-quranicare/internal/auth"
	"backend-quranicare/internal/catalog"
	"backend-quranicare/internal/shared/apperr"
	"backend-quranicare/internal/tracking"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		f, err := filterFromQuery(c)
		if err != nil {
			return apperr.Fiber(err)
		}
		entries, err := svc.ListForUser(c.Context(), auth.UserID(c), f)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(entries)
	})

	r.Get("/stats", authMiddleware, func(c *fiber.Ctx) error {
		stats, err := svc.StatsForUser(c.Context(), auth.UserID(c))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(stats)
	})
}

// filterFromQuery reads from/to as RFC 3339 timestamps.
func filterFromQuery(c *fiber.Ctx) (Filter, error) {
	f := Filter{
		CategoryID: c.Query("category_id"),
		Kind:       catalog.Kind(c.Query("kind")),
		Status:     tracking.Status(c.Query("status")),
		Limit:      c.QueryInt("limit", defaultLimit),
		Offset:     c.QueryInt("offset", 0),
	}
	var err error
	if f.From, err = parseTime(c.Query("from")); err != nil {
		return Filter{}, err
	}
	if f.To, err = parseTime(c.Query("to")); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not an RFC 3339 time", apperr.ErrInvalidInput, v)
	}
	return &t, nil
}
