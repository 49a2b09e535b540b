package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidInput    = errors.New("invalid input")
	// ErrConflict is returned when a counter or transaction retry budget is
	// exhausted. Callers may retry.
	ErrConflict = errors.New("conflict")
)

// Status maps an error to the HTTP status the handlers respond with.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrUnauthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrInvalidState):
		return fiber.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Fiber wraps err into a *fiber.Error carrying the mapped status.
func Fiber(err error) error {
	return fiber.NewError(Status(err), err.Error())
}
