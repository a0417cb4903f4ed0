package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/staychain/backend/internal/bookingerr"
)

// statusFor maps the engine's error taxonomy onto HTTP codes. 503 on
// exhaustion tells the client to retry with backoff; 409 on a mismatch tells
// it to re-fetch the quote or payment.
func statusFor(err error) int {
	switch {
	case errors.Is(err, bookingerr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, bookingerr.ErrAmountMismatch):
		return fiber.StatusConflict
	case errors.Is(err, bookingerr.ErrAlreadyStaged):
		return fiber.StatusConflict
	case errors.Is(err, bookingerr.ErrAmountsExhausted):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, bookingerr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, bookingerr.ErrMissingRate):
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusInternalServerError
	}
}
