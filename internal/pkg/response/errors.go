package response

import (
	"errors"

	"agrihub-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// FromError writes err in the standard error format. Store failures and
// unclassified errors are logged and hidden from the client.
func FromError(c *fiber.Ctx, err error) error {
	code := StatusFor(err)
	switch code {
	case fiber.StatusServiceUnavailable:
		log.Error().Err(err).Str("path", c.Path()).Msg("store unavailable")
		return Error(c, "Service temporarily unavailable", code, nil)
	case fiber.StatusInternalServerError:
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		return InternalError(c)
	}
	details := map[string]interface{}{}
	var de *domain.Error
	if errors.As(err, &de) {
		details["type"] = de.Class.Error()
	}
	return Error(c, err.Error(), code, details)
}
