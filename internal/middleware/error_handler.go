package middleware

import (
	"errors"

	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders errors that escape handlers. Fiber's own errors
// (unknown route, wrong method, oversized body) keep their status code.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Message, fe.Code, nil)
	}
	return response.FromError(c, err)
}

// StatusOf is the status ErrorHandler will answer err with.
func StatusOf(err error) int {
	return response.StatusFor(err)
}
