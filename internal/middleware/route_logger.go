package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RouteLogger writes one line per request once the response is known.
// Health probes are only logged when they fail.
func RouteLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = StatusOf(err)
		}
		if strings.HasPrefix(c.Path(), "/health") && status < fiber.StatusBadRequest {
			return err
		}

		ev := log.WithLevel(logLevelFor(status)).
			Str("trace_id", GetTraceID(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("took", time.Since(start))
		if id, ok := ActorID(c); ok {
			ev = ev.Str("user_id", id.String())
		}
		ev.Msg("request")
		return err
	}
}

func logLevelFor(status int) zerolog.Level {
	switch {
	case status >= fiber.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= fiber.StatusBadRequest:
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}
