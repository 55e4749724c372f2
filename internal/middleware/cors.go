package middleware

import (
	"strings"

	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const devPasswordHeader = "dev-password"

// CORSConfig decides which browser origins may call the API with credentials.
type CORSConfig struct {
	// AllowedSuffix matches the deployed web app, e.g. ".agrihub.app".
	AllowedSuffix string
	// DevPassword lets preview deployments on other hosts through.
	DevPassword string
}

// CORS allows requests without an Origin, origins ending in AllowedSuffix and
// requests carrying the dev password. Localhost preflights are answered so the
// local web app can run against a deployed API.
func CORS(cfg CORSConfig) fiber.Handler {
	suffix := strings.ToLower(cfg.AllowedSuffix)
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" {
			return c.Next()
		}
		preflight := c.Method() == fiber.MethodOptions
		if preflight && isLocalOrigin(origin) {
			setCORSHeaders(c, origin)
			return c.SendStatus(fiber.StatusNoContent)
		}

		allowed := suffix != "" && strings.HasSuffix(strings.ToLower(origin), suffix)
		if !allowed && cfg.DevPassword != "" {
			allowed = c.Get(devPasswordHeader) == cfg.DevPassword
		}
		if !allowed {
			return response.Forbidden(c, "Not allowed by CORS")
		}
		setCORSHeaders(c, origin)
		if preflight {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func isLocalOrigin(origin string) bool {
	return strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:")
}

func setCORSHeaders(c *fiber.Ctx, origin string) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
	c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization, Stripe-Signature, X-Trace-Id, "+devPasswordHeader)
	c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, PUT, DELETE, OPTIONS")
	c.Set(fiber.HeaderAccessControlExposeHeaders, "X-Trace-Id, Retry-After")
	c.Set(fiber.HeaderVary, fiber.HeaderOrigin)
}
