package middleware

import (
	"context"
	"time"

	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Limiter decides whether another call for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimit rejects callers over the limit with 429. The key is the
// authenticated user id, or the client IP for anonymous calls.
func RateLimit(l Limiter, scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l == nil {
			return c.Next()
		}
		key := "ip:" + c.IP()
		if id, ok := ActorID(c); ok {
			key = "user:" + id.String()
		}
		if !l.Allow(c.UserContext(), scope+":"+key) {
			var retry time.Duration
			if w, ok := l.(interface{ Window() time.Duration }); ok {
				retry = w.Window()
			}
			return response.TooManyRequests(c, retry)
		}
		return c.Next()
	}
}
