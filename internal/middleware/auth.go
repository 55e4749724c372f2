package middleware

import (
	"strings"

	authsvc "agrihub-backend/internal/application/auth"
	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const userLocal = "user"

// TokenVerifier turns a bearer token into the session user shape.
type TokenVerifier interface {
	Verify(token string) (*authsvc.SessionUserShape, error)
}

// BearerAuth fills the session user from an Authorization bearer token when no
// session user is present. Invalid tokens are rejected with 401.
func BearerAuth(v TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if v == nil || c.Locals(userLocal) != nil {
			return c.Next()
		}
		header := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(header, "Bearer ") {
			return c.Next()
		}
		u, err := v.Verify(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil {
			return response.Unauthorized(c, "Invalid token")
		}
		c.Locals(userLocal, map[string]interface{}{
			"user_id":  u.UserID,
			"fullname": u.Fullname,
			"email":    u.Email,
			"role":     u.Role,
		})
		return c.Next()
	}
}

// RequireAuth ensures a user is in the session. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorID(c); !ok {
			return response.Unauthorized(c, "Unauthorized")
		}
		c.Locals("auth", c.Locals(userLocal))
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}

// ActorID returns the authenticated user's id.
func ActorID(c *fiber.Ctx) (uuid.UUID, bool) {
	m, ok := GetUser(c).(map[string]interface{})
	if !ok {
		return uuid.Nil, false
	}
	s, _ := m["user_id"].(string)
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
