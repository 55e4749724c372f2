package middleware

import (
	"agrihub-backend/internal/constants"
	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// AuthorizePermission lets the request through when the caller's role holds
// permission. Members can manage and request listings; the audit log is for
// moderators and admins.
func AuthorizePermission(permission string) fiber.Handler {
	if _, ok := constants.PermissionRoles[permission]; !ok {
		panic("middleware: unknown permission " + permission)
	}
	return func(c *fiber.Ctx) error {
		if _, ok := ActorID(c); !ok {
			return response.Unauthorized(c, "Unauthorized")
		}
		role := Role(c)
		if !constants.AllowedRole(permission, role) {
			log.Warn().Str("trace_id", GetTraceID(c)).Str("role", role).Str("permission", permission).Msg("permission denied")
			return response.Forbidden(c, "User is Forbidden from performing this action")
		}
		return c.Next()
	}
}

// Role returns the caller's role, or "" when unauthenticated.
func Role(c *fiber.Ctx) string {
	m, ok := GetUser(c).(map[string]interface{})
	if !ok {
		return ""
	}
	r, _ := m["role"].(string)
	return r
}
