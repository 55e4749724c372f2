package auth

import (
	"errors"
	"strings"

	authsvc "agrihub-backend/internal/application/auth"
	"agrihub-backend/internal/application/emails"
	"agrihub-backend/internal/domain"
	"agrihub-backend/internal/middleware"
	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const userSessionsPrefix = "user_sessions:"

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	UserFinder authsvc.UserFinder
	DB         *gorm.DB
	Rdb        *redis.Client
	Mailer     emails.Sender
	Config     middleware.SessionConfig
}

// LoginRequest body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register POST /api/v1/auth/register: create a member account and start a session.
func (h *Handlers) Register(c *fiber.Ctx) error {
	if h.DB == nil {
		return response.InternalError(c)
	}
	var req authsvc.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	user, err := authsvc.Register(c.UserContext(), h.DB, req)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrInvalidPassword):
			return response.BadRequest(c, err.Error())
		case errors.Is(err, authsvc.ErrEmailTaken):
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		}
		return response.FromError(c, err)
	}

	if h.Mailer != nil {
		first := strings.Fields(user.FullName)[0]
		if err := h.Mailer.SendWelcome(c.UserContext(), user.Email, first); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("welcome email failed")
		}
	}

	if err := h.startSession(c, user); err != nil {
		return response.InternalError(c)
	}
	return response.SuccessCreated(c, "Registration successful", fiber.Map{"user": userBody(user)}, nil)
}

// Login POST /api/v1/auth/login: authenticate, create session, track it under user_sessions:<id>.
func (h *Handlers) Login(c *fiber.Ctx) error {
	if h.UserFinder == nil {
		return response.InternalError(c)
	}
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Email and password are required")
	}
	if req.Email == "" || req.Password == "" {
		return response.BadRequest(c, "Email and password are required")
	}

	user, err := h.UserFinder.FindByEmailAndPassword(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrEmailPasswordRequired):
			return response.BadRequest(c, err.Error())
		case errors.Is(err, authsvc.ErrInvalidEmail), errors.Is(err, authsvc.ErrIncorrectPassword):
			return response.Unauthorized(c, err.Error())
		}
		return response.FromError(c, err)
	}

	if err := h.startSession(c, user); err != nil {
		return response.InternalError(c)
	}
	return response.Success(c, "Login successful", fiber.Map{"user": userBody(user)}, nil)
}

func (h *Handlers) startSession(c *fiber.Ctx, user *domain.User) error {
	sessionID := middleware.RegenerateSessionID(c)
	middleware.SetSessionUser(c, middleware.SessionUser{
		UserID:   user.ID.String(),
		Fullname: user.FullName,
		Email:    user.Email,
		Role:     user.Role,
	})
	if err := h.Rdb.SAdd(c.UserContext(), userSessionsPrefix+user.ID.String(), sessionID).Err(); err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("session tracking failed")
		return err
	}
	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = middleware.SessionCookieValue(h.Config, sessionID)
	c.Cookie(&cookie)
	return nil
}

func userBody(u *domain.User) fiber.Map {
	return fiber.Map{
		"user_id":  u.ID.String(),
		"fullname": u.FullName,
		"email":    u.Email,
		"role":     u.Role,
	}
}

// Me GET /api/v1/auth/me: current session or bearer user.
func (h *Handlers) Me(c *fiber.Ctx) error {
	sessionUser := middleware.GetUser(c)
	user, err := authsvc.VerifyUser(sessionUser)
	if err != nil {
		if middleware.GetSessionID(c) != "" {
			log.Info().Str("path", "/auth/me").Msg("auth/me: session id present but no user in session data")
		}
		return response.Unauthorized(c, "Not authenticated")
	}
	return response.Success(c, "Authenticated", fiber.Map{"user": user}, nil)
}

// Logout DELETE /api/v1/auth/logout: drop the session from Redis and clear the cookie.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	ctx := c.UserContext()

	if sessionID != "" {
		if id, ok := middleware.ActorID(c); ok {
			_ = h.Rdb.SRem(ctx, userSessionsPrefix+id.String(), sessionID).Err()
		}
		_ = h.Rdb.Del(ctx, middleware.SessionRedisPrefix+sessionID).Err()
	}
	middleware.DestroySession(c)

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = ""
	cookie.MaxAge = -1
	c.Cookie(&cookie)

	return response.Success(c, "Logged out successfully", nil, nil)
}
