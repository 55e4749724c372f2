package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionConfig for the Redis-backed cookie session.
type SessionConfig struct {
	// Secret signs the cookie value. Empty accepts unsigned "s:<id>" cookies.
	Secret            string
	AllowCrossSiteDev bool
	IsProduction      bool
}

const (
	SessionCookieName  = "agrihub.sid"
	SessionRedisPrefix = "session:"
	sessionMaxAge      = 24 * time.Hour

	sessionDataLocal = "session_data"
	sessionIDLocal   = "session_id"
)

// SessionUser is the shape stored in session under "user".
type SessionUser struct {
	UserID   string `json:"user_id"`
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Session loads the session named by the cookie from Redis into Locals and
// writes it back after the handler, sliding the expiry. A cookie whose
// signature does not match is treated as no session at all.
func Session(rdb *redis.Client, cfg SessionConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID, ok := ParseSessionCookie(cfg, c.Cookies(SessionCookieName))
		if !ok {
			sessionID = ""
		}

		data := loadSession(c.UserContext(), rdb, sessionID)
		c.Locals(sessionDataLocal, data)
		c.Locals(userLocal, data["user"])
		c.Locals(sessionIDLocal, sessionID)

		if err := c.Next(); err != nil {
			return err
		}

		sid := GetSessionID(c)
		updated, _ := c.Locals(sessionDataLocal).(map[string]interface{})
		if sid == "" || len(updated) == 0 {
			return nil
		}
		b, err := json.Marshal(updated)
		if err != nil {
			return nil
		}
		if err := rdb.Set(c.UserContext(), SessionRedisPrefix+sid, b, sessionMaxAge).Err(); err != nil {
			log.Warn().Err(err).Str("trace_id", GetTraceID(c)).Msg("session save failed")
		}
		return nil
	}
}

func loadSession(ctx context.Context, rdb *redis.Client, sessionID string) map[string]interface{} {
	data := map[string]interface{}{}
	if sessionID == "" {
		return data
	}
	b, err := rdb.Get(ctx, SessionRedisPrefix+sessionID).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("session load failed")
		}
		return data
	}
	_ = json.Unmarshal(b, &data)
	return data
}

// SessionCookieValue is the cookie value for sessionID: "s:<id>" followed by
// ".<signature>" when a secret is configured.
func SessionCookieValue(cfg SessionConfig, sessionID string) string {
	if cfg.Secret == "" {
		return "s:" + sessionID
	}
	return "s:" + sessionID + "." + signSessionID(cfg.Secret, sessionID)
}

// ParseSessionCookie extracts the session id from a cookie value and checks
// its signature.
func ParseSessionCookie(cfg SessionConfig, value string) (string, bool) {
	if !strings.HasPrefix(value, "s:") {
		return "", false
	}
	id, sig, signed := strings.Cut(value[2:], ".")
	if id == "" {
		return "", false
	}
	if cfg.Secret == "" {
		return id, true
	}
	if !signed || !hmac.Equal([]byte(sig), []byte(signSessionID(cfg.Secret, id))) {
		return "", false
	}
	return id, true
}

func signSessionID(secret, id string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// GetSessionID returns the current session id ("" when there is none).
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals(sessionIDLocal).(string)
	return sid
}

// SetSessionUser stores user in the session. Call RegenerateSessionID first
// so a login never reuses a pre-authentication id.
func SetSessionUser(c *fiber.Ctx, user SessionUser) {
	data, _ := c.Locals(sessionDataLocal).(map[string]interface{})
	if data == nil {
		data = map[string]interface{}{}
	}
	u := map[string]interface{}{
		"user_id":  user.UserID,
		"fullname": user.Fullname,
		"email":    user.Email,
		"role":     user.Role,
	}
	data["user"] = u
	c.Locals(sessionDataLocal, data)
	c.Locals(userLocal, u)
}

// RegenerateSessionID assigns a fresh session id; the caller sets the cookie.
func RegenerateSessionID(c *fiber.Ctx) string {
	newID := uuid.NewString()
	c.Locals(sessionIDLocal, newID)
	return newID
}

// DestroySession empties the session so nothing is written back. The caller
// clears the cookie and the Redis key.
func DestroySession(c *fiber.Ctx) {
	c.Locals(sessionDataLocal, map[string]interface{}{})
	c.Locals(userLocal, nil)
	c.Locals(sessionIDLocal, "")
}

// SessionCookieConfig returns the cookie attributes. Cross-site dev mode needs
// SameSite=None, which browsers only accept on secure cookies.
func SessionCookieConfig(cfg SessionConfig) fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if cfg.AllowCrossSiteDev {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	return fiber.Cookie{
		Name:     SessionCookieName,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HTTPOnly: true,
		Secure:   cfg.IsProduction || cfg.AllowCrossSiteDev,
		SameSite: sameSite,
	}
}
