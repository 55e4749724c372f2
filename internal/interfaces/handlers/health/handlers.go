package health

import (
	"crypto/subtle"
	"encoding/json"
	"time"

	healthsvc "agrihub-backend/internal/application/health"
	"agrihub-backend/internal/domain"
	"agrihub-backend/internal/middleware"
	"agrihub-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Handlers serve the health report and the traffic counters behind it.
type Handlers struct {
	Deps           healthsvc.Deps
	ServiceName    string
	HealthAdminKey string
}

// Reset GET /health/reset?key=: wipes the traffic counters and error log.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	key := c.Query("key")
	if h.HealthAdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.HealthAdminKey)) != 1 {
		return response.Forbidden(c, "Unauthorized")
	}
	rdb := h.Deps.Rdb
	if rdb == nil {
		return response.Error(c, "Redis is not configured", fiber.StatusServiceUnavailable, nil)
	}
	ctx := c.UserContext()
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, middleware.HealthKeys()...)
		pipe.Set(ctx, middleware.KeyStartTime, time.Now().UnixMilli(), 0)
		return nil
	})
	if err != nil {
		return response.FromError(c, domain.StoreError(err))
	}
	return response.Success(c, "Stats reset successfully", fiber.Map{"success": true}, nil)
}

// JSON returns service status, runtime, traffic and dependencies.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	result := healthsvc.CollectHealth(c.UserContext(), h.Deps)
	code := fiber.StatusOK
	if result.Status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"service":      h.ServiceName,
		"status":       result.Status,
		"runtime":      result.Runtime,
		"traffic":      result.Traffic,
		"dependencies": result.Dependencies,
	})
}

// Errors GET /health/errors?limit=: newest 5xx entries first.
func (h *Handlers) Errors(c *fiber.Ctx) error {
	if h.Deps.Rdb == nil {
		return c.JSON([]interface{}{})
	}
	limit := c.QueryInt("limit", middleware.ErrorLogSize)
	if limit <= 0 || limit > middleware.ErrorLogSize {
		limit = middleware.ErrorLogSize
	}
	entries, err := h.Deps.Rdb.LRange(c.UserContext(), middleware.KeyErrorLog, 0, int64(limit-1)).Result()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON([]interface{}{})
	}
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		if json.Valid([]byte(e)) {
			out = append(out, json.RawMessage(e))
		}
	}
	return c.JSON(out)
}
