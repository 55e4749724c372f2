package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	healthsvc "agrihub-backend/internal/application/health"
	"agrihub-backend/internal/middleware"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

func setupHealth(t *testing.T) (*fiber.App, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := &Handlers{
		Deps:           healthsvc.Deps{Rdb: rdb, DB: okPinger{}},
		ServiceName:    "agrihub-api",
		HealthAdminKey: "admin-key",
	}
	app := fiber.New()
	app.Get("/health/json", h.JSON)
	app.Get("/health/errors", h.Errors)
	app.Get("/health/reset", h.Reset)
	return app, rdb
}

func TestJSON(t *testing.T) {
	app, rdb := setupHealth(t)
	require.NoError(t, rdb.Set(context.Background(), middleware.KeyReqTotal, 4, 0).Err())
	require.NoError(t, rdb.Set(context.Background(), middleware.KeyReqErrors, 1, 0).Err())

	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "agrihub-api", out["service"])
	assert.Equal(t, "ok", out["status"])
	traffic := out["traffic"].(map[string]interface{})
	assert.Equal(t, float64(3), traffic["successCount"])
	assert.Equal(t, "75.0", traffic["successRate"])
}

func TestErrorsAndReset(t *testing.T) {
	app, rdb := setupHealth(t)
	ctx := context.Background()
	require.NoError(t, rdb.LPush(ctx, middleware.KeyErrorLog, `{"path":"/api/v1/listings","status":503}`).Err())

	resp, err := app.Test(httptest.NewRequest("GET", "/health/errors", nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "/api/v1/listings", entries[0]["path"])

	resp, err = app.Test(httptest.NewRequest("GET", "/health/reset?key=wrong", nil))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/health/reset?key=admin-key", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	n, err := rdb.LLen(ctx, middleware.KeyErrorLog).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
