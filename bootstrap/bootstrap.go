package bootstrap

import (
	"context"
	"errors"

	"agrihub-backend/internal/config"
	"agrihub-backend/internal/infrastructure/database"
	"agrihub-backend/internal/infrastructure/events"
	"agrihub-backend/internal/interfaces/router"
	"agrihub-backend/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// App is the API with the connections it owns.
type App struct {
	Config *config.Config
	Fiber  *fiber.App
	DB     *gorm.DB
	Rdb    *redis.Client
	NATS   *nats.Conn
}

// New loads config, opens Postgres, Redis and (when configured) NATS, and
// builds the Fiber app. The cmd and Vercel entry points both start here.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.LogLevel, cfg.Env)

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)

	a := &App{Config: cfg, DB: db, Rdb: rdb}
	feed := events.NewRedisFeed(rdb, cfg.ChangeFeedChannel)
	deps := router.Deps{DB: db, Rdb: rdb, Publisher: feed}

	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name(cfg.AppName), nats.MaxReconnects(-1))
		if err != nil {
			log.Error().Err(err).Str("url", cfg.NatsURL).Msg("nats connect failed")
		} else {
			a.NATS = nc
			deps.NATS = nc
			deps.Publisher = events.Multi{feed, events.NewNATSPublisher(nc, cfg.NatsSubject)}
		}
	}

	app, err := router.CreateApp(cfg, deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Fiber = app
	return a, nil
}

// Ping checks Postgres and Redis.
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	return a.Rdb.Ping(ctx).Err()
}

// Close releases every connection the app opened.
func (a *App) Close() {
	if a.NATS != nil {
		_ = a.NATS.Drain()
	}
	if a.Rdb != nil {
		_ = a.Rdb.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
