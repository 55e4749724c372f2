package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agrihub-backend/bootstrap"
	"agrihub-backend/internal/infrastructure/database"

	"github.com/rs/zerolog/log"
)

func main() {
	a, err := bootstrap.New()
	if err != nil {
		log.Fatal().Err(err).Msg("app create")
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := a.Ping(ctx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("postgres/redis unreachable")
	}
	cancel()
	log.Info().Msg("postgres and redis connected")
	if a.NATS != nil {
		log.Info().Str("url", a.NATS.ConnectedUrl()).Msg("nats connected")
	}

	if a.Config.AutoMigrate {
		if err := database.AutoMigrate(a.DB); err != nil {
			log.Fatal().Err(err).Msg("auto migrate")
		}
		log.Info().Msg("schema migrated")
	}

	go func() {
		port := a.Config.Port
		log.Info().Str("port", port).Msgf("server running at http://localhost:%s (health: /health/json)", port)
		if err := a.Fiber.Listen(":" + port); err != nil {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")
	if err := a.Fiber.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
