// Command notifier emails listing owners and requesters as requests are
// created and resolved. It consumes the change events the API publishes to NATS.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agrihub-backend/internal/application/emails"
	"agrihub-backend/internal/application/notifications"
	"agrihub-backend/internal/config"
	"agrihub-backend/internal/infrastructure/database"
	"agrihub-backend/internal/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const queueGroup = "agrihub-notifier"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	logger.Init(cfg.LogLevel, cfg.Env)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("notifier")
	}
}

func run(cfg *config.Config) error {
	if cfg.NatsURL == "" {
		return errors.New("NATS_URL is required")
	}
	if cfg.SendinblueAPIKey == "" {
		return errors.New("SENDINBLUE_API_KEY is required")
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	nc, err := nats.Connect(cfg.NatsURL, nats.Name("agrihub-notifier"), nats.MaxReconnects(-1))
	if err != nil {
		return err
	}
	defer nc.Drain()

	consumer := &notifications.Consumer{
		DB:      db,
		Mailer:  &emails.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom},
		BaseURL: cfg.AppBaseURL,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := nc.QueueSubscribe(cfg.NatsSubject, queueGroup, func(m *nats.Msg) {
		hctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := consumer.Handle(hctx, m.Data); err != nil {
			log.Error().Err(err).Str("subject", m.Subject).Msg("notifier: handle event")
		}
	})
	if err != nil {
		return err
	}
	log.Info().Str("subject", cfg.NatsSubject).Msg("notifier listening")

	<-ctx.Done()
	log.Info().Msg("notifier stopping")
	return sub.Drain()
}
