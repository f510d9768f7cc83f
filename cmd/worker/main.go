package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"contactbook/internal/cache"
	"contactbook/internal/config"
	"contactbook/internal/log"
	"contactbook/internal/mail"
	"contactbook/internal/queue"
	"contactbook/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel).With().Str("component", "worker").Logger()

	client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	var sender mail.Sender
	if cfg.Mail.Delivery == "log" {
		sender = mail.NewLogSender(logger)
	} else {
		smtp, err := mail.NewSMTPSender(cfg.Mail)
		if err != nil {
			logger.Fatal().Err(err).Msg("smtp sender")
		}
		sender = smtp
	}

	processor := tasks.NewProcessor(sender, logger)
	consumer := queue.NewConsumer(client, cfg.Mail.Stream, cfg.Worker, logger, processor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Fatal().Err(err).Msg("create consumer group")
	}

	logger.Info().Str("stream", cfg.Mail.Stream).Str("group", cfg.Worker.Group).Msg("worker started")
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker exited")
}
