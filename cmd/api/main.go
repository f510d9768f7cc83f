package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"

	"contactbook/internal/cache"
	"contactbook/internal/config"
	"contactbook/internal/database"
	"contactbook/internal/handlers"
	"contactbook/internal/jobs"
	"contactbook/internal/log"
	"contactbook/internal/mail"
	"contactbook/internal/middleware"
	"contactbook/internal/repository"
	"contactbook/internal/security"
	"contactbook/internal/server"
	"contactbook/internal/service"
	"contactbook/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, dbPool); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
	}

	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	tokens, err := security.NewTokenService(security.TokenConfig{
		Secret:     cfg.Security.JWTSecret,
		Issuer:     cfg.Security.JWTIssuer,
		AccessTTL:  cfg.Security.JWTAccessTTL,
		RefreshTTL: cfg.Security.JWTRefreshTTL,
		ConfirmTTL: cfg.Security.JWTConfirmTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("token service")
	}
	passwords, err := security.NewPasswordHasher(security.Argon2Params{
		Time:    cfg.Security.Argon2.Time,
		Memory:  cfg.Security.Argon2.Memory,
		Threads: cfg.Security.Argon2.Threads,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("password hasher")
	}

	var (
		sessions    cache.SessionCache
		memSessions *cache.MemorySessionCache
	)
	switch cfg.Security.SessionCache {
	case "redis":
		sessions = cache.NewRedisSessionCache(redisClient)
	case "memory":
		memSessions = cache.NewMemorySessionCache()
		sessions = memSessions
	default:
		sessions = cache.NopSessionCache{}
	}

	mailer, err := newSender(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("mail sender")
	}

	users := repository.NewUserRepository(dbPool)
	contacts := repository.NewContactRepository(dbPool)

	authService := service.NewAuthService(users, tokens, passwords, sessions, mailer, service.NewGravatar(cfg.Avatar), cfg, logger)
	contactService := service.NewContactService(contacts, logger)
	avatarService := service.NewAvatarService(users, objectStore, cfg, logger)

	var rateLimiter *limiter.Limiter
	if cfg.RateLimit.Enabled {
		rateLimiter, err = middleware.NewRateLimiter(cfg.RateLimit, redisClient)
		if err != nil {
			logger.Fatal().Err(err).Msg("rate limiter")
		}
	}

	handlerSet, err := handlers.NewHandlerSet(handlers.Dependencies{
		Log:         logger,
		Config:      cfg,
		Auth:        authService,
		Contacts:    contactService,
		Avatars:     avatarService,
		RateLimiter: rateLimiter,
		Database: func(ctx context.Context) error {
			return database.CheckConnection(ctx, dbPool)
		},
		Cache: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Ping(ctx).Err()
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("handlers")
	}
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(cfg.Jobs, users, contacts, mailer, logger)
	if memSessions != nil {
		scheduler.WithSweeper(memSessions)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func needsRedis(cfg *config.AppConfig) bool {
	return cfg.Security.SessionCache == "redis" ||
		cfg.Mail.Delivery == "queue" ||
		(cfg.RateLimit.Enabled && cfg.RateLimit.Store != "memory")
}

func newSender(cfg *config.AppConfig, client *redis.Client, logger zerolog.Logger) (mail.Sender, error) {
	switch cfg.Mail.Delivery {
	case "queue":
		return mail.NewQueueSender(client, cfg.Mail.Stream), nil
	case "smtp":
		return mail.NewSMTPSender(cfg.Mail)
	default:
		return mail.NewLogSender(logger), nil
	}
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduled jobs still running at exit")
	}

	db.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
