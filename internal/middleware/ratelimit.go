package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"contactbook/internal/config"
)

// NewRateLimiter builds the limiter shared by every rate-limited route. The
// redis store is used unless the config asks for the in-process one.
func NewRateLimiter(cfg config.RateLimitConfig, client *redis.Client) (*limiter.Limiter, error) {
	rate := limiter.Rate{Period: cfg.Period, Limit: cfg.Requests}
	opts := limiter.StoreOptions{Prefix: cfg.Prefix, CleanUpInterval: time.Minute}

	var store limiter.Store
	switch cfg.Store {
	case "memory":
		store = memory.NewStoreWithOptions(opts)
	case "redis", "":
		if client == nil {
			return nil, fmt.Errorf("ratelimit: redis store needs a client")
		}
		s, err := sredis.NewStoreWithOptions(client, opts)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
		store = s
	default:
		return nil, fmt.Errorf("ratelimit: unknown store %q", cfg.Store)
	}

	return limiter.New(store, rate), nil
}

// RateLimit keys requests by the authenticated user, falling back to the
// client address on routes without a user.
func RateLimit(instance *limiter.Limiter, log zerolog.Logger) gin.HandlerFunc {
	if instance == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return mgin.NewMiddleware(instance,
		mgin.WithKeyGetter(rateLimitKey),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			log.Warn().Str("key", rateLimitKey(c)).Str("path", c.FullPath()).Msg("rate limit exceeded")
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": "Too many requests"})
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			// Fail open when the store is unreachable.
			log.Error().Err(err).Msg("rate limiter unavailable")
			c.Next()
		}),
	)
}

func rateLimitKey(c *gin.Context) string {
	if user, ok := CurrentUser(c); ok && user.ID != "" {
		return "user:" + user.ID + ":" + c.Request.Method + ":" + c.FullPath()
	}
	return "ip:" + c.ClientIP() + ":" + c.Request.Method + ":" + c.FullPath()
}
