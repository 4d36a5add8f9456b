package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aiplaza/serving-client/pkg/response"
)

// RateLimiter counts requests per client IP in fixed redis windows.
// A nil redis client disables limiting.
type RateLimiter struct {
	redis  *redis.Client
	logger *zap.SugaredLogger
}

func NewRateLimiter(redisClient *redis.Client, logger *zap.SugaredLogger) *RateLimiter {
	return &RateLimiter{redis: redisClient, logger: logger}
}

// ConnectRateLimiter pings redis once and disables limiting when it is not
// reachable.
func ConnectRateLimiter(ctx context.Context, redisClient *redis.Client, logger *zap.SugaredLogger) *RateLimiter {
	if redisClient == nil {
		return NewRateLimiter(nil, logger)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warnw("Redis not available, rate limiting disabled", "addr", redisClient.Options().Addr, "error", err)
		return NewRateLimiter(nil, logger)
	}
	return NewRateLimiter(redisClient, logger)
}

// Enabled reports whether requests are counted
func (rl *RateLimiter) Enabled() bool {
	return rl.redis != nil
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.redis == nil {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, c.IP())
		ctx := c.UserContext()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// Fail open
			rl.logger.Warnw("rate limiter unavailable", "key", key, "error", err)
			return c.Next()
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// UploadLimit limits file uploads per hour
func (rl *RateLimiter) UploadLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("upload", maxPerHour, time.Hour)
}

// RunLimit limits job submissions per hour
func (rl *RateLimiter) RunLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("run", maxPerHour, time.Hour)
}
