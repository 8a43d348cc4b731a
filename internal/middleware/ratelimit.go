package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// LoginRateLimit throttles credential attempts per client IP. Counters live
// in Redis so limits hold across instances; if Redis is down the request
// passes through rather than locking everyone out.
func LoginRateLimit(rdb *redis.Client, maxPerMinute int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if maxPerMinute <= 0 {
			return c.Next()
		}

		ctx := context.Background()
		now := time.Now()
		key := fmt.Sprintf("rl:login:%s:%s", c.IP(), now.Format("2006-01-02T15:04"))

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
		}
		rdb.Expire(ctx, key, 2*time.Minute)

		if count > int64(maxPerMinute) {
			retryAfter := 60 - now.Second()
			c.Set("X-RateLimit-Limit", strconv.Itoa(maxPerMinute))
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("Retry-After", strconv.Itoa(retryAfter))

			return c.Status(429).JSON(fiber.Map{
				"error":       "rate_limit_exceeded",
				"message":     "Too many login attempts",
				"retry_after": retryAfter,
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(maxPerMinute))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(maxPerMinute)-count, 10))
		return c.Next()
	}
}
