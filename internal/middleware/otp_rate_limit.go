package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// OTPRateLimit limits OTP requests per email, or per client IP when the body
// carries no email, within a fixed window.
func OTPRateLimit(cache *redis.Client, limit int, window time.Duration) fiber.Handler {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			Email string `json:"email"`
		}
		_ = c.BodyParser(&req)
		subject := strings.ToLower(strings.TrimSpace(req.Email))
		if subject == "" {
			subject = c.IP()
		}
		key := "rl:otp:" + subject
		ctx := c.UserContext()
		var cnt *redis.IntCmd
		var ttl *redis.DurationCmd
		_, err := cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			cnt = pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, window)
			ttl = pipe.TTL(ctx, key)
			return nil
		})
		if err != nil {
			return c.Next() // fail open when the cache is down
		}
		if cnt.Val() > int64(limit) {
			if secs := int(ttl.Val().Round(time.Second) / time.Second); secs > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			}
			return fiber.NewError(http.StatusTooManyRequests, "too many OTP requests, try again later")
		}
		return c.Next()
	}
}
