package middleware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

var errNoStore = errors.New("rate limit store not configured")

// allowance is the outcome of counting one request against a fixed window.
type allowance struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

// rateLimitBypassed reports whether the current environment skips rate limiting.
func rateLimitBypassed() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

// CheckRateLimit increments the counter for resource/id and reports whether it is still within
// limit for the current window. Rate limiting is disabled in test, development and stress
// environments.
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (bool, error) {
	a, err := take(ctx, rdb, resource, id, limit, window)
	return a.allowed, err
}

func take(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (allowance, error) {
	if rateLimitBypassed() {
		return allowance{allowed: true, remaining: limit}, nil
	}
	if rdb == nil {
		return allowance{}, errNoStore
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	if _, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	}); err != nil {
		return allowance{}, err
	}

	// A counter without expiry (new, or left behind by a failed EXPIRE) starts the window now.
	resetIn := pttl.Val()
	if resetIn < 0 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return allowance{}, err
		}
		resetIn = window
	}

	count := int(incr.Val())
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return allowance{allowed: count <= limit, remaining: remaining, resetIn: resetIn}, nil
}

// RateLimit returns a Fiber middleware enforcing `limit` requests per `window`, keyed by the
// authenticated user when present and by remote IP otherwise. It fails open.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy is RateLimit with an explicit failure policy.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := "ip:" + c.IP()
		if uid := c.Locals("userID"); uid != nil {
			id = fmt.Sprintf("user:%v", uid)
		}
		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		a, err := take(c.UserContext(), rdb, resource, id, limit, window)
		if err != nil {
			if policy == FailOpen {
				return c.Next()
			}
			Logger.WarnContext(c.UserContext(), "rate limit store unavailable, failing closed",
				"resource", resource, "path", c.Path(), "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "rate limit unavailable",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(a.remaining))
		if !a.allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int((a.resetIn+time.Second-1)/time.Second)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
