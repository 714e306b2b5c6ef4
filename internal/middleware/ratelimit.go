package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/koinonia/backend/internal/ratelimit"
	"github.com/koinonia/backend/pkg/logger"
	"github.com/koinonia/backend/pkg/utils"
)

// WriteRateLimit throttles mutating requests per authenticated user,
// falling back to the client IP before authentication runs. A nil limiter
// disables throttling, which is how tests run.
func WriteRateLimit(limiter *ratelimit.FixedWindowLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.IP()
		if user := GetCurrentUser(c); user != nil {
			key = user.ID.String()
		}

		if !limiter.Allow(key) {
			logger.Warn("rate_limit_exceeded", map[string]interface{}{
				"key":  key,
				"path": c.Path(),
			})
			return utils.Error(c, fiber.StatusTooManyRequests, "too many requests, slow down")
		}
		return c.Next()
	}
}
