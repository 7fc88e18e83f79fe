package middleware

import (
	"math"
	"strconv"

	"freelancehub/internal/infrastructure/ratelimit"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
	"freelancehub/pkg/response"

	"github.com/labstack/echo/v4"
)

// RateLimit spends one token of action per request. Requests are keyed by
// the authenticated user, or by client IP before authentication.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, ok := c.Get("uid").(string)
			if !ok || key == "" {
				key = "ip:" + c.RealIP()
			}

			allowed, retryAfter := limiter.Allow(key, action)
			if !allowed {
				logger.Warn("RATE LIMIT: %s denied for %s (retry in %v)", action, key, retryAfter)
				seconds := int(math.Ceil(retryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded for "+action))
			}
			return next(c)
		}
	}
}
