package router

import (
	"freelancehub/internal/adapter/api/middleware"
	"freelancehub/internal/infrastructure/ratelimit"

	"github.com/labstack/echo/v4"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	SetupConversationRouter(e, authMiddleware, limiter)
	SetupPresenceRouter(e, authMiddleware, limiter)
	SetupHealthRouter(e)
}
