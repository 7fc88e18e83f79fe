package router

import (
	"freelancehub/internal/adapter/api/handler"
	"freelancehub/internal/adapter/api/middleware"
	"freelancehub/internal/infrastructure/ratelimit"

	"github.com/labstack/echo/v4"
)

func SetupPresenceRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	presenceHandler := handler.GetPresenceHandler()

	e.PUT("/v1/presence", presenceHandler.SetPresence, authMiddleware.Authenticate)
	e.GET("/v1/presence/:uid", presenceHandler.GetPresence, authMiddleware.Authenticate)
	e.POST("/v1/conversations/:id/typing", presenceHandler.SetTyping,
		authMiddleware.Authenticate, middleware.RateLimit(limiter, ratelimit.ActionTyping))
}
