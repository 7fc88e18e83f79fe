package router

import (
	"freelancehub/internal/adapter/api/handler"
	"freelancehub/internal/adapter/api/middleware"
	"freelancehub/internal/infrastructure/ratelimit"

	"github.com/labstack/echo/v4"
)

func SetupConversationRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	conversationHandler := handler.GetConversationHandler()
	messageHandler := handler.GetMessageHandler()

	conversationGroup := e.Group("/v1/conversations")
	conversationGroup.Use(authMiddleware.Authenticate)

	conversationGroup.POST("", conversationHandler.FindOrCreate, middleware.RateLimit(limiter, ratelimit.ActionCreateConversation))
	conversationGroup.GET("", conversationHandler.ListConversations)
	conversationGroup.GET("/:id", conversationHandler.GetConversation)
	conversationGroup.PUT("/:id/pin", conversationHandler.SetPinned)
	conversationGroup.PUT("/:id/archive", conversationHandler.SetArchived)
	conversationGroup.PUT("/:id/mute", conversationHandler.SetMuted)

	conversationGroup.POST("/:id/messages", messageHandler.SendMessage, middleware.RateLimit(limiter, ratelimit.ActionSendMessage))
	conversationGroup.GET("/:id/messages", messageHandler.GetMessages)
	conversationGroup.PUT("/:id/read", messageHandler.MarkAsRead)
	conversationGroup.PATCH("/:id/messages/:messageId", messageHandler.EditMessage)
	conversationGroup.DELETE("/:id/messages/:messageId", messageHandler.DeleteMessage)
	conversationGroup.POST("/:id/messages/:messageId/reactions", messageHandler.ToggleReaction)
}
