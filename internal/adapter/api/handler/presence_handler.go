package handler

import (
	"net/http"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/usecase"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/response"

	"github.com/labstack/echo/v4"
)

type PresenceHandler struct {
	presenceTracker     *usecase.PresenceTracker
	conversationUseCase *usecase.ConversationUseCase
}

func NewPresenceHandler(presenceTracker *usecase.PresenceTracker, conversationUseCase *usecase.ConversationUseCase) *PresenceHandler {
	return &PresenceHandler{
		presenceTracker:     presenceTracker,
		conversationUseCase: conversationUseCase,
	}
}

type presenceRequest struct {
	Status    string `json:"status" validate:"required,oneof=online away busy offline"`
	Platform  string `json:"platform"`
	UserAgent string `json:"user_agent"`
}

type typingRequest struct {
	Typing *bool `json:"typing" validate:"required"`
}

func (h *PresenceHandler) SetPresence(c echo.Context) error {
	var req presenceRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	var device *entity.DeviceInfo
	if req.Platform != "" || req.UserAgent != "" {
		device = &entity.DeviceInfo{Platform: req.Platform, UserAgent: req.UserAgent}
	} else if ua := c.Request().UserAgent(); ua != "" {
		device = &entity.DeviceInfo{UserAgent: ua}
	}

	userID := c.Get("uid").(string)
	if err := h.presenceTracker.SetStatus(c.Request().Context(), userID, entity.PresenceStatus(req.Status), device); err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *PresenceHandler) GetPresence(c echo.Context) error {
	presence, err := h.presenceTracker.Get(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, presence)
}

// SetTyping publishes or clears the caller's typing signal for a conversation.
func (h *PresenceHandler) SetTyping(c echo.Context) error {
	var req typingRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	conversationID := c.Param("id")
	userID := c.Get("uid").(string)
	ctx := c.Request().Context()
	if _, err := h.conversationUseCase.Get(ctx, conversationID, userID); err != nil {
		return response.Error(c, err)
	}

	var err error
	if *req.Typing {
		err = h.presenceTracker.SetTyping(ctx, userID, conversationID)
	} else {
		err = h.presenceTracker.ClearTyping(ctx, userID)
	}
	if err != nil {
		return response.Error(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}
