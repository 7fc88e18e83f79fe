package handler

import (
	"context"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/internal/usecase"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/response"

	"github.com/labstack/echo/v4"
)

type ConversationHandler struct {
	conversationUseCase *usecase.ConversationUseCase
	conversations       repository.ConversationRepository
	users               repository.UserRepository
}

func NewConversationHandler(conversationUseCase *usecase.ConversationUseCase, conversations repository.ConversationRepository, users repository.UserRepository) *ConversationHandler {
	return &ConversationHandler{
		conversationUseCase: conversationUseCase,
		conversations:       conversations,
		users:               users,
	}
}

// Either counterpart_id (roles resolved from profiles) or an explicit
// client/freelancer pair.
type findOrCreateRequest struct {
	CounterpartID string `json:"counterpart_id" validate:"required_without=ClientID"`
	ClientID      string `json:"client_id" validate:"required_without=CounterpartID"`
	FreelancerID  string `json:"freelancer_id" validate:"required_with=ClientID"`
	ProposalID    string `json:"proposal_id"`
	ProjectID     string `json:"project_id"`
}

type flagRequest struct {
	Value *bool `json:"value" validate:"required"`
}

type conversationResult struct {
	Conversation *entity.Conversation `json:"conversation"`
	Created      bool                 `json:"created"`
}

// FindOrCreate returns the one conversation between the caller and a counterpart.
func (h *ConversationHandler) FindOrCreate(c echo.Context) error {
	var req findOrCreateRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	ctx := c.Request().Context()

	var (
		conversation *entity.Conversation
		created      bool
		err          error
	)
	if req.CounterpartID != "" {
		conversation, created, err = h.conversationUseCase.FindOrCreateBetween(ctx, userID, req.CounterpartID, req.ProposalID)
	} else {
		if userID != req.ClientID && userID != req.FreelancerID {
			return response.Error(c, errors.Forbidden("You must be one of the participants", nil))
		}
		conversation, created, err = h.conversationUseCase.FindOrCreate(ctx, usecase.FindOrCreateInput{
			ClientID:     req.ClientID,
			FreelancerID: req.FreelancerID,
			ProposalID:   req.ProposalID,
			ProjectID:    req.ProjectID,
		})
	}
	if err != nil {
		return response.Error(c, err)
	}

	result := conversationResult{Conversation: conversation, Created: created}
	if created {
		return response.Created(c, result)
	}
	return response.Success(c, result)
}

// ListConversations returns the caller's directory, most recent first.
// ?filter=unread|pinned|archived|role&role=client|freelancer narrows it.
func (h *ConversationHandler) ListConversations(c echo.Context) error {
	userID := c.Get("uid").(string)

	filter := usecase.DirectoryFilter{Kind: usecase.FilterKind(c.QueryParam("filter"))}
	switch filter.Kind {
	case "":
		filter.Kind = usecase.FilterAll
	case usecase.FilterAll, usecase.FilterUnread, usecase.FilterPinned, usecase.FilterArchived:
	case usecase.FilterRole:
		filter.Role = entity.UserRole(c.QueryParam("role"))
		if filter.Role != entity.RoleClient && filter.Role != entity.RoleFreelancer {
			return response.Error(c, errors.BadRequest("role must be client or freelancer", nil))
		}
	default:
		return response.Error(c, errors.BadRequest("Unknown filter "+string(filter.Kind), nil))
	}

	directory := usecase.NewConversationDirectory(h.conversations, h.users, userID)
	if err := directory.Load(c.Request().Context()); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"conversations": directory.Filter(filter),
		"total_unread":  directory.TotalUnread(),
	})
}

func (h *ConversationHandler) GetConversation(c echo.Context) error {
	conversationID := c.Param("id")
	userID := c.Get("uid").(string)

	conversation, err := h.conversationUseCase.Get(c.Request().Context(), conversationID, userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, conversation)
}

func (h *ConversationHandler) SetPinned(c echo.Context) error {
	return h.setFlag(c, h.conversationUseCase.SetPinned, "pinned")
}

func (h *ConversationHandler) SetArchived(c echo.Context) error {
	return h.setFlag(c, h.conversationUseCase.SetArchived, "archived")
}

func (h *ConversationHandler) SetMuted(c echo.Context) error {
	return h.setFlag(c, h.conversationUseCase.SetMuted, "muted")
}

type flagSetter func(ctx context.Context, conversationID, userID string, value bool) error

func (h *ConversationHandler) setFlag(c echo.Context, set flagSetter, name string) error {
	var req flagRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	conversationID := c.Param("id")
	userID := c.Get("uid").(string)
	if err := set(c.Request().Context(), conversationID, userID, *req.Value); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"conversation_id": conversationID,
		name:              *req.Value,
	})
}
