package repository

import (
	"context"

	"freelancehub/internal/domain/entity"
)

// ConversationPatch is a partial update of a conversation document. Nil and
// empty fields are left untouched; UpdatedAt is always refreshed.
type ConversationPatch struct {
	LastMessage     *entity.LastMessage
	UnreadReset     []string
	UnreadIncrement []string
	Pinned          *bool
	Archived        map[string]bool
	Muted           map[string]bool
	ProposalID      *string
}

type ConversationRepository interface {
	// Create fails with a CONFLICT AppError when the id is already taken.
	Create(ctx context.Context, conversation *entity.Conversation) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	// FindByPair looks up a one to one conversation between a client and a
	// freelancer regardless of its proposal.
	FindByPair(ctx context.Context, clientID, freelancerID string) (*entity.Conversation, error)
	Update(ctx context.Context, id string, patch ConversationPatch) error

	SubscribeByParticipant(ctx context.Context, userID string, onChange func([]*entity.Conversation), onError func(error)) Unsubscribe
}
