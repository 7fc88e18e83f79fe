package repository

import (
	"context"
	"time"

	"freelancehub/internal/domain/entity"
)

// Replica names one of the two physical locations of a message.
type Replica string

const (
	// ReplicaSubcollection is conversations/{id}/messages, the canonical copy.
	ReplicaSubcollection Replica = "subcollection"
	// ReplicaFlat is the top level messages collection keyed by conversationId.
	ReplicaFlat Replica = "flat"
)

// MessagePatch is a partial update of one message replica. Map fields are
// merged key by key; a reaction entry with an empty list removes the emoji.
type MessagePatch struct {
	ReadBy      map[string]time.Time
	DeliveredTo map[string]time.Time
	Status      *entity.MessageStatus
	Text        *string
	EditedAt    *time.Time
	DeletedAt   *time.Time
	Reactions   map[string][]entity.Reaction
}

type MessageRepository interface {
	Create(ctx context.Context, replica Replica, message *entity.Message) error
	GetByID(ctx context.Context, replica Replica, conversationID, messageID string) (*entity.Message, error)
	ListByConversation(ctx context.Context, replica Replica, conversationID string) ([]*entity.Message, error)
	Update(ctx context.Context, replica Replica, conversationID, messageID string, patch MessagePatch) error

	// Subscribe delivers the full, timestamp ordered contents of one replica
	// for a conversation on every change.
	Subscribe(ctx context.Context, replica Replica, conversationID string, onChange func([]*entity.Message), onError func(error)) Unsubscribe
}
