package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
)

const conversationsCollection = "conversations"

type firestoreConversationRepository struct {
	client *firestore.Client
}

func NewFirestoreConversationRepository(client *firestore.Client) repository.ConversationRepository {
	return &firestoreConversationRepository{
		client: client,
	}
}

func (r *firestoreConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	now := time.Now()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now
	if conversation.UnreadCount == nil {
		conversation.UnreadCount = make(map[string]int)
	}

	_, err := r.client.Collection(conversationsCollection).Doc(conversation.ID).Create(ctx, conversation)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("Conversation already exists", err)
		}
		return errors.Internal("Failed to create conversation", err)
	}
	return nil
}

func (r *firestoreConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	doc, err := r.client.Collection(conversationsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Conversation", err)
		}
		return nil, errors.Internal("Failed to get conversation", err)
	}
	return decodeConversation(doc)
}

// FindByPair filters the conversation type client side so the lookup only
// needs the two equality fields indexed.
func (r *firestoreConversationRepository) FindByPair(ctx context.Context, clientID, freelancerID string) (*entity.Conversation, error) {
	docs, err := r.client.Collection(conversationsCollection).
		Where("clientId", "==", clientID).
		Where("freelancerId", "==", freelancerID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errors.Internal("Failed to query conversations", err)
	}

	var found *entity.Conversation
	for _, doc := range docs {
		c, err := decodeConversation(doc)
		if err != nil {
			logger.Warn("FindByPair: skipping unreadable conversation %s: %v", doc.Ref.ID, err)
			continue
		}
		if c.Type != "" && c.Type != entity.ConversationOneToOne {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) {
			found = c
		}
	}
	if found == nil {
		return nil, errors.NotFound("Conversation", nil)
	}
	return found, nil
}

func (r *firestoreConversationRepository) Update(ctx context.Context, id string, patch repository.ConversationPatch) error {
	updates := []firestore.Update{
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if patch.LastMessage != nil {
		updates = append(updates, firestore.Update{Path: "lastMessage", Value: patch.LastMessage})
	}
	for _, uid := range patch.UnreadReset {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"unreadCount", uid}, Value: 0})
	}
	for _, uid := range patch.UnreadIncrement {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"unreadCount", uid}, Value: firestore.Increment(1)})
	}
	if patch.Pinned != nil {
		updates = append(updates, firestore.Update{Path: "pinned", Value: *patch.Pinned})
	}
	for uid, v := range patch.Archived {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"isArchived", uid}, Value: v})
	}
	for uid, v := range patch.Muted {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"isMuted", uid}, Value: v})
	}
	if patch.ProposalID != nil {
		updates = append(updates, firestore.Update{Path: "proposalId", Value: *patch.ProposalID})
	}

	_, err := r.client.Collection(conversationsCollection).Doc(id).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Conversation", err)
		}
		return errors.Internal("Failed to update conversation", err)
	}
	return nil
}

func (r *firestoreConversationRepository) SubscribeByParticipant(ctx context.Context, userID string, onChange func([]*entity.Conversation), onError func(error)) repository.Unsubscribe {
	query := r.client.Collection(conversationsCollection).Where("participants", "array-contains", userID)
	return listenQuery(ctx, query, "conversations:"+userID, func(snap *firestore.QuerySnapshot) error {
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		out := make([]*entity.Conversation, 0, len(docs))
		for _, doc := range docs {
			c, err := decodeConversation(doc)
			if err != nil {
				logger.Warn("Conversation listener: skipping %s: %v", doc.Ref.ID, err)
				continue
			}
			out = append(out, c)
		}
		onChange(out)
		return nil
	}, onError)
}

func decodeConversation(doc *firestore.DocumentSnapshot) (*entity.Conversation, error) {
	var c entity.Conversation
	if err := doc.DataTo(&c); err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}
	if c.ID == "" {
		c.ID = doc.Ref.ID
	}
	return &c, nil
}
