package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
)

// Messages live twice: conversations/{id}/messages/{messageId} and the flat
// messages/{messageId} collection, filtered by conversationId.
const flatMessagesCollection = "messages"

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) doc(replica repository.Replica, conversationID, messageID string) *firestore.DocumentRef {
	if replica == repository.ReplicaFlat {
		return r.client.Collection(flatMessagesCollection).Doc(messageID)
	}
	return r.client.Collection(conversationsCollection).Doc(conversationID).Collection("messages").Doc(messageID)
}

func (r *firestoreMessageRepository) query(replica repository.Replica, conversationID string) firestore.Query {
	if replica == repository.ReplicaFlat {
		return r.client.Collection(flatMessagesCollection).
			Where("conversationId", "==", conversationID).
			OrderBy("timestamp", firestore.Asc)
	}
	return r.client.Collection(conversationsCollection).Doc(conversationID).Collection("messages").
		OrderBy("timestamp", firestore.Asc)
}

// Create leaves a zero timestamp to the server.
func (r *firestoreMessageRepository) Create(ctx context.Context, replica repository.Replica, message *entity.Message) error {
	_, err := r.doc(replica, message.ConversationID, message.ID).Set(ctx, message)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, replica repository.Replica, conversationID, messageID string) (*entity.Message, error) {
	doc, err := r.doc(replica, conversationID, messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}
	message, err := decodeMessage(doc)
	if err != nil {
		return nil, err
	}
	if message.ConversationID != conversationID {
		return nil, errors.NotFound("Message", nil)
	}
	return message, nil
}

func (r *firestoreMessageRepository) ListByConversation(ctx context.Context, replica repository.Replica, conversationID string) ([]*entity.Message, error) {
	iter := r.query(replica, conversationID).Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to list messages", err)
		}
		m, err := decodeMessage(doc)
		if err != nil {
			logger.Warn("Skipping message %s: %v", doc.Ref.ID, err)
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (r *firestoreMessageRepository) Update(ctx context.Context, replica repository.Replica, conversationID, messageID string, patch repository.MessagePatch) error {
	var updates []firestore.Update
	for uid, at := range patch.ReadBy {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"readBy", uid}, Value: at})
	}
	for uid, at := range patch.DeliveredTo {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"deliveredTo", uid}, Value: at})
	}
	if patch.Status != nil {
		updates = append(updates, firestore.Update{Path: "status", Value: *patch.Status})
	}
	if patch.Text != nil {
		updates = append(updates, firestore.Update{Path: "text", Value: *patch.Text})
	}
	if patch.EditedAt != nil {
		updates = append(updates,
			firestore.Update{Path: "isEdited", Value: true},
			firestore.Update{Path: "editedAt", Value: *patch.EditedAt})
	}
	if patch.DeletedAt != nil {
		updates = append(updates,
			firestore.Update{Path: "isDeleted", Value: true},
			firestore.Update{Path: "deletedAt", Value: *patch.DeletedAt})
	}
	for emoji, reactions := range patch.Reactions {
		var value interface{} = firestore.Delete
		if len(reactions) > 0 {
			value = reactions
		}
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{"reactions", emoji}, Value: value})
	}
	if len(updates) == 0 {
		return nil
	}

	_, err := r.doc(replica, conversationID, messageID).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Internal("Failed to update message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) Subscribe(ctx context.Context, replica repository.Replica, conversationID string, onChange func([]*entity.Message), onError func(error)) repository.Unsubscribe {
	name := "messages:" + string(replica) + ":" + conversationID
	return listenQuery(ctx, r.query(replica, conversationID), name, func(snap *firestore.QuerySnapshot) error {
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return err
		}
		onChange(decodeMessages(docs))
		return nil
	}, onError)
}

func decodeMessage(doc *firestore.DocumentSnapshot) (*entity.Message, error) {
	var m entity.Message
	if err := doc.DataTo(&m); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	if m.ID == "" {
		m.ID = doc.Ref.ID
	}
	return &m, nil
}

// decodeMessages skips unreadable documents instead of failing the batch.
func decodeMessages(docs []*firestore.DocumentSnapshot) []*entity.Message {
	out := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		m, err := decodeMessage(doc)
		if err != nil {
			logger.Warn("Skipping message %s: %v", doc.Ref.ID, err)
			continue
		}
		out = append(out, m)
	}
	return out
}
