package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
)

const presenceCollection = "presence"

type firestorePresenceRepository struct {
	client *firestore.Client
}

func NewFirestorePresenceRepository(client *firestore.Client) repository.PresenceRepository {
	return &firestorePresenceRepository{
		client: client,
	}
}

func (r *firestorePresenceRepository) Upsert(ctx context.Context, presence *entity.Presence) error {
	data := map[string]interface{}{
		"userId":     presence.UserID,
		"status":     presence.Status,
		"lastActive": presence.LastActive,
	}
	if presence.Device != nil {
		data["device"] = presence.Device
	}

	_, err := r.client.Collection(presenceCollection).Doc(presence.UserID).Set(ctx, data, firestore.MergeAll)
	if err != nil {
		return errors.Internal("Failed to update presence", err)
	}
	return nil
}

func (r *firestorePresenceRepository) SetTyping(ctx context.Context, userID string, typing *entity.TypingIndicator) error {
	data := map[string]interface{}{
		"userId":   userID,
		"typingIn": typing,
	}
	_, err := r.client.Collection(presenceCollection).Doc(userID).Set(ctx, data, firestore.MergeAll)
	if err != nil {
		return errors.Internal("Failed to update typing state", err)
	}
	return nil
}

func (r *firestorePresenceRepository) Get(ctx context.Context, userID string) (*entity.Presence, error) {
	doc, err := r.client.Collection(presenceCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Presence", err)
		}
		return nil, errors.Internal("Failed to get presence", err)
	}
	return decodePresence(doc)
}

func (r *firestorePresenceRepository) Subscribe(ctx context.Context, userID string, onChange func(*entity.Presence), onError func(error)) repository.Unsubscribe {
	ref := r.client.Collection(presenceCollection).Doc(userID)
	return listenDocument(ctx, ref, "presence:"+userID, func(snap *firestore.DocumentSnapshot) error {
		if !snap.Exists() {
			onChange(nil)
			return nil
		}
		p, err := decodePresence(snap)
		if err != nil {
			return err
		}
		onChange(p)
		return nil
	}, onError)
}

func decodePresence(doc *firestore.DocumentSnapshot) (*entity.Presence, error) {
	var p entity.Presence
	if err := doc.DataTo(&p); err != nil {
		return nil, errors.Internal("Failed to parse presence data", err)
	}
	if p.UserID == "" {
		p.UserID = doc.Ref.ID
	}
	return &p, nil
}
