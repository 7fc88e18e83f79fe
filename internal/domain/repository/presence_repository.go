package repository

import (
	"context"

	"freelancehub/internal/domain/entity"
)

type PresenceRepository interface {
	// Upsert writes status, lastActive and device. TypingIn is left alone.
	Upsert(ctx context.Context, presence *entity.Presence) error
	// SetTyping writes typingIn; nil clears it.
	SetTyping(ctx context.Context, userID string, typing *entity.TypingIndicator) error
	Get(ctx context.Context, userID string) (*entity.Presence, error)
	Subscribe(ctx context.Context, userID string, onChange func(*entity.Presence), onError func(error)) Unsubscribe
}
