package usecase

import (
	"context"
	"time"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
)

const DefaultTypingWindow = 6 * time.Second

// PresenceTracker owns online status and typing signals.
type PresenceTracker struct {
	repo         repository.PresenceRepository
	typingWindow time.Duration
	now          func() time.Time
}

func NewPresenceTracker(repo repository.PresenceRepository, typingWindow time.Duration) *PresenceTracker {
	if typingWindow <= 0 {
		typingWindow = DefaultTypingWindow
	}
	return &PresenceTracker{
		repo:         repo,
		typingWindow: typingWindow,
		now:          time.Now,
	}
}

func (t *PresenceTracker) TypingWindow() time.Duration {
	return t.typingWindow
}

func (t *PresenceTracker) SetStatus(ctx context.Context, userID string, status entity.PresenceStatus, device *entity.DeviceInfo) error {
	if userID == "" {
		return errors.BadRequest("User ID is required", nil)
	}
	if !status.Valid() {
		return errors.BadRequest("Invalid presence status", nil)
	}

	err := t.repo.Upsert(ctx, &entity.Presence{
		UserID:     userID,
		Status:     status,
		LastActive: t.now(),
		Device:     device,
	})
	if err != nil {
		logger.Error("SetStatus Error: %v", err)
		return err
	}
	return nil
}

// Heartbeat refreshes lastActive. Users without a live status come back online.
func (t *PresenceTracker) Heartbeat(ctx context.Context, userID string) error {
	status := entity.PresenceOnline
	current, err := t.repo.Get(ctx, userID)
	if err != nil && !errors.IsNotFound(err) {
		return err
	}
	if current != nil && current.Status != entity.PresenceOffline && current.Status.Valid() {
		status = current.Status
	}
	return t.SetStatus(ctx, userID, status, nil)
}

// GoOffline marks the user offline and drops any typing signal.
func (t *PresenceTracker) GoOffline(ctx context.Context, userID string) error {
	if err := t.SetStatus(ctx, userID, entity.PresenceOffline, nil); err != nil {
		return err
	}
	return t.ClearTyping(ctx, userID)
}

func (t *PresenceTracker) SetTyping(ctx context.Context, userID, conversationID string) error {
	if conversationID == "" {
		return errors.BadRequest("Conversation ID is required", nil)
	}
	return t.repo.SetTyping(ctx, userID, &entity.TypingIndicator{
		ConversationID: conversationID,
		Timestamp:      t.now(),
	})
}

func (t *PresenceTracker) ClearTyping(ctx context.Context, userID string) error {
	return t.repo.SetTyping(ctx, userID, nil)
}

// IsTyping applies the recency window to a presence record.
func (t *PresenceTracker) IsTyping(p *entity.Presence, conversationID string) bool {
	return p.IsTypingIn(conversationID, t.now(), t.typingWindow)
}

func (t *PresenceTracker) Get(ctx context.Context, userID string) (*entity.Presence, error) {
	p, err := t.repo.Get(ctx, userID)
	if errors.IsNotFound(err) {
		return &entity.Presence{UserID: userID, Status: entity.PresenceOffline}, nil
	}
	return p, err
}

// Watch streams presence for one user. A missing record is reported as offline.
func (t *PresenceTracker) Watch(ctx context.Context, userID string, onChange func(*entity.Presence), onError func(error)) repository.Unsubscribe {
	return t.repo.Subscribe(ctx, userID, func(p *entity.Presence) {
		if p == nil {
			p = &entity.Presence{UserID: userID, Status: entity.PresenceOffline}
		}
		onChange(p)
	}, func(err error) {
		logger.Warn("Presence subscription Error for %s: %v", userID, err)
		if onError != nil {
			onError(errors.SubscriptionFailed("presence", err))
		}
	})
}
