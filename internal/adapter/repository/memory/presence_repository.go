package memory

import (
	"context"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
)

type PresenceRepository struct {
	s *Store
}

func (r *PresenceRepository) Upsert(ctx context.Context, presence *entity.Presence) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if err := s.fault(OpPresenceWrite); err != nil {
		return errors.Internal("Failed to update presence", err)
	}

	current, ok := s.presence[presence.UserID]
	if !ok {
		current = &entity.Presence{UserID: presence.UserID}
		s.presence[presence.UserID] = current
	}
	current.Status = presence.Status
	current.LastActive = presence.LastActive
	if presence.Device != nil {
		d := *presence.Device
		current.Device = &d
	}

	s.broadcast(presenceTopic(presence.UserID))
	return nil
}

func (r *PresenceRepository) SetTyping(ctx context.Context, userID string, typing *entity.TypingIndicator) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if err := s.fault(OpPresenceWrite); err != nil {
		return errors.Internal("Failed to update typing state", err)
	}

	current, ok := s.presence[userID]
	if !ok {
		current = &entity.Presence{UserID: userID, Status: entity.PresenceOnline}
		s.presence[userID] = current
	}
	if typing == nil {
		current.TypingIn = nil
	} else {
		t := *typing
		current.TypingIn = &t
	}

	s.broadcast(presenceTopic(userID))
	return nil
}

func (r *PresenceRepository) Get(ctx context.Context, userID string) (*entity.Presence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.presence[userID]
	if !ok {
		return nil, errors.NotFound("Presence", nil)
	}
	return p.Clone(), nil
}

// Subscribe delivers nil while the user has no presence record.
func (r *PresenceRepository) Subscribe(ctx context.Context, userID string, onChange func(*entity.Presence), onError func(error)) repository.Unsubscribe {
	snapshot := func(s *Store) func() {
		p := s.presence[userID].Clone()
		return func() { onChange(p) }
	}
	return r.s.subscribe(ctx, presenceTopic(userID), OpPresenceSubscribe, snapshot, onError)
}
