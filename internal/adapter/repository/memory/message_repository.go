package memory

import (
	"context"
	"time"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
)

type MessageRepository struct {
	s *Store
}

func (r *MessageRepository) Create(ctx context.Context, replica repository.Replica, message *entity.Message) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	op := OpMessageCreateSub
	if replica == repository.ReplicaFlat {
		op = OpMessageCreateFlat
	}
	if err := s.fault(op); err != nil {
		return errors.Internal("Failed to create message", err)
	}

	stored := message.Clone()
	if stored.Timestamp.IsZero() {
		stored.Timestamp = s.serverTime()
	}
	s.seq++
	sm := &storedMessage{msg: stored, seq: s.seq}

	switch replica {
	case repository.ReplicaFlat:
		s.flat[stored.ID] = sm
	default:
		bucket, ok := s.subcollection[stored.ConversationID]
		if !ok {
			bucket = make(map[string]*storedMessage)
			s.subcollection[stored.ConversationID] = bucket
		}
		bucket[stored.ID] = sm
	}

	s.broadcast(messageTopic(replica, stored.ConversationID))
	return nil
}

// lookup returns the stored replica of a message. Caller holds mu.
func (s *Store) lookup(replica repository.Replica, conversationID, messageID string) (*storedMessage, bool) {
	if replica == repository.ReplicaFlat {
		sm, ok := s.flat[messageID]
		if !ok || sm.msg.ConversationID != conversationID {
			return nil, false
		}
		return sm, true
	}
	sm, ok := s.subcollection[conversationID][messageID]
	return sm, ok
}

func (r *MessageRepository) GetByID(ctx context.Context, replica repository.Replica, conversationID, messageID string) (*entity.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sm, ok := r.s.lookup(replica, conversationID, messageID)
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	return sm.msg.Clone(), nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, replica repository.Replica, conversationID string) ([]*entity.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.collect(replica, conversationID), nil
}

// collect returns the ordered contents of one replica. Caller holds mu.
func (s *Store) collect(replica repository.Replica, conversationID string) []*entity.Message {
	var stored []*storedMessage
	if replica == repository.ReplicaFlat {
		for _, sm := range s.flat {
			if sm.msg.ConversationID == conversationID {
				stored = append(stored, sm)
			}
		}
	} else {
		for _, sm := range s.subcollection[conversationID] {
			stored = append(stored, sm)
		}
	}
	return sortedMessages(stored)
}

func (r *MessageRepository) Update(ctx context.Context, replica repository.Replica, conversationID, messageID string, patch repository.MessagePatch) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	op := OpMessageUpdateSub
	if replica == repository.ReplicaFlat {
		op = OpMessageUpdateFlat
	}
	if err := s.fault(op); err != nil {
		return errors.Internal("Failed to update message", err)
	}
	sm, ok := s.lookup(replica, conversationID, messageID)
	if !ok {
		return errors.NotFound("Message", nil)
	}

	applyMessagePatch(sm.msg, patch)
	s.broadcast(messageTopic(replica, conversationID))
	return nil
}

func applyMessagePatch(m *entity.Message, patch repository.MessagePatch) {
	if len(patch.ReadBy) > 0 {
		if m.ReadBy == nil {
			m.ReadBy = make(map[string]time.Time)
		}
		for uid, at := range patch.ReadBy {
			m.ReadBy[uid] = at
		}
	}
	if len(patch.DeliveredTo) > 0 {
		if m.DeliveredTo == nil {
			m.DeliveredTo = make(map[string]time.Time)
		}
		for uid, at := range patch.DeliveredTo {
			m.DeliveredTo[uid] = at
		}
	}
	if patch.Status != nil {
		m.Status = *patch.Status
	}
	if patch.Text != nil {
		m.Text = *patch.Text
	}
	if patch.EditedAt != nil {
		at := *patch.EditedAt
		m.IsEdited = true
		m.EditedAt = &at
	}
	if patch.DeletedAt != nil {
		at := *patch.DeletedAt
		m.IsDeleted = true
		m.DeletedAt = &at
	}
	for emoji, reactions := range patch.Reactions {
		if len(reactions) == 0 {
			delete(m.Reactions, emoji)
			continue
		}
		if m.Reactions == nil {
			m.Reactions = make(map[string][]entity.Reaction)
		}
		m.Reactions[emoji] = append([]entity.Reaction(nil), reactions...)
	}
}

func (r *MessageRepository) Subscribe(ctx context.Context, replica repository.Replica, conversationID string, onChange func([]*entity.Message), onError func(error)) repository.Unsubscribe {
	op := OpMessageSubscribeSub
	if replica == repository.ReplicaFlat {
		op = OpMessageSubscribeFlat
	}
	snapshot := func(s *Store) func() {
		out := s.collect(replica, conversationID)
		return func() { onChange(out) }
	}
	return r.s.subscribe(ctx, messageTopic(replica, conversationID), op, snapshot, onError)
}

// SeedMessage writes one replica directly, bypassing faults and counters.
// Tests use it to build divergent replicas.
func (s *Store) SeedMessage(replica repository.Replica, message *entity.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := message.Clone()
	s.seq++
	sm := &storedMessage{msg: stored, seq: s.seq}
	if replica == repository.ReplicaFlat {
		s.flat[stored.ID] = sm
	} else {
		if s.subcollection[stored.ConversationID] == nil {
			s.subcollection[stored.ConversationID] = make(map[string]*storedMessage)
		}
		s.subcollection[stored.ConversationID][stored.ID] = sm
	}
	s.broadcast(messageTopic(replica, stored.ConversationID))
}
