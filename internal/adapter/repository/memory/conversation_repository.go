package memory

import (
	"context"
	"sort"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
)

type ConversationRepository struct {
	s *Store
}

func (r *ConversationRepository) Create(ctx context.Context, conversation *entity.Conversation) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if err := s.fault(OpConversationCreate); err != nil {
		return errors.Internal("Failed to create conversation", err)
	}
	if _, exists := s.conversations[conversation.ID]; exists {
		return errors.Conflict("Conversation already exists", nil)
	}

	now := s.serverTime()
	stored := conversation.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.UnreadCount == nil {
		stored.UnreadCount = make(map[string]int)
	}
	s.conversations[stored.ID] = stored

	conversation.CreatedAt = stored.CreatedAt
	conversation.UpdatedAt = stored.UpdatedAt
	s.broadcast(participantTopics(stored)...)
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return c.Clone(), nil
}

func (r *ConversationRepository) FindByPair(ctx context.Context, clientID, freelancerID string) (*entity.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var found *entity.Conversation
	for _, c := range r.s.conversations {
		if c.ClientID != clientID || c.FreelancerID != freelancerID {
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
	return found.Clone(), nil
}

func (r *ConversationRepository) Update(ctx context.Context, id string, patch repository.ConversationPatch) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if err := s.fault(OpConversationUpdate); err != nil {
		return errors.Internal("Failed to update conversation", err)
	}
	c, ok := s.conversations[id]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}

	if patch.LastMessage != nil {
		lm := *patch.LastMessage
		c.LastMessage = &lm
	}
	if c.UnreadCount == nil {
		c.UnreadCount = make(map[string]int)
	}
	for _, uid := range patch.UnreadReset {
		c.UnreadCount[uid] = 0
	}
	for _, uid := range patch.UnreadIncrement {
		c.UnreadCount[uid]++
	}
	if patch.Pinned != nil {
		c.Pinned = *patch.Pinned
	}
	if len(patch.Archived) > 0 {
		if c.IsArchived == nil {
			c.IsArchived = make(map[string]bool)
		}
		for uid, v := range patch.Archived {
			c.IsArchived[uid] = v
		}
	}
	if len(patch.Muted) > 0 {
		if c.IsMuted == nil {
			c.IsMuted = make(map[string]bool)
		}
		for uid, v := range patch.Muted {
			c.IsMuted[uid] = v
		}
	}
	if patch.ProposalID != nil {
		c.ProposalID = *patch.ProposalID
	}
	c.UpdatedAt = s.serverTime()

	s.broadcast(participantTopics(c)...)
	return nil
}

func (r *ConversationRepository) SubscribeByParticipant(ctx context.Context, userID string, onChange func([]*entity.Conversation), onError func(error)) repository.Unsubscribe {
	snapshot := func(s *Store) func() {
		out := make([]*entity.Conversation, 0)
		for _, c := range s.conversations {
			if c.HasParticipant(userID) {
				out = append(out, c.Clone())
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return func() { onChange(out) }
	}
	return r.s.subscribe(ctx, conversationTopic(userID), OpConversationSubscribe, snapshot, onError)
}
