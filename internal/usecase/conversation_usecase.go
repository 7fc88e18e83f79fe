package usecase

import (
	"context"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
)

type ConversationUseCase struct {
	conversations repository.ConversationRepository
	users         repository.UserRepository
}

func NewConversationUseCase(conversations repository.ConversationRepository, users repository.UserRepository) *ConversationUseCase {
	return &ConversationUseCase{
		conversations: conversations,
		users:         users,
	}
}

type FindOrCreateInput struct {
	ClientID     string
	FreelancerID string
	ProposalID   string
	ProjectID    string
}

// PairConversationID is the document id of the one to one conversation
// between a client and a freelancer. Both sides derive the same id.
func PairConversationID(clientID, freelancerID string) string {
	return clientID + "_" + freelancerID
}

// FindOrCreate returns the client/freelancer conversation, retagging an
// existing one with the new proposal instead of creating a duplicate.
func (uc *ConversationUseCase) FindOrCreate(ctx context.Context, input FindOrCreateInput) (*entity.Conversation, bool, error) {
	if input.ClientID == "" || input.FreelancerID == "" {
		return nil, false, errors.BadRequest("Client and freelancer are required", nil)
	}
	if input.ClientID == input.FreelancerID {
		return nil, false, errors.BadRequest("Cannot start a conversation with yourself", nil)
	}

	existing, err := uc.conversations.FindByPair(ctx, input.ClientID, input.FreelancerID)
	if err == nil {
		conversation, err := uc.retag(ctx, existing, input)
		return conversation, false, err
	}
	if !errors.IsNotFound(err) {
		logger.Error("FindOrCreate Error: lookup failed: %v", err)
		return nil, false, err
	}

	conversation := &entity.Conversation{
		ID:           PairConversationID(input.ClientID, input.FreelancerID),
		Participants: []string{input.ClientID, input.FreelancerID},
		ClientID:     input.ClientID,
		FreelancerID: input.FreelancerID,
		Type:         entity.ConversationOneToOne,
		ProposalID:   input.ProposalID,
		ProjectID:    input.ProjectID,
		UnreadCount: map[string]int{
			input.ClientID:     0,
			input.FreelancerID: 0,
		},
	}

	err = uc.conversations.Create(ctx, conversation)
	if errors.Is(err, errors.CodeConflict) {
		// the other side created it first
		existing, err := uc.conversations.GetByID(ctx, conversation.ID)
		if err != nil {
			return nil, false, err
		}
		conversation, err := uc.retag(ctx, existing, input)
		return conversation, false, err
	}
	if err != nil {
		logger.Error("FindOrCreate Error: create failed: %v", err)
		return nil, false, err
	}

	logger.Info("Conversation %s created between client %s and freelancer %s", conversation.ID, input.ClientID, input.FreelancerID)
	return conversation, true, nil
}

func (uc *ConversationUseCase) retag(ctx context.Context, conversation *entity.Conversation, input FindOrCreateInput) (*entity.Conversation, error) {
	if input.ProposalID == "" || conversation.ProposalID == input.ProposalID {
		return conversation, nil
	}
	proposalID := input.ProposalID
	if err := uc.conversations.Update(ctx, conversation.ID, repository.ConversationPatch{ProposalID: &proposalID}); err != nil {
		logger.Error("FindOrCreate Error: retag of %s failed: %v", conversation.ID, err)
		return nil, err
	}
	conversation.ProposalID = proposalID
	return conversation, nil
}

// FindOrCreateBetween resolves which of the two users is the client from
// their profiles, so either side can initiate and both land on one conversation.
func (uc *ConversationUseCase) FindOrCreateBetween(ctx context.Context, userID, counterpartID, proposalID string) (*entity.Conversation, bool, error) {
	if userID == counterpartID {
		return nil, false, errors.BadRequest("Cannot start a conversation with yourself", nil)
	}
	profiles, err := uc.users.GetByIDs(ctx, []string{userID, counterpartID})
	if err != nil {
		return nil, false, err
	}
	if profiles[counterpartID] == nil {
		return nil, false, errors.NotFound("User", nil)
	}

	clientID, freelancerID := assignRoles(userID, counterpartID, roleOf(profiles[userID]), roleOf(profiles[counterpartID]))
	return uc.FindOrCreate(ctx, FindOrCreateInput{
		ClientID:     clientID,
		FreelancerID: freelancerID,
		ProposalID:   proposalID,
	})
}

func roleOf(u *entity.User) entity.UserRole {
	if u == nil {
		return ""
	}
	return u.Role
}

// assignRoles is symmetric in its arguments. Ties fall back to id order.
func assignRoles(a, b string, roleA, roleB entity.UserRole) (clientID, freelancerID string) {
	aClient := roleA == entity.RoleClient
	bClient := roleB == entity.RoleClient
	switch {
	case aClient && !bClient:
		return a, b
	case bClient && !aClient:
		return b, a
	}
	aFreelancer := roleA == entity.RoleFreelancer
	bFreelancer := roleB == entity.RoleFreelancer
	switch {
	case aFreelancer && !bFreelancer:
		return b, a
	case bFreelancer && !aFreelancer:
		return a, b
	}
	if a < b {
		return a, b
	}
	return b, a
}

// Get returns a conversation the user participates in.
func (uc *ConversationUseCase) Get(ctx context.Context, conversationID, userID string) (*entity.Conversation, error) {
	conversation, err := uc.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ConversationNotFound(conversationID, err)
		}
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, errors.ConversationNotFound(conversationID, nil)
	}
	return conversation, nil
}

func (uc *ConversationUseCase) SetPinned(ctx context.Context, conversationID, userID string, pinned bool) error {
	if _, err := uc.Get(ctx, conversationID, userID); err != nil {
		return err
	}
	return uc.conversations.Update(ctx, conversationID, repository.ConversationPatch{Pinned: &pinned})
}

func (uc *ConversationUseCase) SetArchived(ctx context.Context, conversationID, userID string, archived bool) error {
	if _, err := uc.Get(ctx, conversationID, userID); err != nil {
		return err
	}
	return uc.conversations.Update(ctx, conversationID, repository.ConversationPatch{Archived: map[string]bool{userID: archived}})
}

func (uc *ConversationUseCase) SetMuted(ctx context.Context, conversationID, userID string, muted bool) error {
	if _, err := uc.Get(ctx, conversationID, userID); err != nil {
		return err
	}
	return uc.conversations.Update(ctx, conversationID, repository.ConversationPatch{Muted: map[string]bool{userID: muted}})
}
