package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"freelancehub/internal/adapter/repository/memory"
	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/service"

	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fixture struct {
	store         *memory.Store
	conversations *memory.ConversationRepository
	messages      *memory.MessageRepository
	users         *memory.UserRepository
	presenceRepo  *memory.PresenceRepository
	messageStore  *MessageStore
	finder        *ConversationUseCase
	presence      *PresenceTracker
}

func newFixture(t *testing.T, uploader service.AttachmentUploader) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:         store,
		conversations: store.Conversations(),
		messages:      store.Messages(),
		users:         store.Users(),
		presenceRepo:  store.Presence(),
	}
	f.messageStore = NewMessageStore(f.conversations, f.messages, NewAttachmentBridge(uploader, 1<<20))
	f.finder = NewConversationUseCase(f.conversations, f.users)
	f.presence = NewPresenceTracker(f.presenceRepo, time.Second)

	store.PutUser(&entity.User{ID: "alice", DisplayName: "Alice", PhotoURL: "https://img/alice.png", Role: entity.RoleFreelancer})
	store.PutUser(&entity.User{ID: "bob", FirstName: "Bob", LastName: "Client", Role: entity.RoleClient})
	store.PutUser(&entity.User{ID: "carol", DisplayName: "Carol", Role: entity.RoleClient})
	store.PutUser(&entity.User{ID: "dave", DisplayName: "Dave", Role: entity.RoleFreelancer})
	return f
}

// conversation creates a one to one conversation with client and freelancer.
func (f *fixture) conversation(t *testing.T, id, clientID, freelancerID string) *entity.Conversation {
	t.Helper()
	c := &entity.Conversation{
		ID:           id,
		Participants: []string{clientID, freelancerID},
		ClientID:     clientID,
		FreelancerID: freelancerID,
		Type:         entity.ConversationOneToOne,
		UnreadCount:  map[string]int{},
	}
	require.NoError(t, f.conversations.Create(context.Background(), c))
	return c
}

type streamRecorder struct {
	mu      sync.Mutex
	batches [][]*entity.Message
	errs    []error
}

func (r *streamRecorder) onChange(messages []*entity.Message) {
	r.mu.Lock()
	r.batches = append(r.batches, messages)
	r.mu.Unlock()
}

func (r *streamRecorder) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *streamRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *streamRecorder) latest() []*entity.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil
	}
	return r.batches[len(r.batches)-1]
}

func (r *streamRecorder) failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *streamRecorder) all() [][]*entity.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]*entity.Message(nil), r.batches...)
}

type fakeAuth struct {
	mu    sync.Mutex
	fn    func(service.AuthState)
	state *service.AuthState
}

func authenticatedAs(userID string) *fakeAuth {
	return &fakeAuth{state: &service.AuthState{UserID: userID, Authenticated: true}}
}

func (a *fakeAuth) OnAuthStateChanged(fn func(service.AuthState)) func() {
	a.mu.Lock()
	a.fn = fn
	state := a.state
	a.mu.Unlock()
	if state != nil {
		go fn(*state)
	}
	return func() {
		a.mu.Lock()
		a.fn = nil
		a.mu.Unlock()
	}
}

func (a *fakeAuth) emit(state service.AuthState) {
	a.mu.Lock()
	fn := a.fn
	a.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func ids(messages []*entity.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}
