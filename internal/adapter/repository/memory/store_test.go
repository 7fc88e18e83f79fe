package memory

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder[T any] struct {
	mu   sync.Mutex
	got  []T
	errs []error
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	r.got = append(r.got, v)
	r.mu.Unlock()
}

func (r *recorder[T]) fail(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recorder[T]) last() T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.got[len(r.got)-1]
}

func TestConversationSubscriptionFiltersByParticipant(t *testing.T) {
	store := NewStore()
	repo := store.Conversations()
	ctx := context.Background()

	rec := &recorder[[]*entity.Conversation]{}
	unsubscribe := repo.SubscribeByParticipant(ctx, "alice", rec.add, rec.fail)
	defer unsubscribe()

	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.last())

	require.NoError(t, repo.Create(ctx, &entity.Conversation{ID: "c1", Participants: []string{"alice", "bob"}}))
	require.NoError(t, repo.Create(ctx, &entity.Conversation{ID: "c2", Participants: []string{"carol", "bob"}}))

	require.Eventually(t, func() bool { return rec.len() == 2 }, time.Second, 5*time.Millisecond)
	require.Len(t, rec.last(), 1)
	assert.Equal(t, "c1", rec.last()[0].ID)

	// c2 does not involve alice, so no extra delivery
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, rec.len())
}

func TestConversationCreateConflict(t *testing.T) {
	store := NewStore()
	repo := store.Conversations()
	ctx := context.Background()

	conv := &entity.Conversation{ID: "c1", Participants: []string{"a", "b"}}
	require.NoError(t, repo.Create(ctx, conv))
	assert.False(t, conv.CreatedAt.IsZero())

	err := repo.Create(ctx, &entity.Conversation{ID: "c1"})
	assert.True(t, errors.Is(err, errors.CodeConflict))
}

func TestConversationUpdatePatch(t *testing.T) {
	store := NewStore()
	repo := store.Conversations()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &entity.Conversation{
		ID:           "c1",
		Participants: []string{"a", "b"},
		UnreadCount:  map[string]int{"a": 3},
	}))

	pinned := true
	proposal := "p9"
	require.NoError(t, repo.Update(ctx, "c1", repository.ConversationPatch{
		LastMessage:     &entity.LastMessage{Text: "hi", SenderID: "a"},
		UnreadReset:     []string{"a"},
		UnreadIncrement: []string{"b"},
		Pinned:          &pinned,
		Archived:        map[string]bool{"b": true},
		Muted:           map[string]bool{"a": true},
		ProposalID:      &proposal,
	}))
	require.NoError(t, repo.Update(ctx, "c1", repository.ConversationPatch{UnreadIncrement: []string{"b"}}))

	got, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadFor("a"))
	assert.Equal(t, 2, got.UnreadFor("b"))
	assert.Equal(t, "hi", got.LastMessage.Text)
	assert.True(t, got.Pinned)
	assert.True(t, got.ArchivedFor("b"))
	assert.True(t, got.MutedFor("a"))
	assert.Equal(t, "p9", got.ProposalID)

	err = repo.Update(ctx, "missing", repository.ConversationPatch{})
	assert.True(t, errors.IsNotFound(err))
}

func TestFindByPairIgnoresProposal(t *testing.T) {
	store := NewStore()
	repo := store.Conversations()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &entity.Conversation{
		ID: "c1", ClientID: "client", FreelancerID: "free", ProposalID: "p1",
		Participants: []string{"client", "free"}, Type: entity.ConversationOneToOne,
	}))

	got, err := repo.FindByPair(ctx, "client", "free")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)

	_, err = repo.FindByPair(ctx, "free", "client")
	assert.True(t, errors.IsNotFound(err))
}

func TestMessageSubscriptionOrdersByTimestamp(t *testing.T) {
	store := NewStore()
	repo := store.Messages()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	rec := &recorder[[]*entity.Message]{}
	unsubscribe := repo.Subscribe(ctx, repository.ReplicaSubcollection, "c1", rec.add, rec.fail)
	defer unsubscribe()

	require.NoError(t, repo.Create(ctx, repository.ReplicaSubcollection, &entity.Message{ID: "m2", ConversationID: "c1", Timestamp: base.Add(time.Second)}))
	require.NoError(t, repo.Create(ctx, repository.ReplicaSubcollection, &entity.Message{ID: "m1", ConversationID: "c1", Timestamp: base}))
	require.NoError(t, repo.Create(ctx, repository.ReplicaFlat, &entity.Message{ID: "m1", ConversationID: "c1", Timestamp: base}))

	require.Eventually(t, func() bool { return rec.len() == 3 }, time.Second, 5*time.Millisecond)
	last := rec.last()
	require.Len(t, last, 2)
	assert.Equal(t, "m1", last[0].ID)
	assert.Equal(t, "m2", last[1].ID)
}

func TestMessageUpdateAppliesPatch(t *testing.T) {
	store := NewStore()
	repo := store.Messages()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, repository.ReplicaFlat, &entity.Message{ID: "m1", ConversationID: "c1", Text: "hello"}))

	now := time.Now()
	read := entity.StatusRead
	text := "edited"
	require.NoError(t, repo.Update(ctx, repository.ReplicaFlat, "c1", "m1", repository.MessagePatch{
		ReadBy:    map[string]time.Time{"bob": now},
		Status:    &read,
		Text:      &text,
		EditedAt:  &now,
		Reactions: map[string][]entity.Reaction{"👍": {{UserID: "bob", Timestamp: now}}},
	}))

	got, err := repo.GetByID(ctx, repository.ReplicaFlat, "c1", "m1")
	require.NoError(t, err)
	assert.True(t, got.ReadByUser("bob"))
	assert.Equal(t, entity.StatusRead, got.Status)
	assert.Equal(t, "edited", got.Text)
	assert.True(t, got.IsEdited)
	assert.Len(t, got.Reactions["👍"], 1)

	require.NoError(t, repo.Update(ctx, repository.ReplicaFlat, "c1", "m1", repository.MessagePatch{
		Reactions: map[string][]entity.Reaction{"👍": nil},
	}))
	got, _ = repo.GetByID(ctx, repository.ReplicaFlat, "c1", "m1")
	assert.NotContains(t, got.Reactions, "👍")

	_, err = repo.GetByID(ctx, repository.ReplicaFlat, "other", "m1")
	assert.True(t, errors.IsNotFound(err))
}

func TestFaultInjection(t *testing.T) {
	store := NewStore()
	repo := store.Messages()
	ctx := context.Background()
	boom := stderrors.New("boom")

	store.Fail(OpMessageCreateFlat, boom)
	err := repo.Create(ctx, repository.ReplicaFlat, &entity.Message{ID: "m1", ConversationID: "c1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, repo.Create(ctx, repository.ReplicaSubcollection, &entity.Message{ID: "m1", ConversationID: "c1"}))

	store.Heal(OpMessageCreateFlat)
	assert.NoError(t, repo.Create(ctx, repository.ReplicaFlat, &entity.Message{ID: "m1", ConversationID: "c1"}))
	assert.Equal(t, int64(3), store.Writes())

	store.Fail(OpMessageSubscribeFlat, boom)
	rec := &recorder[[]*entity.Message]{}
	unsubscribe := repo.Subscribe(ctx, repository.ReplicaFlat, "c1", rec.add, rec.fail)
	defer unsubscribe()
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.errs) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, rec.len())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	store := NewStore()
	repo := store.Presence()
	ctx, cancel := context.WithCancel(context.Background())

	rec := &recorder[*entity.Presence]{}
	repo.Subscribe(ctx, "alice", rec.add, rec.fail)
	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, rec.last())

	cancel()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.Upsert(context.Background(), &entity.Presence{UserID: "alice", Status: entity.PresenceOnline}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.len())
}

func TestPresenceTypingIsIndependentOfStatus(t *testing.T) {
	store := NewStore()
	repo := store.Presence()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &entity.Presence{UserID: "alice", Status: entity.PresenceAway}))
	require.NoError(t, repo.SetTyping(ctx, "alice", &entity.TypingIndicator{ConversationID: "c1", Timestamp: time.Now()}))
	require.NoError(t, repo.Upsert(ctx, &entity.Presence{UserID: "alice", Status: entity.PresenceOnline}))

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, entity.PresenceOnline, got.Status)
	require.NotNil(t, got.TypingIn)
	assert.Equal(t, "c1", got.TypingIn.ConversationID)

	require.NoError(t, repo.SetTyping(ctx, "alice", nil))
	got, _ = repo.Get(ctx, "alice")
	assert.Nil(t, got.TypingIn)
}

func TestGetByIDsChunksLookups(t *testing.T) {
	store := NewStore()
	var ids []string
	for i := 0; i < 23; i++ {
		id := fmt.Sprintf("u%02d", i)
		store.PutUser(&entity.User{ID: id, DisplayName: id})
		ids = append(ids, id)
	}
	ids = append(ids, "ghost")

	got, err := store.Users().GetByIDs(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, got, 23)
	assert.NotContains(t, got, "ghost")
	assert.Equal(t, int64(3), store.LookupBatches())
}
