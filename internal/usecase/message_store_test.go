package usecase

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"freelancehub/internal/adapter/repository/memory"
	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/internal/domain/service"
	"freelancehub/internal/mocks"
	"freelancehub/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errBoom = stderrors.New("boom")

func file(name, contentType string) *entity.AttachmentFile {
	data := []byte("payload of " + name)
	return &entity.AttachmentFile{
		FileName:    name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Content:     bytes.NewReader(data),
	}
}

func TestSendTextMessage(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")

	rec := &streamRecorder{}
	unsubscribe := f.messageStore.Subscribe(ctx, "c1", SubscribeOptions{}, rec.onChange, rec.onError)
	defer unsubscribe()

	result, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "alice", Text: "Hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.MessageID)
	assert.False(t, result.PartialFailure())
	assert.Equal(t, entity.StatusSent, result.Message.Status)

	require.Eventually(t, func() bool { return len(rec.latest()) == 1 }, waitFor, tick)
	msg := rec.latest()[0]
	assert.Equal(t, result.MessageID, msg.ID)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, entity.SenderFreelancer, msg.SenderType)
	assert.Equal(t, entity.MessageText, msg.Type)
	assert.Equal(t, entity.StatusSent, msg.Status)

	conv, err := f.conversations.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadFor("bob"))
	assert.Equal(t, 0, conv.UnreadFor("alice"))
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, "Hello", conv.LastMessage.Text)
	assert.Equal(t, "alice", conv.LastMessage.SenderID)

	// both replicas carry the same id
	sub, err := f.messages.GetByID(ctx, repository.ReplicaSubcollection, "c1", result.MessageID)
	require.NoError(t, err)
	flat, err := f.messages.GetByID(ctx, repository.ReplicaFlat, "c1", result.MessageID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, flat.ID)
}

func TestSendRejectsEmptyDraftWithoutIO(t *testing.T) {
	f := newFixture(t, nil)
	f.conversation(t, "c1", "bob", "alice")
	before := f.store.Writes()

	_, err := f.messageStore.Send(context.Background(), "c1", &MessageDraft{SenderID: "alice", Text: "   "})
	assert.True(t, errors.Is(err, errors.CodeEmptyMessage))
	assert.Equal(t, before, f.store.Writes())
}

func TestSendLocationWithoutText(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")

	result, err := f.messageStore.Send(ctx, "c1", &MessageDraft{
		SenderID: "bob",
		Location: &entity.Location{Latitude: -6.2, Longitude: 106.8, Address: "Jakarta"},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.MessageLocation, result.Message.Type)

	stored, err := f.messages.GetByID(ctx, repository.ReplicaSubcollection, "c1", result.MessageID)
	require.NoError(t, err)
	require.NotNil(t, stored.Location)
	assert.Equal(t, "Jakarta", stored.Location.Address)

	// a contact type with no card is still empty
	_, err = f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "bob", Type: entity.MessageContact})
	assert.True(t, errors.Is(err, errors.CodeEmptyMessage))
}

func TestSendToUnknownConversation(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.messageStore.Send(context.Background(), "nope", &MessageDraft{SenderID: "alice", Text: "hi"})
	assert.True(t, errors.Is(err, errors.CodeConversationNotFound))
}

func TestSendByNonParticipantIsForbidden(t *testing.T) {
	f := newFixture(t, nil)
	f.conversation(t, "c1", "bob", "alice")
	_, err := f.messageStore.Send(context.Background(), "c1", &MessageDraft{SenderID: "carol", Text: "hi"})
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestSendSwallowsFlatReplicaFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")
	f.store.Fail(memory.OpMessageCreateFlat, errBoom)

	rec := &streamRecorder{}
	unsubscribe := f.messageStore.Subscribe(ctx, "c1", SubscribeOptions{}, rec.onChange, rec.onError)
	defer unsubscribe()

	result, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "alice", Text: "still here"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.messageStore.Stats().FlatWriteFailures)

	// one sided replica is still visible
	require.Eventually(t, func() bool { return len(rec.latest()) == 1 }, waitFor, tick)
	assert.Equal(t, result.MessageID, rec.latest()[0].ID)
}

func TestSendSwallowsConversationUpdateFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.conversation(t, "c1", "bob", "alice")
	f.store.Fail(memory.OpConversationUpdate, errBoom)

	_, err := f.messageStore.Send(context.Background(), "c1", &MessageDraft{SenderID: "alice", Text: "hi"})
	require.NoError(t, err)

	stats := f.messageStore.Stats()
	assert.Equal(t, int64(1), stats.LastMessageFailures)
	assert.Equal(t, int64(1), stats.UnreadIncrementFailures)
}

func TestSendSubcollectionFailureIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.conversation(t, "c1", "bob", "alice")
	f.store.Fail(memory.OpMessageCreateSub, errBoom)

	_, err := f.messageStore.Send(context.Background(), "c1", &MessageDraft{SenderID: "alice", Text: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeSubcollectionWrite))
	assert.ErrorIs(t, err, errBoom)

	conv, _ := f.conversations.GetByID(context.Background(), "c1")
	assert.Nil(t, conv.LastMessage)
	assert.Equal(t, 0, conv.UnreadFor("bob"))
}

func TestSendCleansUpAttachmentsWhenNothingWasPersisted(t *testing.T) {
	ctrl := gomock.NewController(t)
	uploader := mocks.NewMockAttachmentUploader(ctrl)
	uploader.EXPECT().Upload(gomock.Any(), "c1", gomock.Any(), gomock.Any()).
		Return(&entity.Attachment{FileName: "a.png", FileType: "image/png", Path: "conversations/c1/a.png"}, nil)
	uploader.EXPECT().Delete(gomock.Any(), "conversations/c1/a.png").Return(nil)

	f := newFixture(t, uploader)
	f.conversation(t, "c1", "bob", "alice")
	f.store.Fail(memory.OpMessageCreateFlat, errBoom)
	f.store.Fail(memory.OpMessageCreateSub, errBoom)

	_, err := f.messageStore.Send(context.Background(), "c1", &MessageDraft{
		SenderID:    "alice",
		Attachments: []*entity.AttachmentFile{file("a.png", "image/png")},
	})
	assert.True(t, errors.Is(err, errors.CodeSubcollectionWrite))
}

func TestSendWithPartialAttachmentFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	uploader := mocks.NewMockAttachmentUploader(ctrl)
	uploader.EXPECT().Upload(gomock.Any(), "c1", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, f *entity.AttachmentFile, _ service.ProgressFunc) (*entity.Attachment, error) {
			if f.FileName == "broken.pdf" {
				return nil, errBoom
			}
			return &entity.Attachment{FileName: f.FileName, FileType: f.ContentType, FileURL: "https://cdn/" + f.FileName, Path: "p/" + f.FileName}, nil
		}).Times(3)

	f := newFixture(t, uploader)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")

	result, err := f.messageStore.Send(ctx, "c1", &MessageDraft{
		SenderID: "alice",
		Attachments: []*entity.AttachmentFile{
			file("photo.jpg", "image/jpeg"),
			file("broken.pdf", "application/pdf"),
			file("notes.txt", "text/plain"),
		},
	})
	require.NoError(t, err)
	assert.True(t, result.PartialFailure())
	require.Len(t, result.FailedAttachments, 1)
	assert.Equal(t, "broken.pdf", result.FailedAttachments[0].FileName)

	stored, err := f.messages.GetByID(ctx, repository.ReplicaSubcollection, "c1", result.MessageID)
	require.NoError(t, err)
	require.Len(t, stored.Attachments, 2)
	assert.Equal(t, "photo.jpg", stored.Attachments[0].FileName)
	assert.Equal(t, "notes.txt", stored.Attachments[1].FileName)
	assert.Equal(t, entity.MessageImage, stored.Type)
}

func TestSendFailsWhenEveryAttachmentFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	uploader := mocks.NewMockAttachmentUploader(ctrl)
	uploader.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errBoom).Times(3)

	f := newFixture(t, uploader)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")
	before := f.store.Writes()

	_, err := f.messageStore.Send(ctx, "c1", &MessageDraft{
		SenderID:    "alice",
		Text:        "see attached",
		Attachments: []*entity.AttachmentFile{file("a.png", "image/png"), file("b.png", "image/png"), file("c.png", "image/png")},
	})
	assert.True(t, errors.Is(err, errors.CodeAttachmentUpload))
	assert.Equal(t, before, f.store.Writes())

	persisted, _ := f.messages.ListByConversation(ctx, repository.ReplicaSubcollection, "c1")
	assert.Empty(t, persisted)
}

func TestSendReplySetsThreadingFields(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")

	first, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "bob", Text: "question"})
	require.NoError(t, err)
	reply, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "alice", Text: "answer", ReplyToMessageID: first.MessageID})
	require.NoError(t, err)

	assert.True(t, reply.Message.IsReply)
	assert.Equal(t, first.MessageID, reply.Message.ReplyToMessageID)
	assert.Equal(t, entity.SenderClient, first.Message.SenderType)
}

func TestSubscribeReconcilesReplicasLastWriteWins(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	f.store.SeedMessage(repository.ReplicaSubcollection, &entity.Message{ID: "m1", ConversationID: "c1", Text: "old", Timestamp: t0})
	f.store.SeedMessage(repository.ReplicaFlat, &entity.Message{ID: "m1", ConversationID: "c1", Text: "new", Timestamp: t0.Add(time.Second)})
	f.store.SeedMessage(repository.ReplicaSubcollection, &entity.Message{ID: "m2", ConversationID: "c1", Text: "canonical", Timestamp: t0.Add(2 * time.Second)})
	f.store.SeedMessage(repository.ReplicaFlat, &entity.Message{ID: "m2", ConversationID: "c1", Text: "same time", Timestamp: t0.Add(2 * time.Second)})
	f.store.SeedMessage(repository.ReplicaFlat, &entity.Message{ID: "m0", ConversationID: "c1", Text: "flat only", Timestamp: t0.Add(-time.Second)})

	rec := &streamRecorder{}
	unsubscribe := f.messageStore.Subscribe(ctx, "c1", SubscribeOptions{}, rec.onChange, rec.onError)
	defer unsubscribe()

	require.Eventually(t, func() bool { return rec.count() > 0 }, waitFor, tick)
	merged := rec.latest()
	require.Equal(t, []string{"m0", "m1", "m2"}, ids(merged))
	assert.Equal(t, "flat only", merged[0].Text)
	assert.Equal(t, "new", merged[1].Text)
	assert.Equal(t, "canonical", merged[2].Text)
}

func TestSubscribeNeverPublishesBeforeBothReplicas(t *testing.T) {
	repo := newGatedMessages()
	store := NewMessageStore(nil, repo, nil)

	rec := &streamRecorder{}
	unsubscribe := store.Subscribe(context.Background(), "c1", SubscribeOptions{}, rec.onChange, rec.onError)
	defer unsubscribe()

	repo.deliver(repository.ReplicaSubcollection, []*entity.Message{{ID: "m1", ConversationID: "c1", Timestamp: time.Now()}})
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	// an empty batch still counts as delivered
	repo.deliver(repository.ReplicaFlat, nil)
	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)
	assert.Equal(t, []string{"m1"}, ids(rec.latest()))
}

func TestSubscribeErrorOpensMergeGate(t *testing.T) {
	repo := newGatedMessages()
	store := NewMessageStore(nil, repo, nil)

	rec := &streamRecorder{}
	unsubscribe := store.Subscribe(context.Background(), "c1", SubscribeOptions{}, rec.onChange, rec.onError)
	defer unsubscribe()

	repo.deliver(repository.ReplicaSubcollection, []*entity.Message{{ID: "m1", ConversationID: "c1"}})
	repo.fail(repository.ReplicaFlat, errBoom)

	require.Eventually(t, func() bool { return rec.count() == 1 }, waitFor, tick)
	require.Len(t, rec.failures(), 1)
	assert.True(t, errors.Is(rec.failures()[0], errors.CodeSubscriptionFailed))
}

func TestSubscribePublishesMonotonicTimestamps(t *testing.T) {
	repo := newGatedMessages()
	store := NewMessageStore(nil, repo, nil)
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := &streamRecorder{}
	unsubscribe := store.Subscribe(context.Background(), "c1", SubscribeOptions{}, rec.onChange, rec.onError)
	defer unsubscribe()

	repo.deliver(repository.ReplicaFlat, []*entity.Message{
		{ID: "b", Timestamp: t0.Add(3 * time.Second)},
		{ID: "a", Timestamp: t0.Add(time.Second)},
	})
	repo.deliver(repository.ReplicaSubcollection, []*entity.Message{
		{ID: "c", Timestamp: t0.Add(2 * time.Second)},
		{ID: "d", Timestamp: t0.Add(2 * time.Second)},
	})
	repo.deliver(repository.ReplicaSubcollection, []*entity.Message{
		{ID: "c", Timestamp: t0.Add(2 * time.Second)},
		{ID: "d", Timestamp: t0.Add(2 * time.Second)},
		{ID: "e", Timestamp: t0},
	})

	require.Eventually(t, func() bool { return rec.count() == 2 }, waitFor, tick)
	for _, batch := range rec.all() {
		for i := 1; i < len(batch); i++ {
			assert.False(t, batch[i].Timestamp.Before(batch[i-1].Timestamp))
		}
	}
	// equal timestamps keep first seen order
	assert.Equal(t, []string{"e", "a", "c", "d", "b"}, ids(rec.latest()))
}

func TestUnsubscribeStopsMergedStream(t *testing.T) {
	repo := newGatedMessages()
	store := NewMessageStore(nil, repo, nil)

	rec := &streamRecorder{}
	unsubscribe := store.Subscribe(context.Background(), "c1", SubscribeOptions{}, rec.onChange, rec.onError)
	unsubscribe()
	unsubscribe()

	repo.deliver(repository.ReplicaSubcollection, nil)
	repo.deliver(repository.ReplicaFlat, nil)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
	assert.Equal(t, 2, repo.stopped())
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")

	for _, text := range []string{"one", "two"} {
		_, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "alice", Text: text})
		require.NoError(t, err)
	}
	_, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "bob", Text: "mine"})
	require.NoError(t, err)

	n, err := f.messageStore.MarkAsRead(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	conv, _ := f.conversations.GetByID(ctx, "c1")
	assert.Equal(t, 0, conv.UnreadFor("bob"))

	msgs, _ := f.messages.ListByConversation(ctx, repository.ReplicaFlat, "c1")
	for _, m := range msgs {
		if m.SenderID == "alice" {
			assert.True(t, m.ReadByUser("bob"))
			assert.Equal(t, entity.StatusRead, m.Status)
		} else {
			assert.False(t, m.ReadByUser("bob"))
		}
	}

	writes := f.store.Writes()
	n, err = f.messageStore.MarkAsRead(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, writes, f.store.Writes())

	conv, _ = f.conversations.GetByID(ctx, "c1")
	assert.Equal(t, 0, conv.UnreadFor("bob"))
}

func TestMarkAsReadWithNothingToAcknowledgeWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")
	_, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "bob", Text: "mine"})
	require.NoError(t, err)
	require.NoError(t, f.conversations.Update(ctx, "c1", repository.ConversationPatch{UnreadIncrement: []string{"bob"}}))

	writes := f.store.Writes()
	n, err := f.messageStore.MarkAsRead(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, writes, f.store.Writes())

	conv, err := f.conversations.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadFor("bob"))
}

func TestMarkAsReadToleratesFlatReplicaFailures(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")
	for i := 0; i < 2; i++ {
		_, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "alice", Text: "hi"})
		require.NoError(t, err)
	}
	f.store.Fail(memory.OpMessageUpdateFlat, errBoom)

	n, err := f.messageStore.MarkAsRead(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), f.messageStore.Stats().FlatReceiptFailures)
}

func TestMarkAsReadFailsWhenCanonicalReplicaFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")
	_, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "alice", Text: "hi"})
	require.NoError(t, err)
	f.store.Fail(memory.OpMessageUpdateSub, errBoom)

	_, err = f.messageStore.MarkAsRead(ctx, "c1", "bob")
	assert.True(t, errors.Is(err, errors.CodeInternal))
}

func TestSubscribeWithAutoReadAcknowledgesIncoming(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")

	rec := &streamRecorder{}
	unsubscribe := f.messageStore.Subscribe(ctx, "c1", SubscribeOptions{ViewerID: "bob", AutoRead: true}, rec.onChange, rec.onError)
	defer unsubscribe()

	_, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "alice", Text: "ping"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		latest := rec.latest()
		return len(latest) == 1 && latest[0].ReadByUser("bob") && latest[0].Status == entity.StatusRead
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		conv, _ := f.conversations.GetByID(ctx, "c1")
		return conv.UnreadFor("bob") == 0
	}, waitFor, tick)
}

func TestSubscribeWritesDeliveryReceipts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")

	rec := &streamRecorder{}
	unsubscribe := f.messageStore.Subscribe(ctx, "c1", SubscribeOptions{ViewerID: "bob"}, rec.onChange, rec.onError)
	defer unsubscribe()

	result, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "alice", Text: "ping"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		m, err := f.messages.GetByID(ctx, repository.ReplicaSubcollection, "c1", result.MessageID)
		return err == nil && m.DeliveredToUser("bob") && m.Status == entity.StatusDelivered
	}, waitFor, tick)

	m, _ := f.messages.GetByID(ctx, repository.ReplicaSubcollection, "c1", result.MessageID)
	assert.False(t, m.ReadByUser("bob"))
}

func TestEditDeleteAndReactions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")
	sent, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "alice", Text: "draft"})
	require.NoError(t, err)

	err = f.messageStore.Edit(ctx, "c1", sent.MessageID, "bob", "hijack")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	require.NoError(t, f.messageStore.Edit(ctx, "c1", sent.MessageID, "alice", "final"))
	for _, replica := range []repository.Replica{repository.ReplicaSubcollection, repository.ReplicaFlat} {
		m, err := f.messages.GetByID(ctx, replica, "c1", sent.MessageID)
		require.NoError(t, err)
		assert.Equal(t, "final", m.Text)
		assert.True(t, m.IsEdited)
	}

	on, err := f.messageStore.ToggleReaction(ctx, "c1", sent.MessageID, "bob", "🎉")
	require.NoError(t, err)
	assert.True(t, on)
	m, _ := f.messages.GetByID(ctx, repository.ReplicaFlat, "c1", sent.MessageID)
	require.Len(t, m.Reactions["🎉"], 1)
	assert.Equal(t, "bob", m.Reactions["🎉"][0].UserID)

	on, err = f.messageStore.ToggleReaction(ctx, "c1", sent.MessageID, "bob", "🎉")
	require.NoError(t, err)
	assert.False(t, on)
	m, _ = f.messages.GetByID(ctx, repository.ReplicaSubcollection, "c1", sent.MessageID)
	assert.Empty(t, m.Reactions["🎉"])

	require.NoError(t, f.messageStore.Delete(ctx, "c1", sent.MessageID, "alice"))
	m, _ = f.messages.GetByID(ctx, repository.ReplicaSubcollection, "c1", sent.MessageID)
	assert.True(t, m.IsDeleted)
	assert.Empty(t, m.Text)

	err = f.messageStore.Edit(ctx, "c1", sent.MessageID, "alice", "again")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
}

func TestEditSwallowsFlatFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")
	sent, err := f.messageStore.Send(ctx, "c1", &MessageDraft{SenderID: "alice", Text: "draft"})
	require.NoError(t, err)
	f.store.Fail(memory.OpMessageUpdateFlat, errBoom)

	require.NoError(t, f.messageStore.Edit(ctx, "c1", sent.MessageID, "alice", "final"))
	assert.Equal(t, int64(1), f.messageStore.Stats().FlatUpdateFailures)
}

func TestHistoryMergesReplicas(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.conversation(t, "c1", "bob", "alice")
	t0 := time.Now()
	f.store.SeedMessage(repository.ReplicaFlat, &entity.Message{ID: "m1", ConversationID: "c1", Text: "flat", Timestamp: t0})
	f.store.SeedMessage(repository.ReplicaSubcollection, &entity.Message{ID: "m2", ConversationID: "c1", Text: "sub", Timestamp: t0.Add(time.Second)})

	history, err := f.messageStore.History(ctx, "c1", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids(history))

	_, err = f.messageStore.History(ctx, "c1", "carol")
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

// gatedMessages hands control of both replica listeners to the test.
type gatedMessages struct {
	repository.MessageRepository

	mu        sync.Mutex
	onChange  map[repository.Replica]func([]*entity.Message)
	onError   map[repository.Replica]func(error)
	stopCount int
}

func newGatedMessages() *gatedMessages {
	return &gatedMessages{
		onChange: make(map[repository.Replica]func([]*entity.Message)),
		onError:  make(map[repository.Replica]func(error)),
	}
}

func (g *gatedMessages) Subscribe(_ context.Context, replica repository.Replica, _ string, onChange func([]*entity.Message), onError func(error)) repository.Unsubscribe {
	g.mu.Lock()
	g.onChange[replica] = onChange
	g.onError[replica] = onError
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		g.stopCount++
		g.mu.Unlock()
	}
}

func (g *gatedMessages) deliver(replica repository.Replica, messages []*entity.Message) {
	g.mu.Lock()
	fn := g.onChange[replica]
	g.mu.Unlock()
	fn(messages)
}

func (g *gatedMessages) fail(replica repository.Replica, err error) {
	g.mu.Lock()
	fn := g.onError[replica]
	g.mu.Unlock()
	fn(err)
}

func (g *gatedMessages) stopped() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopCount
}
