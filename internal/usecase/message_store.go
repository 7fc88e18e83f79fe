package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
	"freelancehub/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageDraft is the input of a send.
type MessageDraft struct {
	SenderID         string
	SenderType       entity.SenderType
	Text             string
	Type             entity.MessageType
	Attachments      []*entity.AttachmentFile
	ReplyToMessageID string
	Location         *entity.Location
	Metadata         map[string]interface{}
	OnProgress       AttachmentProgressFunc
}

// Empty reports whether the draft carries nothing to send: no visible text,
// no attachments and no shared location or contact.
func (d *MessageDraft) Empty() bool {
	if d == nil {
		return true
	}
	if strings.TrimSpace(d.Text) != "" || len(d.Attachments) > 0 || d.Location != nil {
		return false
	}
	return d.Type != entity.MessageContact || len(d.Metadata) == 0
}

type SendResult struct {
	MessageID string
	Message   *entity.Message
	// FailedAttachments is the partial failure warning. The message was sent
	// without these files.
	FailedAttachments []AttachmentFailure
}

func (r *SendResult) PartialFailure() bool {
	return len(r.FailedAttachments) > 0
}

// StoreStats counts best effort writes that failed and were swallowed.
type StoreStats struct {
	FlatWriteFailures       int64 `json:"flat_write_failures"`
	LastMessageFailures     int64 `json:"last_message_failures"`
	UnreadIncrementFailures int64 `json:"unread_increment_failures"`
	FlatReceiptFailures     int64 `json:"flat_receipt_failures"`
	FlatUpdateFailures      int64 `json:"flat_update_failures"`
	DeliveryReceiptFailures int64 `json:"delivery_receipt_failures"`
}

type storeCounters struct {
	flatWrites       atomic.Int64
	lastMessage      atomic.Int64
	unreadIncrement  atomic.Int64
	flatReceipts     atomic.Int64
	flatUpdates      atomic.Int64
	deliveryReceipts atomic.Int64
}

// MessageStore persists every message to both replicas and presents one
// reconciled stream per conversation.
type MessageStore struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	attachments   *AttachmentBridge
	now           func() time.Time
	counters      storeCounters
}

func NewMessageStore(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	attachments *AttachmentBridge,
) *MessageStore {
	return &MessageStore{
		conversations: conversations,
		messages:      messages,
		attachments:   attachments,
		now:           time.Now,
	}
}

func (s *MessageStore) Stats() StoreStats {
	return StoreStats{
		FlatWriteFailures:       s.counters.flatWrites.Load(),
		LastMessageFailures:     s.counters.lastMessage.Load(),
		UnreadIncrementFailures: s.counters.unreadIncrement.Load(),
		FlatReceiptFailures:     s.counters.flatReceipts.Load(),
		FlatUpdateFailures:      s.counters.flatUpdates.Load(),
		DeliveryReceiptFailures: s.counters.deliveryReceipts.Load(),
	}
}

func (s *MessageStore) swallow(counter *atomic.Int64, op string, replica repository.Replica, conversationID, messageID string, err error) {
	counter.Add(1)
	logger.L().Warn("secondary write failed",
		zap.String("op", op),
		zap.String("replica", string(replica)),
		zap.String("conversation_id", conversationID),
		zap.String("message_id", messageID),
		zap.Error(err))
}

func (s *MessageStore) participantConversation(ctx context.Context, conversationID, userID string) (*entity.Conversation, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ConversationNotFound(conversationID, err)
		}
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, errors.Forbidden("You are not a participant in this conversation", nil)
	}
	return conversation, nil
}

// Send persists a draft. It succeeds once the subcollection replica is
// written; flat replica and conversation summary failures are swallowed.
func (s *MessageStore) Send(ctx context.Context, conversationID string, draft *MessageDraft) (*SendResult, error) {
	if draft.Empty() {
		return nil, errors.EmptyMessage()
	}
	if draft.SenderID == "" {
		return nil, errors.BadRequest("Sender ID is required", nil)
	}

	conversation, err := s.participantConversation(ctx, conversationID, draft.SenderID)
	if err != nil {
		return nil, err
	}

	messageType := draft.Type
	if messageType == "" {
		messageType = entity.MessageText
		if draft.Location != nil {
			messageType = entity.MessageLocation
		}
	}

	var attachments []entity.Attachment
	var failed []AttachmentFailure
	if len(draft.Attachments) > 0 {
		if s.attachments == nil {
			return nil, errors.AttachmentUpload(errors.Internal("Attachment storage is not configured", nil))
		}
		outcome := s.attachments.UploadAll(ctx, conversationID, draft.Attachments, draft.OnProgress)
		if len(outcome.Uploaded) == 0 {
			return nil, errors.AttachmentUpload(outcome.Err())
		}
		attachments = outcome.Uploaded
		failed = outcome.Failed
		messageType = entity.MessageTypeForMIME(attachments[0].FileType)
	}

	message := &entity.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       draft.SenderID,
		SenderType:     senderTypeFor(conversation, draft),
		Text:           strings.TrimSpace(draft.Text),
		Type:           messageType,
		Status:         entity.StatusSent,
		Attachments:    attachments,
		Location:       draft.Location,
		Metadata:       draft.Metadata,
	}
	if draft.ReplyToMessageID != "" {
		message.IsReply = true
		message.ReplyToMessageID = draft.ReplyToMessageID
	}

	flatErr := s.messages.Create(ctx, repository.ReplicaFlat, message)
	if flatErr != nil {
		s.swallow(&s.counters.flatWrites, "create", repository.ReplicaFlat, conversationID, message.ID, flatErr)
	}

	if err := s.messages.Create(ctx, repository.ReplicaSubcollection, message); err != nil {
		logger.Error("Send Error: subcollection write for %s failed: %v", message.ID, err)
		// objects are still referenced by the flat replica when it exists
		if flatErr != nil && s.attachments != nil {
			s.attachments.Cleanup(context.WithoutCancel(ctx), attachments)
		}
		return nil, errors.SubcollectionWrite(err)
	}

	sentAt := s.now()
	err = s.conversations.Update(ctx, conversationID, repository.ConversationPatch{
		LastMessage: &entity.LastMessage{
			Text:      message.Text,
			Preview:   message.Preview(),
			SenderID:  message.SenderID,
			Timestamp: sentAt,
			Type:      message.Type,
		},
		UnreadReset: []string{draft.SenderID},
	})
	if err != nil {
		s.swallow(&s.counters.lastMessage, "last_message", "", conversationID, message.ID, err)
	}

	var others []string
	for _, p := range conversation.Participants {
		if p != draft.SenderID {
			others = append(others, p)
		}
	}
	if len(others) > 0 {
		err = s.conversations.Update(ctx, conversationID, repository.ConversationPatch{UnreadIncrement: others})
		if err != nil {
			s.swallow(&s.counters.unreadIncrement, "unread_increment", "", conversationID, message.ID, err)
		}
	}

	sent := message.Clone()
	if sent.Timestamp.IsZero() {
		sent.Timestamp = sentAt
	}
	return &SendResult{
		MessageID:         message.ID,
		Message:           sent,
		FailedAttachments: failed,
	}, nil
}

func senderTypeFor(conversation *entity.Conversation, draft *MessageDraft) entity.SenderType {
	if draft.SenderType != "" {
		return draft.SenderType
	}
	switch draft.SenderID {
	case conversation.ClientID:
		return entity.SenderClient
	case conversation.FreelancerID:
		return entity.SenderFreelancer
	case conversation.AdminID:
		return entity.SenderAdmin
	}
	return entity.SenderFreelancer
}

type SubscribeOptions struct {
	// ViewerID enables receipts for messages authored by others.
	ViewerID string
	// AutoRead marks incoming messages read. Without it only delivery
	// receipts are written.
	AutoRead bool
}

// Subscribe streams the reconciled messages of a conversation. Nothing is
// published until both replicas have reported once; a replica whose listener
// fails counts as reported and the failure goes to onError.
func (s *MessageStore) Subscribe(ctx context.Context, conversationID string, opts SubscribeOptions, onChange func([]*entity.Message), onError func(error)) repository.Unsubscribe {
	queue := utils.NewSerialQueue()
	merger := newReplicaMerger()

	var receipts *receiptWorker
	if opts.ViewerID != "" {
		receipts = newReceiptWorker(func(latest []*entity.Message) {
			if opts.AutoRead {
				if _, err := s.MarkAsRead(ctx, conversationID, opts.ViewerID); err != nil {
					logger.Warn("Read receipt Error for %s: %v", conversationID, err)
				}
				return
			}
			s.markDelivered(ctx, conversationID, opts.ViewerID, latest)
		})
	}

	publish := func() {
		out, ok := merger.merged()
		if !ok {
			return
		}
		onChange(out)
		if receipts != nil && needsReceipt(out, opts) {
			receipts.trigger(out)
		}
	}

	unsubscribes := make([]repository.Unsubscribe, 0, len(mergedReplicas))
	for _, replica := range mergedReplicas {
		replica := replica
		unsubscribe := s.messages.Subscribe(ctx, replica, conversationID, func(batch []*entity.Message) {
			queue.Submit(func() {
				merger.apply(replica, batch)
				publish()
			})
		}, func(err error) {
			queue.Submit(func() {
				logger.L().Warn("message subscription failed",
					zap.String("conversation_id", conversationID),
					zap.String("replica", string(replica)),
					zap.Error(err))
				merger.fail(replica)
				if onError != nil {
					onError(errors.SubscriptionFailed(string(replica)+" messages", err))
				}
				publish()
			})
		})
		unsubscribes = append(unsubscribes, unsubscribe)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			queue.Close()
			for _, unsubscribe := range unsubscribes {
				unsubscribe()
			}
			if receipts != nil {
				receipts.stop()
			}
		})
	}
}

func needsReceipt(messages []*entity.Message, opts SubscribeOptions) bool {
	for _, m := range messages {
		if m.SenderID == opts.ViewerID {
			continue
		}
		if opts.AutoRead && !m.ReadByUser(opts.ViewerID) {
			return true
		}
		if !opts.AutoRead && !m.DeliveredToUser(opts.ViewerID) && !m.ReadByUser(opts.ViewerID) {
			return true
		}
	}
	return false
}

// History reads both replicas once and returns the reconciled view.
func (s *MessageStore) History(ctx context.Context, conversationID, userID string) ([]*entity.Message, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	merger := newReplicaMerger()
	for _, replica := range mergedReplicas {
		messages, err := s.messages.ListByConversation(ctx, replica, conversationID)
		if err != nil {
			if replica == repository.ReplicaSubcollection {
				return nil, errors.Internal("Failed to load messages", err)
			}
			logger.Warn("History Error: flat replica for %s unavailable: %v", conversationID, err)
			merger.fail(replica)
			continue
		}
		merger.apply(replica, messages)
	}
	out, _ := merger.merged()
	return out, nil
}

// MarkAsRead acknowledges every message in the conversation authored by
// someone else. It issues no writes when there is nothing to acknowledge.
func (s *MessageStore) MarkAsRead(ctx context.Context, conversationID, userID string) (int, error) {
	conversation, err := s.participantConversation(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}

	messages, err := s.messages.ListByConversation(ctx, repository.ReplicaSubcollection, conversationID)
	if err != nil {
		return 0, errors.Internal("Failed to load messages", err)
	}
	var unread []*entity.Message
	for _, m := range messages {
		if m.UnreadFor(userID) {
			unread = append(unread, m)
		}
	}

	if len(unread) == 0 {
		return 0, nil
	}

	if conversation.UnreadFor(userID) > 0 {
		err := s.conversations.Update(ctx, conversationID, repository.ConversationPatch{UnreadReset: []string{userID}})
		if err != nil {
			logger.Error("MarkAsRead Error: unread reset for %s failed: %v", conversationID, err)
			return 0, errors.Internal("Failed to reset unread count", err)
		}
	}

	status := entity.StatusRead
	for _, m := range unread {
		patch := repository.MessagePatch{
			ReadBy: map[string]time.Time{userID: s.now()},
			Status: &status,
		}
		if err := s.messages.Update(ctx, repository.ReplicaSubcollection, conversationID, m.ID, patch); err != nil {
			logger.Error("MarkAsRead Error: message %s: %v", m.ID, err)
			return 0, errors.Internal("Failed to mark message as read", err)
		}
		if err := s.messages.Update(ctx, repository.ReplicaFlat, conversationID, m.ID, patch); err != nil {
			s.swallow(&s.counters.flatReceipts, "read_receipt", repository.ReplicaFlat, conversationID, m.ID, err)
		}
	}
	return len(unread), nil
}

// markDelivered writes delivery receipts on the canonical replica only.
func (s *MessageStore) markDelivered(ctx context.Context, conversationID, viewerID string, messages []*entity.Message) {
	delivered := entity.StatusDelivered
	for _, m := range messages {
		if m.SenderID == viewerID || m.DeliveredToUser(viewerID) || m.ReadByUser(viewerID) {
			continue
		}
		patch := repository.MessagePatch{DeliveredTo: map[string]time.Time{viewerID: s.now()}}
		if m.Status == entity.StatusSent {
			patch.Status = &delivered
		}
		if err := s.messages.Update(ctx, repository.ReplicaSubcollection, conversationID, m.ID, patch); err != nil {
			s.swallow(&s.counters.deliveryReceipts, "delivery_receipt", repository.ReplicaSubcollection, conversationID, m.ID, err)
		}
	}
}

// updateReplicas applies patch to the canonical replica, then best effort to
// the flat one.
func (s *MessageStore) updateReplicas(ctx context.Context, op, conversationID, messageID string, patch repository.MessagePatch) error {
	if err := s.messages.Update(ctx, repository.ReplicaSubcollection, conversationID, messageID, patch); err != nil {
		if errors.IsNotFound(err) {
			return err
		}
		return errors.Internal("Failed to update message", err)
	}
	if err := s.messages.Update(ctx, repository.ReplicaFlat, conversationID, messageID, patch); err != nil {
		s.swallow(&s.counters.flatUpdates, op, repository.ReplicaFlat, conversationID, messageID, err)
	}
	return nil
}

func (s *MessageStore) ownMessage(ctx context.Context, conversationID, messageID, userID string) (*entity.Message, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	message, err := s.messages.GetByID(ctx, repository.ReplicaSubcollection, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if message.SenderID != userID {
		return nil, errors.Forbidden("Only the sender can change this message", nil)
	}
	if message.IsDeleted {
		return nil, errors.BadRequest("Message has been deleted", nil)
	}
	return message, nil
}

func (s *MessageStore) Edit(ctx context.Context, conversationID, messageID, userID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.EmptyMessage()
	}
	if _, err := s.ownMessage(ctx, conversationID, messageID, userID); err != nil {
		return err
	}

	editedAt := s.now()
	return s.updateReplicas(ctx, "edit", conversationID, messageID, repository.MessagePatch{
		Text:     &text,
		EditedAt: &editedAt,
	})
}

// Delete is a soft delete: the message keeps its slot with blank text.
func (s *MessageStore) Delete(ctx context.Context, conversationID, messageID, userID string) error {
	if _, err := s.ownMessage(ctx, conversationID, messageID, userID); err != nil {
		return err
	}

	blank := ""
	deletedAt := s.now()
	return s.updateReplicas(ctx, "delete", conversationID, messageID, repository.MessagePatch{
		Text:      &blank,
		DeletedAt: &deletedAt,
	})
}

// ToggleReaction adds the user's reaction, or removes it when present. It
// reports whether the reaction is now set.
func (s *MessageStore) ToggleReaction(ctx context.Context, conversationID, messageID, userID, emoji string) (bool, error) {
	if strings.TrimSpace(emoji) == "" {
		return false, errors.BadRequest("Emoji is required", nil)
	}
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return false, err
	}
	message, err := s.messages.GetByID(ctx, repository.ReplicaSubcollection, conversationID, messageID)
	if err != nil {
		return false, err
	}

	var next []entity.Reaction
	removed := false
	for _, r := range message.Reactions[emoji] {
		if r.UserID == userID {
			removed = true
			continue
		}
		next = append(next, r)
	}
	if !removed {
		next = append(next, entity.Reaction{UserID: userID, Timestamp: s.now()})
	}

	err = s.updateReplicas(ctx, "reaction", conversationID, messageID, repository.MessagePatch{
		Reactions: map[string][]entity.Reaction{emoji: next},
	})
	if err != nil {
		return false, err
	}
	return !removed, nil
}

// receiptWorker runs receipt writes off the delivery path. Triggers that
// arrive while a run is in flight collapse into one follow-up run.
type receiptWorker struct {
	mu      sync.Mutex
	run     func(latest []*entity.Message)
	latest  []*entity.Message
	running bool
	pending bool
	stopped bool
}

func newReceiptWorker(run func(latest []*entity.Message)) *receiptWorker {
	return &receiptWorker{run: run}
}

func (w *receiptWorker) trigger(latest []*entity.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.latest = latest
	if w.running {
		w.pending = true
		return
	}
	w.running = true
	go w.loop()
}

func (w *receiptWorker) loop() {
	for {
		w.mu.Lock()
		latest := w.latest
		w.pending = false
		w.mu.Unlock()

		w.run(latest)

		w.mu.Lock()
		if !w.pending || w.stopped {
			w.running = false
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()
	}
}

func (w *receiptWorker) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
}
