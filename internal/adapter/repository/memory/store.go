// Package memory is an in-process document backend with live subscriptions.
// It backs STORE_BACKEND=memory and the usecase tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/utils"
)

// Op names a backend operation for fault injection.
type Op string

const (
	OpConversationCreate    Op = "conversations.create"
	OpConversationUpdate    Op = "conversations.update"
	OpConversationSubscribe Op = "conversations.subscribe"
	OpMessageCreateSub      Op = "messages.create.subcollection"
	OpMessageCreateFlat     Op = "messages.create.flat"
	OpMessageUpdateSub      Op = "messages.update.subcollection"
	OpMessageUpdateFlat     Op = "messages.update.flat"
	OpMessageSubscribeSub   Op = "messages.subscribe.subcollection"
	OpMessageSubscribeFlat  Op = "messages.subscribe.flat"
	OpPresenceWrite         Op = "presence.write"
	OpPresenceSubscribe     Op = "presence.subscribe"
	OpUserLookup            Op = "users.lookup"
)

type storedMessage struct {
	msg *entity.Message
	seq int64
}

// subscriber captures a snapshot under the store lock and delivers it later
// on its own queue.
type subscriber struct {
	topic    string
	queue    *utils.SerialQueue
	snapshot func(s *Store) func()
}

// Store holds every collection. Use the accessor methods to obtain the
// repository views.
type Store struct {
	mu sync.Mutex

	conversations map[string]*entity.Conversation
	subcollection map[string]map[string]*storedMessage
	flat          map[string]*storedMessage
	presence      map[string]*entity.Presence
	users         map[string]*entity.User

	subscribers map[int64]*subscriber
	nextSub     int64
	seq         int64

	faults  map[Op]error
	writes  int64
	batches int64
	lastTS  time.Time
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*entity.Conversation),
		subcollection: make(map[string]map[string]*storedMessage),
		flat:          make(map[string]*storedMessage),
		presence:      make(map[string]*entity.Presence),
		users:         make(map[string]*entity.User),
		subscribers:   make(map[int64]*subscriber),
		faults:        make(map[Op]error),
		now:           time.Now,
	}
}

func (s *Store) Conversations() *ConversationRepository { return &ConversationRepository{s: s} }
func (s *Store) Messages() *MessageRepository { return &MessageRepository{s: s} }
func (s *Store) Presence() *PresenceRepository { return &PresenceRepository{s: s} }
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// SetClock replaces the time source used for server assigned timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Fail makes every later call of op return err until Heal is called.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	s.faults[op] = err
	s.mu.Unlock()
}

func (s *Store) Heal(op Op) {
	s.mu.Lock()
	delete(s.faults, op)
	s.mu.Unlock()
}

// Writes counts attempted document writes across all collections.
func (s *Store) Writes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// LookupBatches counts physical profile lookup batches.
func (s *Store) LookupBatches() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

// PutUser seeds the profile store.
func (s *Store) PutUser(u *entity.User) {
	s.mu.Lock()
	cp := *u
	s.users[u.ID] = &cp
	s.mu.Unlock()
}

// serverTime returns a timestamp that never goes backwards. Caller holds mu.
func (s *Store) serverTime() time.Time {
	t := s.now()
	if t.Before(s.lastTS) {
		t = s.lastTS
	}
	s.lastTS = t
	return t
}

// fault returns the injected error for op. Caller holds mu.
func (s *Store) fault(op Op) error {
	return s.faults[op]
}

// subscribe registers snapshot and schedules the initial delivery.
func (s *Store) subscribe(ctx context.Context, topic string, failOp Op, snapshot func(s *Store) func(), onError func(error)) repository.Unsubscribe {
	q := utils.NewSerialQueue()

	s.mu.Lock()
	if err := s.fault(failOp); err != nil {
		s.mu.Unlock()
		q.Submit(func() {
			if onError != nil {
				onError(err)
			}
		})
		return q.Close
	}
	s.nextSub++
	id := s.nextSub
	s.subscribers[id] = &subscriber{topic: topic, queue: q, snapshot: snapshot}
	q.Submit(snapshot(s))
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			q.Close()
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return func() {
		stop()
		cancel()
	}
}

// broadcast enqueues a fresh snapshot for every subscriber of the given
// topics. Caller holds mu.
func (s *Store) broadcast(topics ...string) {
	for _, sub := range s.subscribers {
		for _, topic := range topics {
			if sub.topic == topic {
				sub.queue.Submit(sub.snapshot(s))
				break
			}
		}
	}
}

func conversationTopic(userID string) string { return "conversations:" + userID }

func messageTopic(replica repository.Replica, conversationID string) string {
	return "messages:" + string(replica) + ":" + conversationID
}

func presenceTopic(userID string) string { return "presence:" + userID }

func participantTopics(c *entity.Conversation) []string {
	topics := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		topics[i] = conversationTopic(p)
	}
	return topics
}

func sortedMessages(in []*storedMessage) []*entity.Message {
	sort.SliceStable(in, func(i, j int) bool {
		if !in[i].msg.Timestamp.Equal(in[j].msg.Timestamp) {
			return in[i].msg.Timestamp.Before(in[j].msg.Timestamp)
		}
		return in[i].seq < in[j].seq
	})
	out := make([]*entity.Message, len(in))
	for i, sm := range in {
		out[i] = sm.msg.Clone()
	}
	return out
}
