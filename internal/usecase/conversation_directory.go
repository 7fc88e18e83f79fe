package usecase

import (
	"context"
	"sort"
	"sync"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"

	"go.uber.org/zap"
)

// ConversationItem is a conversation enriched with its counterpart's identity.
type ConversationItem struct {
	Conversation    *entity.Conversation `json:"conversation"`
	CounterpartID   string               `json:"counterpart_id"`
	DisplayName     string               `json:"display_name"`
	AvatarURL       string               `json:"avatar_url,omitempty"`
	CounterpartRole entity.UserRole      `json:"counterpart_role,omitempty"`
	Label           string               `json:"label,omitempty"`
	Unread          int                  `json:"unread"`
}

type FilterKind string

const (
	FilterAll      FilterKind = "all"
	FilterUnread   FilterKind = "unread"
	FilterRole     FilterKind = "role"
	FilterPinned   FilterKind = "pinned"
	FilterArchived FilterKind = "archived"
)

type DirectoryFilter struct {
	Kind FilterKind
	Role entity.UserRole
}

// ConversationDirectory keeps the live, enriched and recency sorted list of
// one user's conversations. Profiles are fetched once per counterpart; a
// failed lookup is retried on the next snapshot.
type ConversationDirectory struct {
	conversations repository.ConversationRepository
	users         repository.UserRepository
	userID        string

	mu     sync.Mutex
	cache  map[string]*entity.User
	absent map[string]bool
	items  map[string]*ConversationItem
	list   []*ConversationItem
	loaded bool
}

func NewConversationDirectory(conversations repository.ConversationRepository, users repository.UserRepository, userID string) *ConversationDirectory {
	return &ConversationDirectory{
		conversations: conversations,
		users:         users,
		userID:        userID,
		cache:         make(map[string]*entity.User),
		absent:        make(map[string]bool),
		items:         make(map[string]*ConversationItem),
	}
}

// Subscribe starts the live conversation query. onChange receives the
// sorted list after every snapshot.
func (d *ConversationDirectory) Subscribe(ctx context.Context, onChange func([]ConversationItem), onError func(error)) repository.Unsubscribe {
	return d.conversations.SubscribeByParticipant(ctx, d.userID, func(snapshot []*entity.Conversation) {
		d.apply(ctx, snapshot)
		if onChange != nil {
			onChange(d.List())
		}
	}, func(err error) {
		logger.Warn("Conversation subscription Error for %s: %v", d.userID, err)
		if onError != nil {
			onError(errors.SubscriptionFailed("conversations", err))
		}
	})
}

// Load fills the directory from the first snapshot and then stops
// listening. It serves one-shot reads that do not need live updates.
func (d *ConversationDirectory) Load(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loaded := make(chan struct{})
	failed := make(chan error, 1)
	var once sync.Once
	unsubscribe := d.Subscribe(ctx, func([]ConversationItem) {
		once.Do(func() { close(loaded) })
	}, func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	defer unsubscribe()

	select {
	case <-loaded:
		return nil
	case err := <-failed:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *ConversationDirectory) apply(ctx context.Context, snapshot []*entity.Conversation) {
	d.mu.Lock()
	var missing []string
	seen := make(map[string]bool)
	for _, c := range snapshot {
		// known items are retried only while they still show a placeholder
		counterpart := c.Counterpart(d.userID)
		if counterpart == "" || seen[counterpart] || d.absent[counterpart] {
			continue
		}
		if _, cached := d.cache[counterpart]; !cached {
			missing = append(missing, counterpart)
			seen[counterpart] = true
		}
	}
	d.mu.Unlock()

	var (
		fetched  map[string]*entity.User
		fetchErr error
	)
	if len(missing) > 0 {
		fetched, fetchErr = d.users.GetByIDs(ctx, missing)
		if fetchErr != nil {
			logger.L().Warn("counterpart profile lookup failed",
				zap.String("user_id", d.userID),
				zap.Strings("counterparts", missing),
				zap.Error(fetchErr))
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, u := range fetched {
		d.cache[id] = u
	}
	if fetchErr == nil {
		// ids the profile store does not know are not asked for again
		for _, id := range missing {
			if _, ok := fetched[id]; !ok {
				d.absent[id] = true
			}
		}
	}

	next := make(map[string]*ConversationItem, len(snapshot))
	list := make([]*ConversationItem, 0, len(snapshot))
	for _, c := range snapshot {
		item, known := d.items[c.ID]
		if _, resolved := fetched[c.Counterpart(d.userID)]; known && resolved {
			// the placeholder is replaced once the profile arrives
			item = d.enrich(c.Clone())
		} else if known {
			// identity is kept, only volatile fields move
			refreshed := *item
			refreshed.Conversation = c.Clone()
			item = &refreshed
		} else {
			item = d.enrich(c.Clone())
		}
		item.Label = item.Conversation.Label()
		item.Unread = item.Conversation.UnreadFor(d.userID)
		next[c.ID] = item
		list = append(list, item)
	}
	sortItems(list)

	d.items = next
	d.list = list
	d.loaded = true
}

// enrich builds a new item from the profile cache. Caller holds mu.
func (d *ConversationDirectory) enrich(c *entity.Conversation) *ConversationItem {
	item := &ConversationItem{
		Conversation:  c,
		CounterpartID: c.Counterpart(d.userID),
		DisplayName:   "Unknown user",
	}
	switch c.Type {
	case entity.ConversationSupport:
		item.DisplayName = "Support"
	case entity.ConversationAnnouncement:
		item.DisplayName = "Announcements"
	}
	if u, ok := d.cache[item.CounterpartID]; ok {
		item.DisplayName = u.Name()
		item.AvatarURL = u.PhotoURL
		item.CounterpartRole = u.Role
	}
	return item
}

// moreRecent orders by last message time, newest first. Conversations
// without messages sort last.
func moreRecent(a, b *entity.Conversation) bool {
	ta, tb := a.LastActivity(), b.LastActivity()
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.ID < b.ID
}

func sortItems(items []*ConversationItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return moreRecent(items[i].Conversation, items[j].Conversation)
	})
}

func copyItems(items []*ConversationItem) []ConversationItem {
	out := make([]ConversationItem, len(items))
	for i, item := range items {
		out[i] = *item
		out[i].Conversation = item.Conversation.Clone()
	}
	return out
}

// List returns the conversations, most recent first.
func (d *ConversationDirectory) List() []ConversationItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := copyItems(d.list)
	// snapshots may have interleaved since the last commit
	sort.SliceStable(out, func(i, j int) bool {
		return moreRecent(out[i].Conversation, out[j].Conversation)
	})
	return out
}

// Filter is a derived view. It never changes the canonical list.
func (d *ConversationDirectory) Filter(f DirectoryFilter) []ConversationItem {
	all := d.List()
	out := make([]ConversationItem, 0, len(all))
	for _, item := range all {
		if matches(item, f, d.userID) {
			out = append(out, item)
		}
	}
	return out
}

func matches(item ConversationItem, f DirectoryFilter, userID string) bool {
	switch f.Kind {
	case FilterUnread:
		return item.Unread > 0
	case FilterRole:
		return item.CounterpartRole == f.Role
	case FilterPinned:
		return item.Conversation.Pinned
	case FilterArchived:
		return item.Conversation.ArchivedFor(userID)
	}
	return true
}

func (d *ConversationDirectory) Get(conversationID string) (ConversationItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[conversationID]
	if !ok {
		return ConversationItem{}, false
	}
	out := *item
	out.Conversation = item.Conversation.Clone()
	return out, true
}

// UnreadCount defaults to 0 for unknown conversations.
func (d *ConversationDirectory) UnreadCount(conversationID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if item, ok := d.items[conversationID]; ok {
		return item.Conversation.UnreadFor(d.userID)
	}
	return 0
}

func (d *ConversationDirectory) TotalUnread() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, item := range d.items {
		if !item.Conversation.MutedFor(d.userID) {
			total += item.Conversation.UnreadFor(d.userID)
		}
	}
	return total
}

func (d *ConversationDirectory) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// User returns a cached counterpart profile.
func (d *ConversationDirectory) User(userID string) (*entity.User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.cache[userID]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}
