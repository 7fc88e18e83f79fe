package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"freelancehub/internal/domain/entity"
	"freelancehub/internal/domain/repository"
	"freelancehub/internal/domain/service"
	"freelancehub/pkg/errors"
	"freelancehub/pkg/logger"
	"freelancehub/pkg/utils"

	"github.com/google/uuid"
)

const DefaultLoadingTimeout = 8 * time.Second

type ViewState string

const (
	StateUninitialized        ViewState = "uninitialized"
	StateAuthPending          ViewState = "auth_pending"
	StateUnauthenticated      ViewState = "unauthenticated"
	StateLoading              ViewState = "loading"
	StateResolvingDeepLink    ViewState = "resolving_deep_link"
	StateWelcome              ViewState = "welcome"
	StateConversationSelected ViewState = "conversation_selected"
)

type Viewport string

const (
	ViewportWide   Viewport = "wide"
	ViewportNarrow Viewport = "narrow"
)

type panel int

const (
	panelList panel = iota
	panelDetail
)

// DeepLink selects the conversation with a counterpart, optionally for a
// specific proposal.
type DeepLink struct {
	CounterpartID string `json:"counterpart_id"`
	ProposalID    string `json:"proposal_id,omitempty"`
}

// ViewSnapshot is everything the UI layer renders.
type ViewSnapshot struct {
	State               ViewState          `json:"state"`
	UserID              string             `json:"user_id,omitempty"`
	Viewport            Viewport           `json:"viewport"`
	Loading             bool               `json:"loading"`
	TimedOut            bool               `json:"timed_out,omitempty"`
	Conversations       []ConversationItem `json:"conversations"`
	TotalUnread         int                `json:"total_unread"`
	SelectedID          string             `json:"selected_id,omitempty"`
	Selected            *ConversationItem  `json:"selected,omitempty"`
	Messages            []*entity.Message  `json:"messages"`
	ListVisible         bool               `json:"list_visible"`
	DetailVisible       bool               `json:"detail_visible"`
	CounterpartPresence *entity.Presence   `json:"counterpart_presence,omitempty"`
	CounterpartTyping   bool               `json:"counterpart_typing"`
	NotFound            bool               `json:"not_found,omitempty"`
	Error               string             `json:"error,omitempty"`
}

type ControllerDeps struct {
	Auth           service.AuthSource
	Conversations  repository.ConversationRepository
	Users          repository.UserRepository
	Store          *MessageStore
	Finder         *ConversationUseCase
	Presence       *PresenceTracker
	LoadingTimeout time.Duration
}

// SyncController ties the directory, the message store and presence
// together for one UI session. All state lives behind mu; snapshots are
// delivered in order on a dedicated queue.
type SyncController struct {
	deps     ControllerDeps
	onChange func(ViewSnapshot)
	out      *utils.SerialQueue
	now      func() time.Time

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	state    ViewState
	userID   string
	viewport Viewport
	panel    panel
	deepLink *DeepLink
	timedOut bool
	notFound bool
	errorMsg string

	// session changes on every authentication, generation on every selection.
	session    uint64
	generation uint64

	directory       *ConversationDirectory
	conversations   []ConversationItem
	directoryLoaded bool

	selectedID  string
	counterpart string
	messages    []*entity.Message
	pending     []*entity.Message
	presence    *entity.Presence

	loadingTimer *time.Timer
	typingTimer  *time.Timer

	unsubAuth      func()
	unsubDirectory repository.Unsubscribe
	unsubMessages  repository.Unsubscribe
	unsubPresence  repository.Unsubscribe
}

func NewSyncController(deps ControllerDeps, onChange func(ViewSnapshot)) *SyncController {
	if deps.LoadingTimeout <= 0 {
		deps.LoadingTimeout = DefaultLoadingTimeout
	}
	if onChange == nil {
		onChange = func(ViewSnapshot) {}
	}
	return &SyncController{
		deps:     deps,
		onChange: onChange,
		out:      utils.NewSerialQueue(),
		now:      time.Now,
		state:    StateUninitialized,
		viewport: ViewportWide,
	}
}

// Mount starts the session. link, when set, is resolved once after the
// conversation list first loads.
func (c *SyncController) Mount(ctx context.Context, link *DeepLink, viewport Viewport) error {
	c.mu.Lock()
	if c.state != StateUninitialized || c.out.Closed() {
		c.mu.Unlock()
		return errors.Conflict("Controller is already mounted", nil)
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	if link != nil && link.CounterpartID != "" {
		cp := *link
		c.deepLink = &cp
	}
	if viewport != "" {
		c.viewport = viewport
	}
	c.state = StateAuthPending
	c.emitLocked()
	c.mu.Unlock()

	unsubscribe := c.deps.Auth.OnAuthStateChanged(c.onAuthState)

	c.mu.Lock()
	if c.state == StateUninitialized {
		// unmounted meanwhile
		c.mu.Unlock()
		unsubscribe()
		return nil
	}
	c.unsubAuth = unsubscribe
	c.mu.Unlock()
	return nil
}

func (c *SyncController) onAuthState(auth service.AuthState) {
	c.mu.Lock()
	if c.state == StateUninitialized {
		c.mu.Unlock()
		return
	}
	if auth.Authenticated && auth.UserID == c.userID && c.state != StateAuthPending && c.state != StateUnauthenticated {
		c.mu.Unlock()
		return
	}

	stale := c.resetSessionLocked()
	if !auth.Authenticated || auth.UserID == "" {
		c.state = StateUnauthenticated
		c.userID = ""
		c.emitLocked()
		c.mu.Unlock()
		stale.run()
		return
	}

	c.userID = auth.UserID
	c.state = StateLoading
	session := c.session
	c.directory = NewConversationDirectory(c.deps.Conversations, c.deps.Users, auth.UserID)
	directory := c.directory
	ctx := c.ctx
	c.loadingTimer = time.AfterFunc(c.deps.LoadingTimeout, func() { c.onLoadingTimeout(session) })
	c.emitLocked()
	c.mu.Unlock()
	stale.run()

	if c.deps.Presence != nil {
		if err := c.deps.Presence.SetStatus(ctx, auth.UserID, entity.PresenceOnline, nil); err != nil {
			logger.Warn("Presence Error: failed to go online for %s: %v", auth.UserID, err)
		}
	}

	unsubscribe := directory.Subscribe(ctx, func(items []ConversationItem) {
		c.onDirectory(session, items)
	}, func(err error) {
		c.onSoftError(session, 0, err)
	})
	c.adopt(session, 0, &c.unsubDirectory, unsubscribe)
}

type cleanup []func()

func (fns cleanup) run() {
	for _, fn := range fns {
		fn()
	}
}

// resetSessionLocked drops everything tied to the current user and returns
// the unsubscribe calls to run once mu is released.
func (c *SyncController) resetSessionLocked() cleanup {
	stale := c.clearSelectionLocked()
	if c.unsubDirectory != nil {
		stale = append(stale, c.unsubDirectory)
		c.unsubDirectory = nil
	}
	if c.loadingTimer != nil {
		c.loadingTimer.Stop()
		c.loadingTimer = nil
	}
	c.session++
	c.directory = nil
	c.conversations = nil
	c.directoryLoaded = false
	c.timedOut = false
	c.notFound = false
	c.errorMsg = ""
	c.panel = panelList
	return stale
}

func (c *SyncController) clearSelectionLocked() cleanup {
	var stale cleanup
	if c.unsubMessages != nil {
		stale = append(stale, c.unsubMessages)
		c.unsubMessages = nil
	}
	if c.unsubPresence != nil {
		stale = append(stale, c.unsubPresence)
		c.unsubPresence = nil
	}
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.generation++
	c.selectedID = ""
	c.counterpart = ""
	c.messages = nil
	c.pending = nil
	c.presence = nil
	return stale
}

// adopt stores an unsubscribe handle unless the session or selection it
// belongs to is already gone, in which case it is released immediately.
func (c *SyncController) adopt(session, generation uint64, slot *repository.Unsubscribe, unsubscribe repository.Unsubscribe) {
	c.mu.Lock()
	current := c.session == session && (generation == 0 || c.generation == generation) && c.state != StateUninitialized
	if current {
		*slot = unsubscribe
	}
	c.mu.Unlock()
	if !current {
		unsubscribe()
	}
}

func (c *SyncController) onLoadingTimeout(session uint64) {
	c.mu.Lock()
	if c.session != session || c.state != StateLoading {
		c.mu.Unlock()
		return
	}
	logger.Warn("Conversation list for %s did not load within %s, continuing without it", c.userID, c.deps.LoadingTimeout)
	c.timedOut = true
	c.loadingTimer = nil
	link := c.takeDeepLinkLocked()
	if link != nil {
		c.state = StateResolvingDeepLink
	} else {
		c.state = StateWelcome
	}
	c.emitLocked()
	c.mu.Unlock()

	if link != nil {
		c.resolveDeepLink(session, link, nil)
	}
}

func (c *SyncController) takeDeepLinkLocked() *DeepLink {
	link := c.deepLink
	c.deepLink = nil
	return link
}

func (c *SyncController) onDirectory(session uint64, items []ConversationItem) {
	c.mu.Lock()
	if c.session != session || c.state == StateUninitialized {
		c.mu.Unlock()
		return
	}
	c.conversations = items
	first := !c.directoryLoaded
	c.directoryLoaded = true
	if c.loadingTimer != nil {
		c.loadingTimer.Stop()
		c.loadingTimer = nil
	}

	// the first snapshot decides the initial view, once per session
	var link *DeepLink
	autoSelect := ""
	if first && (c.state == StateLoading || (c.state == StateWelcome && c.timedOut)) {
		switch link = c.takeDeepLinkLocked(); {
		case link != nil:
			c.state = StateResolvingDeepLink
		case len(items) == 1:
			autoSelect = items[0].Conversation.ID
		default:
			c.state = StateWelcome
		}
	}
	c.emitLocked()
	c.mu.Unlock()

	switch {
	case link != nil:
		c.resolveDeepLink(session, link, items)
	case autoSelect != "":
		c.selectConversation(session, autoSelect)
	}
}

func (c *SyncController) resolveDeepLink(session uint64, link *DeepLink, items []ConversationItem) {
	for _, item := range items {
		conv := item.Conversation
		if conv.HasParticipant(link.CounterpartID) && (link.ProposalID == "" || conv.ProposalID == link.ProposalID) {
			c.selectConversation(session, conv.ID)
			return
		}
	}

	c.mu.Lock()
	ctx, userID := c.ctx, c.userID
	c.mu.Unlock()

	if c.deps.Finder == nil {
		c.failDeepLink(session, errors.Internal("Conversation lookup is not configured", nil))
		return
	}
	conversation, _, err := c.deps.Finder.FindOrCreateBetween(ctx, userID, link.CounterpartID, link.ProposalID)
	if err != nil {
		logger.Error("Deep link Error: %v", err)
		c.failDeepLink(session, err)
		return
	}
	c.selectConversation(session, conversation.ID)
}

func (c *SyncController) failDeepLink(session uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != session || c.state != StateResolvingDeepLink {
		return
	}
	c.state = StateWelcome
	c.notFound = errors.IsNotFound(err)
	c.errorMsg = userMessage(err)
	c.emitLocked()
}

// Select is the explicit user selection.
func (c *SyncController) Select(conversationID string) error {
	c.mu.Lock()
	session := c.session
	switch c.state {
	case StateLoading, StateWelcome, StateConversationSelected, StateResolvingDeepLink:
	default:
		c.mu.Unlock()
		return errors.Unauthorized("Not signed in", nil)
	}
	c.mu.Unlock()

	c.selectConversation(session, conversationID)
	return nil
}

func (c *SyncController) selectConversation(session uint64, conversationID string) {
	c.mu.Lock()
	if c.session != session || c.userID == "" {
		c.mu.Unlock()
		return
	}
	if c.selectedID == conversationID && c.state == StateConversationSelected {
		c.panel = panelDetail
		c.emitLocked()
		c.mu.Unlock()
		return
	}

	stale := c.clearSelectionLocked()
	generation := c.generation
	c.selectedID = conversationID
	c.state = StateConversationSelected
	c.panel = panelDetail
	c.notFound = false
	c.errorMsg = ""
	c.deepLink = nil
	if c.loadingTimer != nil {
		c.loadingTimer.Stop()
		c.loadingTimer = nil
	}

	counterpart := ""
	known := false
	for _, item := range c.conversations {
		if item.Conversation.ID == conversationID {
			counterpart = item.CounterpartID
			known = true
			break
		}
	}
	c.counterpart = counterpart
	ctx, userID := c.ctx, c.userID
	c.emitLocked()
	c.mu.Unlock()
	stale.run()

	if !known && c.deps.Finder != nil {
		conversation, err := c.deps.Finder.Get(ctx, conversationID, userID)
		if err != nil {
			c.selectionFailed(session, generation, err)
			return
		}
		counterpart = conversation.Counterpart(userID)
		c.mu.Lock()
		if c.generation == generation {
			c.counterpart = counterpart
		}
		c.mu.Unlock()
	}

	unsubscribe := c.deps.Store.Subscribe(ctx, conversationID, SubscribeOptions{ViewerID: userID, AutoRead: true},
		func(messages []*entity.Message) {
			c.onMessages(session, generation, messages)
		},
		func(err error) {
			c.onSoftError(session, generation, err)
		})
	c.adopt(session, generation, &c.unsubMessages, unsubscribe)

	if counterpart != "" && c.deps.Presence != nil {
		unsubscribe := c.deps.Presence.Watch(ctx, counterpart, func(p *entity.Presence) {
			c.onPresence(session, generation, p)
		}, func(err error) {
			c.onSoftError(session, generation, err)
		})
		c.adopt(session, generation, &c.unsubPresence, unsubscribe)
	}
}

func (c *SyncController) selectionFailed(session, generation uint64, err error) {
	c.mu.Lock()
	if c.session != session || c.generation != generation {
		c.mu.Unlock()
		return
	}
	stale := c.clearSelectionLocked()
	c.state = StateWelcome
	c.panel = panelList
	c.notFound = errors.IsNotFound(err)
	c.errorMsg = userMessage(err)
	c.emitLocked()
	c.mu.Unlock()
	stale.run()
}

func (c *SyncController) onMessages(session, generation uint64, messages []*entity.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != session || c.generation != generation {
		// late delivery for a conversation that is no longer selected
		return
	}
	c.messages = messages

	if len(c.pending) > 0 {
		delivered := make(map[string]bool, len(messages))
		for _, m := range messages {
			delivered[m.ID] = true
		}
		kept := c.pending[:0]
		for _, p := range c.pending {
			if !delivered[p.ID] {
				kept = append(kept, p)
			}
		}
		c.pending = kept
	}
	c.emitLocked()
}

func (c *SyncController) onPresence(session, generation uint64, p *entity.Presence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != session || c.generation != generation {
		return
	}
	c.presence = p

	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	if c.deps.Presence != nil && p.TypingIn != nil && p.TypingIn.ConversationID == c.selectedID {
		remaining := p.TypingIn.Timestamp.Add(c.deps.Presence.TypingWindow()).Sub(c.now())
		if remaining > 0 {
			// re-render once the typing signal goes stale
			c.typingTimer = time.AfterFunc(remaining+time.Millisecond, func() {
				c.mu.Lock()
				defer c.mu.Unlock()
				if c.session == session && c.generation == generation {
					c.emitLocked()
				}
			})
		}
	}
	c.emitLocked()
}

// onSoftError surfaces a failure as a banner. generation 0 means it is not
// tied to a selection.
func (c *SyncController) onSoftError(session, generation uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != session || (generation != 0 && c.generation != generation) {
		return
	}
	c.errorMsg = userMessage(err)
	c.emitLocked()
}

// Back returns to the list on narrow layouts.
func (c *SyncController) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panel == panelList {
		return
	}
	c.panel = panelList
	c.emitLocked()
}

func (c *SyncController) SetViewport(viewport Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if viewport != ViewportNarrow && viewport != ViewportWide {
		return
	}
	if c.viewport == viewport {
		return
	}
	c.viewport = viewport
	c.emitLocked()
}

// OpenDeepLink navigates to a counterpart on request. Unlike the link given
// to Mount it is not deferred until the list loads.
func (c *SyncController) OpenDeepLink(link DeepLink) error {
	if link.CounterpartID == "" {
		return errors.BadRequest("Counterpart is required", nil)
	}
	c.mu.Lock()
	switch c.state {
	case StateWelcome, StateConversationSelected:
	case StateLoading:
		c.deepLink = &link
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		return errors.Conflict("Cannot navigate in the current state", nil)
	}
	session := c.session
	items := c.conversations
	c.state = StateResolvingDeepLink
	c.emitLocked()
	c.mu.Unlock()

	go c.resolveDeepLink(session, &link, items)
	return nil
}

// Send posts a message to the selected conversation. A "sending" placeholder
// is shown until the stored message arrives through the subscription.
func (c *SyncController) Send(ctx context.Context, text string, attachments []*entity.AttachmentFile, replyTo string) (*SendResult, error) {
	draft := &MessageDraft{
		Text:             text,
		Attachments:      attachments,
		ReplyToMessageID: replyTo,
	}
	if draft.Empty() {
		return nil, errors.EmptyMessage()
	}

	c.mu.Lock()
	if c.state != StateConversationSelected || c.selectedID == "" {
		c.mu.Unlock()
		return nil, errors.BadRequest("No conversation selected", nil)
	}
	conversationID, userID, generation := c.selectedID, c.userID, c.generation
	placeholder := &entity.Message{
		ID:               "local-" + uuid.NewString(),
		ConversationID:   conversationID,
		SenderID:         userID,
		Text:             text,
		Type:             entity.MessageText,
		Status:           entity.StatusSending,
		Timestamp:        c.now(),
		IsReply:          replyTo != "",
		ReplyToMessageID: replyTo,
	}
	c.pending = append(c.pending, placeholder)
	c.emitLocked()
	c.mu.Unlock()

	draft.SenderID = userID
	result, err := c.deps.Store.Send(ctx, conversationID, draft)

	c.mu.Lock()
	if c.generation == generation {
		for i, p := range c.pending {
			if p.ID != placeholder.ID {
				continue
			}
			if err != nil {
				failed := *p
				failed.Status = entity.StatusFailed
				c.pending[i] = &failed
			} else if c.containsMessageLocked(result.MessageID) {
				c.pending = append(c.pending[:i], c.pending[i+1:]...)
			} else {
				c.pending[i] = result.Message
			}
			break
		}
		if err == nil && result.PartialFailure() {
			c.errorMsg = "Some attachments could not be uploaded"
		}
		c.emitLocked()
	}
	c.mu.Unlock()

	if c.deps.Presence != nil {
		if clearErr := c.deps.Presence.ClearTyping(ctx, userID); clearErr != nil {
			logger.Warn("ClearTyping Error: %v", clearErr)
		}
	}
	return result, err
}

func (c *SyncController) containsMessageLocked(id string) bool {
	for _, m := range c.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Typing publishes or clears the typing signal for the selected conversation.
func (c *SyncController) Typing(ctx context.Context, typing bool) error {
	c.mu.Lock()
	conversationID, userID := c.selectedID, c.userID
	c.mu.Unlock()

	if c.deps.Presence == nil || userID == "" {
		return nil
	}
	if !typing || conversationID == "" {
		return c.deps.Presence.ClearTyping(ctx, userID)
	}
	return c.deps.Presence.SetTyping(ctx, userID, conversationID)
}

// MarkAsRead acknowledges the selected conversation explicitly.
func (c *SyncController) MarkAsRead(ctx context.Context) (int, error) {
	c.mu.Lock()
	conversationID, userID := c.selectedID, c.userID
	c.mu.Unlock()
	if conversationID == "" {
		return 0, errors.BadRequest("No conversation selected", nil)
	}
	return c.deps.Store.MarkAsRead(ctx, conversationID, userID)
}

// Directory exposes the session's conversation directory, nil before login.
func (c *SyncController) Directory() *ConversationDirectory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.directory
}

// Unmount releases every subscription and timer. The controller cannot be
// mounted again.
func (c *SyncController) Unmount() {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		c.out.Close()
		return
	}
	stale := c.resetSessionLocked()
	if c.unsubAuth != nil {
		stale = append(stale, c.unsubAuth)
		c.unsubAuth = nil
	}
	userID := c.userID
	ctx := c.ctx
	c.state = StateUninitialized
	c.userID = ""
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	stale.run()
	if userID != "" && c.deps.Presence != nil {
		if err := c.deps.Presence.GoOffline(context.WithoutCancel(ctx), userID); err != nil {
			logger.Warn("Presence Error: failed to go offline for %s: %v", userID, err)
		}
	}
	cancel()
	c.out.Close()
}

func (c *SyncController) Snapshot() ViewSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *SyncController) emitLocked() {
	snapshot := c.snapshotLocked()
	c.out.Submit(func() { c.onChange(snapshot) })
}

func (c *SyncController) snapshotLocked() ViewSnapshot {
	s := ViewSnapshot{
		State:         c.state,
		UserID:        c.userID,
		Viewport:      c.viewport,
		Loading:       c.state == StateAuthPending || c.state == StateLoading || c.state == StateResolvingDeepLink,
		TimedOut:      c.timedOut,
		Conversations: c.conversations,
		SelectedID:    c.selectedID,
		NotFound:      c.notFound,
		Error:         c.errorMsg,
	}
	if s.Conversations == nil {
		s.Conversations = []ConversationItem{}
	}

	for i := range c.conversations {
		item := c.conversations[i]
		if !item.Conversation.MutedFor(c.userID) {
			s.TotalUnread += item.Unread
		}
		if item.Conversation.ID == c.selectedID {
			s.Selected = &item
		}
	}

	s.Messages = make([]*entity.Message, 0, len(c.messages)+len(c.pending))
	s.Messages = append(s.Messages, c.messages...)
	if len(c.pending) > 0 {
		s.Messages = append(s.Messages, c.pending...)
		sort.SliceStable(s.Messages, func(i, j int) bool {
			return s.Messages[i].Timestamp.Before(s.Messages[j].Timestamp)
		})
	}

	if c.viewport == ViewportNarrow {
		s.ListVisible = c.panel == panelList
		s.DetailVisible = c.panel == panelDetail
	} else {
		s.ListVisible = true
		s.DetailVisible = true
	}

	if c.presence != nil {
		s.CounterpartPresence = c.presence.Clone()
		if c.deps.Presence != nil {
			s.CounterpartTyping = c.presence.IsTypingIn(c.selectedID, c.now(), c.deps.Presence.TypingWindow())
		}
	}
	return s
}

func userMessage(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Something went wrong"
}
