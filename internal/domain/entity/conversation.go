package entity

import "time"

type ConversationType string

const (
	ConversationOneToOne     ConversationType = "one_to_one"
	ConversationAnnouncement ConversationType = "announcement"
	ConversationSupport      ConversationType = "support"
)

// LastMessage is the denormalized preview kept on the conversation document.
type LastMessage struct {
	Text      string      `json:"text" firestore:"text"`
	Preview   string      `json:"preview" firestore:"preview"`
	SenderID  string      `json:"sender_id" firestore:"senderId"`
	Timestamp time.Time   `json:"timestamp" firestore:"timestamp"`
	Type      MessageType `json:"type" firestore:"type"`
}

type Conversation struct {
	ID           string           `json:"id" firestore:"id"`
	Participants []string         `json:"participants" firestore:"participants"`
	ClientID     string           `json:"client_id,omitempty" firestore:"clientId,omitempty"`
	FreelancerID string           `json:"freelancer_id,omitempty" firestore:"freelancerId,omitempty"`
	AdminID      string           `json:"admin_id,omitempty" firestore:"adminId,omitempty"`
	Type         ConversationType `json:"type" firestore:"type"`
	ProjectID    string           `json:"project_id,omitempty" firestore:"projectId,omitempty"`
	ProposalID   string           `json:"proposal_id,omitempty" firestore:"proposalId,omitempty"`
	ContractID   string           `json:"contract_id,omitempty" firestore:"contractId,omitempty"`
	LastMessage  *LastMessage     `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	UnreadCount  map[string]int   `json:"unread_count" firestore:"unreadCount"`
	Pinned       bool             `json:"pinned" firestore:"pinned"`
	IsArchived   map[string]bool  `json:"is_archived,omitempty" firestore:"isArchived,omitempty"`
	IsMuted      map[string]bool  `json:"is_muted,omitempty" firestore:"isMuted,omitempty"`
	CreatedAt    time.Time        `json:"created_at" firestore:"createdAt"`
	UpdatedAt    time.Time        `json:"updated_at" firestore:"updatedAt"`
}

// UnreadFor never returns a negative count.
func (c *Conversation) UnreadFor(userID string) int {
	if c == nil || c.UnreadCount == nil {
		return 0
	}
	if n := c.UnreadCount[userID]; n > 0 {
		return n
	}
	return 0
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Counterpart returns the first participant that is not userID.
func (c *Conversation) Counterpart(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// LastActivity is the zero time for conversations without messages.
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessage == nil {
		return time.Time{}
	}
	return c.LastMessage.Timestamp
}

func (c *Conversation) ArchivedFor(userID string) bool {
	return c.IsArchived != nil && c.IsArchived[userID]
}

func (c *Conversation) MutedFor(userID string) bool {
	return c.IsMuted != nil && c.IsMuted[userID]
}

// Label is a human readable tag derived from whatever linkage the conversation carries.
func (c *Conversation) Label() string {
	switch {
	case c.ContractID != "":
		return "Contract " + c.ContractID
	case c.ProposalID != "":
		return "Proposal " + c.ProposalID
	case c.ProjectID != "":
		return "Project " + c.ProjectID
	case c.Type == ConversationSupport:
		return "Support"
	case c.Type == ConversationAnnouncement:
		return "Announcement"
	}
	return ""
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	out.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		out.UnreadCount[k] = v
	}
	out.IsArchived = cloneBoolMap(c.IsArchived)
	out.IsMuted = cloneBoolMap(c.IsMuted)
	return &out
}

func cloneBoolMap(in map[string]bool) map[string]bool {
	if in == nil {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
