package entity

import "time"

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceAway, PresenceBusy, PresenceOffline:
		return true
	}
	return false
}

type TypingIndicator struct {
	ConversationID string    `json:"conversation_id" firestore:"conversationId"`
	Timestamp      time.Time `json:"timestamp" firestore:"timestamp"`
}

type DeviceInfo struct {
	Platform  string `json:"platform,omitempty" firestore:"platform,omitempty"`
	UserAgent string `json:"user_agent,omitempty" firestore:"userAgent,omitempty"`
}

type Presence struct {
	UserID     string           `json:"user_id" firestore:"userId"`
	Status     PresenceStatus   `json:"status" firestore:"status"`
	LastActive time.Time        `json:"last_active" firestore:"lastActive"`
	Device     *DeviceInfo      `json:"device,omitempty" firestore:"device,omitempty"`
	TypingIn   *TypingIndicator `json:"typing_in" firestore:"typingIn"`
}

// IsTypingIn reports a typing signal for conversationID no older than window.
func (p *Presence) IsTypingIn(conversationID string, now time.Time, window time.Duration) bool {
	if p == nil || p.TypingIn == nil || p.TypingIn.ConversationID != conversationID {
		return false
	}
	return now.Sub(p.TypingIn.Timestamp) <= window
}

func (p *Presence) Clone() *Presence {
	if p == nil {
		return nil
	}
	out := *p
	if p.Device != nil {
		d := *p.Device
		out.Device = &d
	}
	if p.TypingIn != nil {
		t := *p.TypingIn
		out.TypingIn = &t
	}
	return &out
}
