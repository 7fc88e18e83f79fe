package entity

import "time"

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageFile     MessageType = "file"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
	MessageLocation MessageType = "location"
	MessageContact  MessageType = "contact"
	MessageSystem   MessageType = "system"
	MessageCallLog  MessageType = "call_log"
)

type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

type SenderType string

const (
	SenderClient     SenderType = "client"
	SenderFreelancer SenderType = "freelancer"
	SenderAdmin      SenderType = "admin"
	SenderSystem     SenderType = "system"
)

type Reaction struct {
	UserID    string    `json:"user_id" firestore:"userId"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

type Location struct {
	Latitude  float64 `json:"latitude" firestore:"latitude"`
	Longitude float64 `json:"longitude" firestore:"longitude"`
	Address   string  `json:"address,omitempty" firestore:"address,omitempty"`
}

type Message struct {
	ID             string        `json:"id" firestore:"id"`
	ConversationID string        `json:"conversation_id" firestore:"conversationId"`
	SenderID       string        `json:"sender_id" firestore:"senderId"`
	SenderType     SenderType    `json:"sender_type" firestore:"senderType"`
	Text           string        `json:"text" firestore:"text"`
	Type           MessageType   `json:"type" firestore:"type"`
	Status         MessageStatus `json:"status" firestore:"status"`
	Timestamp      time.Time     `json:"timestamp" firestore:"timestamp,serverTimestamp"`

	ReadBy      map[string]time.Time `json:"read_by,omitempty" firestore:"readBy,omitempty"`
	DeliveredTo map[string]time.Time `json:"delivered_to,omitempty" firestore:"deliveredTo,omitempty"`

	Attachments []Attachment           `json:"attachments,omitempty" firestore:"attachments,omitempty"`
	Location    *Location              `json:"location,omitempty" firestore:"location,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" firestore:"metadata,omitempty"`

	IsReply          bool   `json:"is_reply,omitempty" firestore:"isReply,omitempty"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty" firestore:"replyToMessageId,omitempty"`

	IsEdited  bool       `json:"is_edited,omitempty" firestore:"isEdited,omitempty"`
	EditedAt  *time.Time `json:"edited_at,omitempty" firestore:"editedAt,omitempty"`
	IsDeleted bool       `json:"is_deleted,omitempty" firestore:"isDeleted,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" firestore:"deletedAt,omitempty"`

	Reactions map[string][]Reaction `json:"reactions,omitempty" firestore:"reactions,omitempty"`
}

func (m *Message) ReadByUser(userID string) bool {
	_, ok := m.ReadBy[userID]
	return ok
}

func (m *Message) DeliveredToUser(userID string) bool {
	_, ok := m.DeliveredTo[userID]
	return ok
}

// UnreadFor reports whether viewer still has to acknowledge m.
func (m *Message) UnreadFor(viewerID string) bool {
	return m.SenderID != viewerID && !m.ReadByUser(viewerID)
}

// Preview is the short text shown in conversation lists.
func (m *Message) Preview() string {
	const max = 80
	if m.IsDeleted {
		return "Message deleted"
	}
	if m.Text != "" {
		r := []rune(m.Text)
		if len(r) > max {
			return string(r[:max]) + "..."
		}
		return m.Text
	}
	switch m.Type {
	case MessageImage:
		return "Sent an image"
	case MessageVideo:
		return "Sent a video"
	case MessageAudio:
		return "Sent a voice message"
	case MessageFile:
		return "Sent a file"
	case MessageLocation:
		return "Shared a location"
	case MessageContact:
		return "Shared a contact"
	}
	return ""
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	out.ReadBy = cloneTimeMap(m.ReadBy)
	out.DeliveredTo = cloneTimeMap(m.DeliveredTo)
	out.Attachments = append([]Attachment(nil), m.Attachments...)
	if m.Location != nil {
		loc := *m.Location
		out.Location = &loc
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	if m.Reactions != nil {
		out.Reactions = make(map[string][]Reaction, len(m.Reactions))
		for k, v := range m.Reactions {
			out.Reactions[k] = append([]Reaction(nil), v...)
		}
	}
	return &out
}

func cloneTimeMap(in map[string]time.Time) map[string]time.Time {
	if in == nil {
		return nil
	}
	out := make(map[string]time.Time, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
