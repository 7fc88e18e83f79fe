package websocket

import (
	"encoding/json"
	"time"

	"freelancehub/pkg/errors"
)

// Outbound frame types
const (
	FrameState = "state"
	FrameAck   = "ack"
	FrameError = "error"
	FramePong  = "pong"
)

// Client commands
const (
	CommandPing     = "ping"
	CommandSelect   = "select"
	CommandBack     = "back"
	CommandViewport = "viewport"
	CommandTyping   = "typing"
	CommandSend     = "send"
	CommandDeepLink = "deep_link"
	CommandMarkRead = "mark_read"
	CommandPresence = "presence"
	CommandAuth     = "auth"
)

// Command is a frame sent by the client. RequestID is echoed on the reply.
type Command struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the command payload into v.
func (c *Command) Decode(v interface{}) error {
	if len(c.Data) == 0 {
		return errors.BadRequest("Missing data for "+c.Type, nil)
	}
	if err := json.Unmarshal(c.Data, v); err != nil {
		return errors.BadRequest("Invalid data for "+c.Type, err)
	}
	return nil
}

type Frame struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *FrameErr   `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type FrameErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SelectData struct {
	ConversationID string `json:"conversation_id"`
}

type ViewportData struct {
	Viewport string `json:"viewport"`
}

type TypingData struct {
	Typing bool `json:"typing"`
}

// InlineAttachment carries file content in the frame itself, base64 encoded.
type InlineAttachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content"`
}

type SendData struct {
	Text        string             `json:"text"`
	ReplyTo     string             `json:"reply_to,omitempty"`
	Attachments []InlineAttachment `json:"attachments,omitempty"`
}

type DeepLinkData struct {
	CounterpartID string `json:"counterpart_id"`
	ProposalID    string `json:"proposal_id,omitempty"`
}

type PresenceData struct {
	Status    string `json:"status"`
	Platform  string `json:"platform,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type AuthData struct {
	Token string `json:"token"`
}

func NewFrame(frameType, requestID string, data interface{}) []byte {
	frame, err := json.Marshal(Frame{
		Type:      frameType,
		RequestID: requestID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return NewErrorFrame(requestID, errors.Internal("Failed to encode frame", err))
	}
	return frame
}

// NewErrorFrame reports err with the code and message of an AppError.
func NewErrorFrame(requestID string, err error) []byte {
	info := &FrameErr{Code: errors.CodeInternal, Message: "An unexpected error occurred"}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		info = &FrameErr{Code: appErr.Code, Message: appErr.Message}
	}
	frame, _ := json.Marshal(Frame{
		Type:      FrameError,
		RequestID: requestID,
		Error:     info,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return frame
}
