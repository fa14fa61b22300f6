package chatws

import (
	"time"

	"github.com/google/uuid"
)

// Inbound event types. Unrecognized types are ignored so newer clients can
// send events this server does not know yet.
const (
	EventMessageSend      = "message.send"
	EventMessageRead      = "message.read"
	EventMessageDelivered = "message.delivered"
	EventUserTyping       = "user.typing"
	EventUserStopTyping   = "user.stop_typing"
	EventUserStatus       = "user.status"
)

// Outbound event types.
const (
	EventMessageReceive   = "message.receive"
	EventUserOnline       = "user.online"
	EventUserOffline      = "user.offline"
	EventUserStatusUpdate = "user.status.update"
	EventError            = "error"
)

type inboundEvent struct {
	Type          string `json:"type"`
	Text          string `json:"text"`
	Attachment    string `json:"attachment"`
	MessageID     string `json:"message_id"`
	StatusMessage string `json:"status_message"`
}

type MessageReceiveEvent struct {
	Type        string `json:"type"`
	ChatID      string `json:"chat_id"`
	MessageID   string `json:"message_id"`
	Sender      string `json:"sender"`
	SenderID    string `json:"sender_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type MessageDeliveredEvent struct {
	Type        string `json:"type"`
	ChatID      string `json:"chat_id"`
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
}

type MessageReadEvent struct {
	Type           string `json:"type"`
	ChatID         string `json:"chat_id"`
	MessageID      string `json:"message_id"`
	ReaderID       string `json:"reader_id"`
	ReaderUsername string `json:"reader_username"`
	ReadAt         string `json:"read_at"`
}

// StatusEvent carries user.online, user.offline, and user.status.update. The
// status text itself is not broadcast; clients re-fetch it through the
// presence read path.
type StatusEvent struct {
	Type      string  `json:"type"`
	UserID    string  `json:"user_id"`
	ChatID    string  `json:"chat_id"`
	MessageID *string `json:"message_id"`
	Timestamp string  `json:"timestamp"`
}

type TypingEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
	ChatID   string `json:"chat_id"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewStatusEvent(eventType string, userID, chatID uuid.UUID) StatusEvent {
	return StatusEvent{
		Type:      eventType,
		UserID:    userID.String(),
		ChatID:    chatID.String(),
		Timestamp: formatTimestamp(time.Now()),
	}
}

func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
