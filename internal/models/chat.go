package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ChatTypePrivate = "private"
	ChatTypeGroup   = "group"

	ParticipantRoleMember = "member"
	ParticipantRoleAdmin  = "admin"

	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"

	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)

type Chat struct {
	ID            uuid.UUID  `json:"id"`
	ChatType      string     `json:"chat_type"`
	Name          string     `json:"name,omitempty"`
	OwnerID       *uuid.UUID `json:"owner_id,omitempty"`
	LastMessageID *uuid.UUID `json:"last_message_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Participant struct {
	ID         uuid.UUID `json:"id"`
	ChatID     uuid.UUID `json:"chat_id"`
	UserID     uuid.UUID `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	Role       string    `json:"role"`
	JoinedAt   time.Time `json:"joined_at"`
	IsMuted    bool      `json:"is_muted"`
	IsPinned   bool      `json:"is_pinned"`
	IsArchived bool      `json:"is_archived"`
}

type ChatMessage struct {
	ID          uuid.UUID  `json:"id"`
	ChatID      uuid.UUID  `json:"chat_id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	MessageType string     `json:"message_type"`
	Content     string     `json:"content"`
	Attachment  string     `json:"attachment,omitempty"`
	Status      string     `json:"status"`
	IsDeleted   bool       `json:"is_deleted"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type ChatSummary struct {
	Chat
	LastMessage *ChatMessage `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}

type ChatDetail struct {
	Chat
	Participants []Participant `json:"participants"`
}

// ChatSettingsUpdate is a partial update of a participant's own per-chat
// flags. Nil fields keep their stored value.
type ChatSettingsUpdate struct {
	IsMuted    *bool `json:"is_muted,omitempty"`
	IsPinned   *bool `json:"is_pinned,omitempty"`
	IsArchived *bool `json:"is_archived,omitempty"`
}

// ReadReceipt records one reader acknowledging one message. Repeated
// acknowledgements from the same reader resolve to the original receipt.
type ReadReceipt struct {
	MessageID      uuid.UUID `json:"message_id"`
	ReaderID       uuid.UUID `json:"reader_id"`
	ReaderUsername string    `json:"reader_username"`
	ReadAt         time.Time `json:"read_at"`
}
