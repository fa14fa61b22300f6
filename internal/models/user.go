package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	PasswordHash  string     `json:"-"`
	Role          string     `json:"role"`
	IsActive      bool       `json:"is_active"`
	IsOnline      bool       `json:"is_online"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	StatusMessage string     `json:"status_message"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Presence is the read-side projection of a user's online state.
type Presence struct {
	UserID        uuid.UUID  `json:"user_id"`
	IsOnline      bool       `json:"is_online"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	StatusMessage string     `json:"status_message"`
	LastSeenText  string     `json:"last_seen_text"`
}
