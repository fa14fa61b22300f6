package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"chathub/backend/internal/models"
)

const presenceKeyTTL = 5 * time.Minute

type presenceStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetOnline(ctx context.Context, userID uuid.UUID, online bool) error
	SetStatusMessage(ctx context.Context, userID uuid.UUID, status string) error
}

// PresenceService maintains the online/last-seen projection on the identity
// row, mirrored to a TTL'd Redis key when Redis is configured. All writes are
// best-effort: a failed presence write is logged and never interrupts the
// connection lifecycle.
type PresenceService struct {
	store presenceStore
	redis *redis.Client
}

func NewPresenceService(store presenceStore, redisClient *redis.Client) *PresenceService {
	return &PresenceService{store: store, redis: redisClient}
}

func (s *PresenceService) SetOnline(ctx context.Context, userID uuid.UUID, online bool) {
	if err := s.store.SetOnline(ctx, userID, online); err != nil {
		log.Printf("presence: set online=%t for %s: %v", online, userID, err)
	}

	if s.redis == nil {
		return
	}
	key := presenceKey(userID)
	var err error
	if online {
		err = s.redis.Set(ctx, key, "1", presenceKeyTTL).Err()
	} else {
		err = s.redis.Del(ctx, key).Err()
	}
	if err != nil {
		log.Printf("presence: redis key update for %s: %v", userID, err)
	}
}

func (s *PresenceService) SetStatusMessage(ctx context.Context, userID uuid.UUID, status string) {
	if err := s.store.SetStatusMessage(ctx, userID, status); err != nil {
		log.Printf("presence: set status message for %s: %v", userID, err)
	}
}

func (s *PresenceService) GetPresence(ctx context.Context, userID uuid.UUID) (*models.Presence, error) {
	user, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &models.Presence{
		UserID:        user.ID,
		IsOnline:      user.IsOnline,
		LastSeen:      user.LastSeen,
		StatusMessage: user.StatusMessage,
		LastSeenText:  FormatLastSeen(user.LastSeen),
	}, nil
}

func presenceKey(userID uuid.UUID) string {
	return "presence:" + userID.String()
}

// FormatLastSeen renders a WhatsApp-style relative last-seen string.
func FormatLastSeen(lastSeen *time.Time) string {
	return formatLastSeenAt(lastSeen, time.Now())
}

func formatLastSeenAt(lastSeen *time.Time, now time.Time) string {
	if lastSeen == nil {
		return "last seen recently"
	}

	delta := now.Sub(*lastSeen)
	switch {
	case delta < time.Minute:
		return "online just now"
	case delta < time.Hour:
		return fmt.Sprintf("last seen %d minutes ago", int(delta.Minutes()))
	case delta < 24*time.Hour:
		return "last seen today at " + lastSeen.Format("03:04 PM")
	case delta < 48*time.Hour:
		return "last seen yesterday at " + lastSeen.Format("03:04 PM")
	default:
		return "last seen on " + lastSeen.Format("Jan 02, 2006 at 03:04 PM")
	}
}
