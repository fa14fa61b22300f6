package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"chathub/backend/internal/models"
)

type ChatRepository struct {
	db DBTX
}

func NewChatRepository(db DBTX) *ChatRepository {
	return &ChatRepository{db: db}
}

// PairKey canonicalizes an unordered user pair so a private chat maps to
// exactly one key regardless of which side initiated it.
func PairKey(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if strings.Compare(first, second) > 0 {
		first, second = second, first
	}
	return first + ":" + second
}

// GetOrCreatePrivate resolves the single private chat for a user pair,
// creating it on first contact. The unique index on pair_key serializes two
// connections racing to create the same chat: both upserts land on the same
// row.
func (r *ChatRepository) GetOrCreatePrivate(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error) {
	query := `
		INSERT INTO chats (chat_type, pair_key)
		VALUES ('private', $1)
		ON CONFLICT (pair_key)
		DO UPDATE SET updated_at = chats.updated_at
		RETURNING id, chat_type, COALESCE(name, ''), owner_id, last_message_id, created_at, updated_at
	`

	var chat models.Chat
	err := r.db.QueryRow(ctx, query, PairKey(userA, userB)).Scan(
		&chat.ID, &chat.ChatType, &chat.Name, &chat.OwnerID, &chat.LastMessageID,
		&chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *ChatRepository) CreateGroup(ctx context.Context, name string, ownerID uuid.UUID) (*models.Chat, error) {
	query := `
		INSERT INTO chats (chat_type, name, owner_id)
		VALUES ('group', $1, $2)
		RETURNING id, chat_type, COALESCE(name, ''), owner_id, last_message_id, created_at, updated_at
	`

	var chat models.Chat
	err := r.db.QueryRow(ctx, query, name, ownerID).Scan(
		&chat.ID, &chat.ChatType, &chat.Name, &chat.OwnerID, &chat.LastMessageID,
		&chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// UpdateName renames a group chat. Private chats are unnamed and not
// renameable; the query matches group rows only.
func (r *ChatRepository) UpdateName(ctx context.Context, chatID uuid.UUID, name string) (*models.Chat, error) {
	query := `
		UPDATE chats
		SET name = $2, updated_at = NOW()
		WHERE id = $1 AND chat_type = 'group'
		RETURNING id, chat_type, COALESCE(name, ''), owner_id, last_message_id, created_at, updated_at
	`

	var chat models.Chat
	err := r.db.QueryRow(ctx, query, chatID, name).Scan(
		&chat.ID, &chat.ChatType, &chat.Name, &chat.OwnerID, &chat.LastMessageID,
		&chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *ChatRepository) GetByIDForParticipant(
	ctx context.Context,
	chatID uuid.UUID,
	participantID uuid.UUID,
) (*models.Chat, error) {
	query := `
		SELECT c.id, c.chat_type, COALESCE(c.name, ''), c.owner_id, c.last_message_id,
		       c.created_at, c.updated_at
		FROM chats c
		JOIN participants p ON p.chat_id = c.id
		WHERE c.id = $1 AND p.user_id = $2
	`

	var chat models.Chat
	err := r.db.QueryRow(ctx, query, chatID, participantID).Scan(
		&chat.ID, &chat.ChatType, &chat.Name, &chat.OwnerID, &chat.LastMessageID,
		&chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *ChatRepository) ListForParticipant(
	ctx context.Context,
	participantID uuid.UUID,
) ([]models.ChatSummary, error) {
	query := `
		SELECT
			c.id,
			c.chat_type,
			COALESCE(c.name, ''),
			c.owner_id,
			c.last_message_id,
			c.created_at,
			c.updated_at,
			lm.id,
			lm.chat_id,
			lm.sender_id,
			lm.message_type,
			lm.content,
			lm.status,
			lm.created_at,
			COALESCE(uc.unread_count, 0)
		FROM chats c
		JOIN participants me ON me.chat_id = c.id AND me.user_id = $1
		LEFT JOIN LATERAL (
			SELECT id, chat_id, sender_id, message_type, COALESCE(content, '') AS content,
			       status, created_at
			FROM messages
			WHERE chat_id = c.id AND is_deleted = FALSE
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages m
			WHERE m.chat_id = c.id
			  AND m.sender_id <> $1
			  AND m.is_deleted = FALSE
			  AND NOT EXISTS (
				SELECT 1 FROM message_reads mr
				WHERE mr.message_id = m.id AND mr.user_id = $1
			  )
		) uc ON TRUE
		ORDER BY COALESCE(lm.created_at, c.updated_at, c.created_at) DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ChatSummary, 0)
	for rows.Next() {
		var summary models.ChatSummary
		var messageID *uuid.UUID
		var messageChatID *uuid.UUID
		var messageSenderID *uuid.UUID
		var messageType sql.NullString
		var messageContent sql.NullString
		var messageStatus sql.NullString
		var messageCreatedAt sql.NullTime

		if err := rows.Scan(
			&summary.ID,
			&summary.ChatType,
			&summary.Name,
			&summary.OwnerID,
			&summary.LastMessageID,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&messageID,
			&messageChatID,
			&messageSenderID,
			&messageType,
			&messageContent,
			&messageStatus,
			&messageCreatedAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		if messageID != nil {
			summary.LastMessage = &models.ChatMessage{
				ID:          *messageID,
				ChatID:      *messageChatID,
				SenderID:    *messageSenderID,
				MessageType: messageType.String,
				Content:     messageContent.String,
				Status:      messageStatus.String,
				CreatedAt:   messageCreatedAt.Time,
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

// AddParticipant is idempotent: re-adding an existing member is a no-op and
// does not touch their role or flags.
func (r *ChatRepository) AddParticipant(
	ctx context.Context,
	chatID uuid.UUID,
	userID uuid.UUID,
	role string,
) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO participants (chat_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, user_id) DO NOTHING
	`, chatID, userID, role)
	return err
}

func (r *ChatRepository) RemoveParticipant(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM participants
		WHERE chat_id = $1 AND user_id = $2
	`, chatID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ChatRepository) GetParticipant(ctx context.Context, chatID, userID uuid.UUID) (*models.Participant, error) {
	query := `
		SELECT p.id, p.chat_id, p.user_id, u.username, p.role, p.joined_at,
		       p.is_muted, p.is_pinned, p.is_archived
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.chat_id = $1 AND p.user_id = $2
	`

	var participant models.Participant
	err := r.db.QueryRow(ctx, query, chatID, userID).Scan(
		&participant.ID, &participant.ChatID, &participant.UserID, &participant.Username,
		&participant.Role, &participant.JoinedAt,
		&participant.IsMuted, &participant.IsPinned, &participant.IsArchived,
	)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// UpdateParticipantSettings applies a partial update to one member's own
// flags. No row means the user is not in the chat.
func (r *ChatRepository) UpdateParticipantSettings(
	ctx context.Context,
	chatID uuid.UUID,
	userID uuid.UUID,
	update models.ChatSettingsUpdate,
) (*models.Participant, error) {
	query := `
		UPDATE participants p
		SET is_muted    = COALESCE($3, p.is_muted),
		    is_pinned   = COALESCE($4, p.is_pinned),
		    is_archived = COALESCE($5, p.is_archived)
		FROM users u
		WHERE p.chat_id = $1 AND p.user_id = $2 AND u.id = p.user_id
		RETURNING p.id, p.chat_id, p.user_id, u.username, p.role, p.joined_at,
		          p.is_muted, p.is_pinned, p.is_archived
	`

	var participant models.Participant
	err := r.db.QueryRow(ctx, query, chatID, userID, update.IsMuted, update.IsPinned, update.IsArchived).Scan(
		&participant.ID, &participant.ChatID, &participant.UserID, &participant.Username,
		&participant.Role, &participant.JoinedAt,
		&participant.IsMuted, &participant.IsPinned, &participant.IsArchived,
	)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *ChatRepository) ListParticipants(ctx context.Context, chatID uuid.UUID) ([]models.Participant, error) {
	query := `
		SELECT p.id, p.chat_id, p.user_id, u.username, p.role, p.joined_at,
		       p.is_muted, p.is_pinned, p.is_archived
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.chat_id = $1
		ORDER BY p.joined_at
	`

	rows, err := r.db.Query(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		var participant models.Participant
		if err := rows.Scan(
			&participant.ID, &participant.ChatID, &participant.UserID, &participant.Username,
			&participant.Role, &participant.JoinedAt,
			&participant.IsMuted, &participant.IsPinned, &participant.IsArchived,
		); err != nil {
			return nil, err
		}
		participants = append(participants, participant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *ChatRepository) SetLastMessage(ctx context.Context, chatID, messageID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE chats
		SET last_message_id = $2, updated_at = NOW()
		WHERE id = $1
	`, chatID, messageID)
	return err
}
