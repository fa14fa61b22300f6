package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"chathub/backend/internal/models"
)

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(
	ctx context.Context,
	chatID uuid.UUID,
	senderID uuid.UUID,
	messageType string,
	content string,
	attachment string,
) (*models.ChatMessage, error) {
	query := `
		INSERT INTO messages (chat_id, sender_id, message_type, content, attachment, status)
		VALUES ($1, $2, $3, $4, $5, 'sent')
		RETURNING id, chat_id, sender_id, message_type, COALESCE(content, ''),
		          COALESCE(attachment, ''), status, is_deleted, read_at, delivered_at, created_at
	`

	var message models.ChatMessage
	err := r.db.QueryRow(ctx, query, chatID, senderID, messageType, content, attachment).Scan(
		&message.ID, &message.ChatID, &message.SenderID, &message.MessageType, &message.Content,
		&message.Attachment, &message.Status, &message.IsDeleted,
		&message.ReadAt, &message.DeliveredAt, &message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *MessageRepository) GetByIDInChat(
	ctx context.Context,
	messageID uuid.UUID,
	chatID uuid.UUID,
) (*models.ChatMessage, error) {
	query := `
		SELECT id, chat_id, sender_id, message_type, COALESCE(content, ''),
		       COALESCE(attachment, ''), status, is_deleted, read_at, delivered_at, created_at
		FROM messages
		WHERE id = $1 AND chat_id = $2 AND is_deleted = FALSE
	`

	var message models.ChatMessage
	err := r.db.QueryRow(ctx, query, messageID, chatID).Scan(
		&message.ID, &message.ChatID, &message.SenderID, &message.MessageType, &message.Content,
		&message.Attachment, &message.Status, &message.IsDeleted,
		&message.ReadAt, &message.DeliveredAt, &message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// MarkRead adds the reader to the message's read-by set and moves the message
// status forward to read. The insert is the idempotency gate: a repeated
// receipt from the same reader returns the stored timestamp and reports
// newlyRead=false, leaving read_at untouched.
func (r *MessageRepository) MarkRead(
	ctx context.Context,
	messageID uuid.UUID,
	readerID uuid.UUID,
) (readAt time.Time, newlyRead bool, err error) {
	err = r.db.QueryRow(ctx, `
		INSERT INTO message_reads (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING read_at
	`, messageID, readerID).Scan(&readAt)
	if err == nil {
		newlyRead = true
		_, err = r.db.Exec(ctx, `
			UPDATE messages
			SET status = 'read', read_at = COALESCE(read_at, $2)
			WHERE id = $1
		`, messageID, readAt)
		return readAt, newlyRead, err
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, err
	}

	// Already in the read-by set; surface the original receipt time.
	err = r.db.QueryRow(ctx, `
		SELECT read_at FROM message_reads
		WHERE message_id = $1 AND user_id = $2
	`, messageID, readerID).Scan(&readAt)
	return readAt, false, err
}

// MarkDelivered moves a sent message forward to delivered. Messages already
// delivered or read are left alone: status transitions never move backward.
func (r *MessageRepository) MarkDelivered(ctx context.Context, messageID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET status = 'delivered', delivered_at = NOW()
		WHERE id = $1 AND status = 'sent'
	`, messageID)
	return err
}

func (r *MessageRepository) ListByChat(
	ctx context.Context,
	chatID uuid.UUID,
	limit int,
	offset int,
) ([]models.ChatMessage, int, error) {
	totalQuery := `
		SELECT COUNT(*)
		FROM messages
		WHERE chat_id = $1 AND is_deleted = FALSE
	`

	var total int
	if err := r.db.QueryRow(ctx, totalQuery, chatID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, chat_id, sender_id, message_type, COALESCE(content, ''),
		       COALESCE(attachment, ''), status, is_deleted, read_at, delivered_at, created_at
		FROM messages
		WHERE chat_id = $1 AND is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, chatID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var message models.ChatMessage
		if err := rows.Scan(
			&message.ID, &message.ChatID, &message.SenderID, &message.MessageType, &message.Content,
			&message.Attachment, &message.Status, &message.IsDeleted,
			&message.ReadAt, &message.DeliveredAt, &message.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// MarkMessagesRead bulk-acknowledges peer messages fetched through the history
// path. The reader's own messages are excluded on both statements.
func (r *MessageRepository) MarkMessagesRead(
	ctx context.Context,
	messageIDs []uuid.UUID,
	readerID uuid.UUID,
) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO message_reads (message_id, user_id)
		SELECT m.id, $2
		FROM messages m
		WHERE m.id = ANY($1) AND m.sender_id <> $2
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageIDs, readerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		UPDATE messages
		SET status = 'read', read_at = COALESCE(read_at, NOW())
		WHERE id = ANY($1)
		  AND sender_id <> $2
		  AND status <> 'read'
	`, messageIDs, readerID)
	return err
}

// SoftDelete flags a message deleted without removing the row. Only the
// sender may delete their message.
func (r *MessageRepository) SoftDelete(ctx context.Context, messageID, senderID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages
		SET is_deleted = TRUE
		WHERE id = $1 AND sender_id = $2 AND is_deleted = FALSE
	`, messageID, senderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
