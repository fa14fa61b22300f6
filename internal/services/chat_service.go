package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chathub/backend/internal/models"
	"chathub/backend/internal/repository"
)

type userReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type ChatService struct {
	db          *pgxpool.Pool
	chatRepo    *repository.ChatRepository
	messageRepo *repository.MessageRepository
	userRepo    userReader
}

func NewChatService(
	db *pgxpool.Pool,
	chatRepo *repository.ChatRepository,
	messageRepo *repository.MessageRepository,
	userRepo userReader,
) *ChatService {
	return &ChatService{
		db:          db,
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
	}
}

// GetOrCreatePrivateChat resolves the single private chat between the actor
// and a peer, creating it (with both memberships) on first contact. Safe to
// call concurrently from both ends of the pair.
func (s *ChatService) GetOrCreatePrivateChat(
	ctx context.Context,
	actorID uuid.UUID,
	peerID uuid.UUID,
) (*models.Chat, error) {
	if peerID == uuid.Nil || peerID == actorID {
		return nil, ErrInvalidInput
	}

	peer, err := s.userRepo.GetByID(ctx, peerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !peer.IsActive {
		return nil, ErrUserNotFound
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txChatRepo := repository.NewChatRepository(tx)

	chat, err := txChatRepo.GetOrCreatePrivate(ctx, actorID, peerID)
	if err != nil {
		return nil, err
	}
	if err := txChatRepo.AddParticipant(ctx, chat.ID, actorID, models.ParticipantRoleMember); err != nil {
		return nil, err
	}
	if err := txChatRepo.AddParticipant(ctx, chat.ID, peerID, models.ParticipantRoleMember); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return chat, nil
}

// CreateGroupChat creates a group chat owned by the actor, who joins as
// admin. Listed members join with role member; the creator is skipped if
// redundantly listed.
func (s *ChatService) CreateGroupChat(
	ctx context.Context,
	ownerID uuid.UUID,
	name string,
	memberIDs []uuid.UUID,
) (*models.ChatDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txChatRepo := repository.NewChatRepository(tx)

	chat, err := txChatRepo.CreateGroup(ctx, name, ownerID)
	if err != nil {
		return nil, err
	}
	if err := txChatRepo.AddParticipant(ctx, chat.ID, ownerID, models.ParticipantRoleAdmin); err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]struct{}{ownerID: {}}
	for _, memberID := range memberIDs {
		if _, dup := seen[memberID]; dup || memberID == uuid.Nil {
			continue
		}
		seen[memberID] = struct{}{}
		if err := txChatRepo.AddParticipant(ctx, chat.ID, memberID, models.ParticipantRoleMember); err != nil {
			return nil, err
		}
	}

	participants, err := txChatRepo.ListParticipants(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &models.ChatDetail{Chat: *chat, Participants: participants}, nil
}

func (s *ChatService) ListChats(ctx context.Context, actorID uuid.UUID) ([]models.ChatSummary, error) {
	return s.chatRepo.ListForParticipant(ctx, actorID)
}

func (s *ChatService) GetChat(ctx context.Context, actorID, chatID uuid.UUID) (*models.ChatDetail, error) {
	chat, err := s.chatRepo.GetByIDForParticipant(ctx, chatID, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}

	participants, err := s.chatRepo.ListParticipants(ctx, chatID)
	if err != nil {
		return nil, err
	}

	return &models.ChatDetail{Chat: *chat, Participants: participants}, nil
}

// SendMessage persists an inbound message and advances the chat's
// last-message pointer. Membership was established when the sender bound to
// the chat; it is intentionally not re-checked per message.
func (s *ChatService) SendMessage(
	ctx context.Context,
	senderID uuid.UUID,
	chatID uuid.UUID,
	text string,
	attachment string,
) (*models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	attachment = strings.TrimSpace(attachment)
	if text == "" && attachment == "" {
		return nil, ErrInvalidInput
	}

	messageType := models.MessageTypeText
	if text == "" {
		messageType = models.MessageTypeFile
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txChatRepo := repository.NewChatRepository(tx)

	message, err := txMessageRepo.Create(ctx, chatID, senderID, messageType, text, attachment)
	if err != nil {
		return nil, err
	}
	if err := txChatRepo.SetLastMessage(ctx, chatID, message.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return message, nil
}

// MarkMessageDelivered advances a peer's message from sent to delivered.
// Later stages are never moved backward; acknowledging one's own message is
// rejected.
func (s *ChatService) MarkMessageDelivered(
	ctx context.Context,
	recipientID uuid.UUID,
	chatID uuid.UUID,
	messageID uuid.UUID,
) error {
	message, err := s.messageRepo.GetByIDInChat(ctx, messageID, chatID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMessageNotFound
		}
		return err
	}
	if message.SenderID == recipientID {
		return ErrInvalidInput
	}

	return s.messageRepo.MarkDelivered(ctx, messageID)
}

// MarkMessageRead adds the reader to the message's read-by set. Acknowledging
// the same message twice returns the original receipt.
func (s *ChatService) MarkMessageRead(
	ctx context.Context,
	readerID uuid.UUID,
	chatID uuid.UUID,
	messageID uuid.UUID,
) (*models.ReadReceipt, error) {
	if _, err := s.messageRepo.GetByIDInChat(ctx, messageID, chatID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	readAt, _, err := s.messageRepo.MarkRead(ctx, messageID, readerID)
	if err != nil {
		return nil, err
	}

	return &models.ReadReceipt{
		MessageID: messageID,
		ReaderID:  readerID,
		ReadAt:    readAt,
	}, nil
}

// ListMessages returns one page of chat history and marks the fetched peer
// messages read, in one transaction.
func (s *ChatService) ListMessages(
	ctx context.Context,
	actorID uuid.UUID,
	chatID uuid.UUID,
	page int,
	limit int,
) ([]models.ChatMessage, int, error) {
	if page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}

	if _, err := s.chatRepo.GetByIDForParticipant(ctx, chatID, actorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrChatNotFound
		}
		return nil, 0, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)

	messages, total, err := txMessageRepo.ListByChat(ctx, chatID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}

	messageIDs := make([]uuid.UUID, 0, len(messages))
	for _, message := range messages {
		messageIDs = append(messageIDs, message.ID)
	}

	if err := txMessageRepo.MarkMessagesRead(ctx, messageIDs, actorID); err != nil {
		return nil, 0, err
	}

	for i := range messages {
		if messages[i].SenderID != actorID {
			messages[i].Status = models.MessageStatusRead
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// UpdateGroupName renames a group chat. Only group admins may rename.
func (s *ChatService) UpdateGroupName(
	ctx context.Context,
	actorID uuid.UUID,
	chatID uuid.UUID,
	name string,
) (*models.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	_, actor, err := s.requireGroupParticipant(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.ParticipantRoleAdmin {
		return nil, ErrForbidden
	}

	chat, err := s.chatRepo.UpdateName(ctx, chatID, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return chat, nil
}

// UpdateChatSettings updates the actor's own mute/pin/archive flags for one
// chat. The flags are per member and never visible to the other side.
func (s *ChatService) UpdateChatSettings(
	ctx context.Context,
	actorID uuid.UUID,
	chatID uuid.UUID,
	update models.ChatSettingsUpdate,
) (*models.Participant, error) {
	participant, err := s.chatRepo.UpdateParticipantSettings(ctx, chatID, actorID, update)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return participant, nil
}

// AddGroupMember adds a user to a group chat. Only group admins may add
// members.
func (s *ChatService) AddGroupMember(
	ctx context.Context,
	actorID uuid.UUID,
	chatID uuid.UUID,
	userID uuid.UUID,
) error {
	chat, actor, err := s.requireGroupParticipant(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if actor.Role != models.ParticipantRoleAdmin {
		return ErrForbidden
	}

	target, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if !target.IsActive {
		return ErrUserNotFound
	}

	return s.chatRepo.AddParticipant(ctx, chat.ID, userID, models.ParticipantRoleMember)
}

// RemoveGroupMember removes a user from a group chat. Admins may remove
// anyone; members may only remove themselves (leave).
func (s *ChatService) RemoveGroupMember(
	ctx context.Context,
	actorID uuid.UUID,
	chatID uuid.UUID,
	userID uuid.UUID,
) error {
	_, actor, err := s.requireGroupParticipant(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	if actor.Role != models.ParticipantRoleAdmin && actorID != userID {
		return ErrForbidden
	}

	removed, err := s.chatRepo.RemoveParticipant(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrUserNotFound
	}
	return nil
}

// DeleteMessage soft-deletes the actor's own message.
func (s *ChatService) DeleteMessage(ctx context.Context, actorID, messageID uuid.UUID) error {
	deleted, err := s.messageRepo.SoftDelete(ctx, messageID, actorID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrMessageNotFound
	}
	return nil
}

func (s *ChatService) requireGroupParticipant(
	ctx context.Context,
	chatID uuid.UUID,
	actorID uuid.UUID,
) (*models.Chat, *models.Participant, error) {
	chat, err := s.chatRepo.GetByIDForParticipant(ctx, chatID, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrChatNotFound
		}
		return nil, nil, err
	}
	if chat.ChatType != models.ChatTypeGroup {
		return nil, nil, ErrInvalidInput
	}

	actor, err := s.chatRepo.GetParticipant(ctx, chatID, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrForbidden
		}
		return nil, nil, err
	}

	return chat, actor, nil
}
