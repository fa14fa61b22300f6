package handlers

import (
	"context"
	"errors"
	"log"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"chathub/backend/internal/models"
	"chathub/backend/internal/services"
	chatws "chathub/backend/internal/websocket"
	"chathub/backend/pkg/utils"
)

// WebSocket close codes for refused connections.
const (
	closeUnauthenticated = 4001
	closeBadPeerID       = 4002
	closeChatUnavailable = 4003
)

type chatApplicationService interface {
	ListChats(ctx context.Context, actorID uuid.UUID) ([]models.ChatSummary, error)
	GetOrCreatePrivateChat(ctx context.Context, actorID, peerID uuid.UUID) (*models.Chat, error)
	CreateGroupChat(ctx context.Context, ownerID uuid.UUID, name string, memberIDs []uuid.UUID) (*models.ChatDetail, error)
	GetChat(ctx context.Context, actorID, chatID uuid.UUID) (*models.ChatDetail, error)
	UpdateGroupName(ctx context.Context, actorID, chatID uuid.UUID, name string) (*models.Chat, error)
	UpdateChatSettings(ctx context.Context, actorID, chatID uuid.UUID, update models.ChatSettingsUpdate) (*models.Participant, error)
	ListMessages(ctx context.Context, actorID, chatID uuid.UUID, page, limit int) ([]models.ChatMessage, int, error)
	AddGroupMember(ctx context.Context, actorID, chatID, userID uuid.UUID) error
	RemoveGroupMember(ctx context.Context, actorID, chatID, userID uuid.UUID) error
	DeleteMessage(ctx context.Context, actorID, messageID uuid.UUID) error
	SendMessage(ctx context.Context, senderID, chatID uuid.UUID, text, attachment string) (*models.ChatMessage, error)
	MarkMessageRead(ctx context.Context, readerID, chatID, messageID uuid.UUID) (*models.ReadReceipt, error)
	MarkMessageDelivered(ctx context.Context, recipientID, chatID, messageID uuid.UUID) error
}

type userResolver interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type presenceTracker interface {
	SetOnline(ctx context.Context, userID uuid.UUID, online bool)
	SetStatusMessage(ctx context.Context, userID uuid.UUID, status string)
}

type ChatHandler struct {
	service   chatApplicationService
	userRepo  userResolver
	presence  presenceTracker
	hub       *chatws.Hub
	jwtSecret string
}

func NewChatHandler(
	service chatApplicationService,
	userRepo userResolver,
	presence presenceTracker,
	hub *chatws.Hub,
	jwtSecret string,
) *ChatHandler {
	return &ChatHandler{
		service:   service,
		userRepo:  userRepo,
		presence:  presence,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

type createPrivateChatRequest struct {
	UserID string `json:"user_id"`
}

type createGroupChatRequest struct {
	Name    string   `json:"name"`
	UserIDs []string `json:"user_ids"`
}

type participantRequest struct {
	UserID string `json:"user_id"`
}

type renameChatRequest struct {
	Name string `json:"name"`
}

func (h *ChatHandler) ListChats(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	chats, err := h.service.ListChats(c.Context(), actorID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"chats": chats})
}

func (h *ChatHandler) CreatePrivateChat(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createPrivateChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	peerID, err := uuid.Parse(req.UserID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	chat, err := h.service.GetOrCreatePrivateChat(c.Context(), actorID, peerID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"chat": chat})
}

func (h *ChatHandler) CreateGroupChat(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createGroupChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	memberIDs := make([]uuid.UUID, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		memberID, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
		}
		memberIDs = append(memberIDs, memberID)
	}

	chat, err := h.service.CreateGroupChat(c.Context(), actorID, req.Name, memberIDs)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"chat": chat})
}

func (h *ChatHandler) GetChat(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid chat id"})
	}

	chat, err := h.service.GetChat(c.Context(), actorID, chatID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"chat": chat})
}

func (h *ChatHandler) UpdateChat(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid chat id"})
	}

	var req renameChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	chat, err := h.service.UpdateGroupName(c.Context(), actorID, chatID, req.Name)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"chat": chat})
}

func (h *ChatHandler) UpdateChatSettings(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid chat id"})
	}

	var update models.ChatSettingsUpdate
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	participant, err := h.service.UpdateChatSettings(c.Context(), actorID, chatID, update)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"participant": participant})
}

func (h *ChatHandler) AddParticipant(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid chat id"})
	}

	var req participantRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	if err := h.service.AddGroupMember(c.Context(), actorID, chatID, userID); err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Participant added"})
}

func (h *ChatHandler) RemoveParticipant(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid chat id"})
	}

	userID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	if err := h.service.RemoveGroupMember(c.Context(), actorID, chatID, userID); err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Participant removed"})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	chatID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid chat id"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, total, err := h.service.ListMessages(c.Context(), actorID, chatID, page, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	if err := h.service.DeleteMessage(c.Context(), actorID, messageID); err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Message deleted"})
}

// WebSocketAuth gates the upgrade. Token validation failures are not rejected
// here: the connection is accepted and then closed with a diagnostic close
// code, so clients can tell auth failures from transport failures.
func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	if claims, err := h.parseWSClaims(c); err == nil {
		c.Locals("user_id", claims.UserID)
		c.Locals("role", claims.Role)
	}
	return c.Next()
}

// HandleWebSocket authenticates the connection, establishes the private chat
// with the requested peer, and binds the connection to that chat's broadcast
// group. Authentication is attempted exactly once per connection attempt.
func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	ctx := context.Background()

	rawUserID, _ := conn.Locals("user_id").(string)
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		closeWithCode(conn, closeUnauthenticated, "authentication required")
		return
	}

	user, err := h.userRepo.GetByID(ctx, userID)
	if err != nil || !user.IsActive {
		closeWithCode(conn, closeUnauthenticated, "authentication required")
		return
	}

	peerID, err := uuid.Parse(conn.Params("peerId"))
	if err != nil {
		closeWithCode(conn, closeBadPeerID, "invalid peer id")
		return
	}

	chat, err := h.service.GetOrCreatePrivateChat(ctx, user.ID, peerID)
	if err != nil {
		closeWithCode(conn, closeChatUnavailable, "chat could not be established")
		return
	}

	client := chatws.NewClient(h.hub, conn, *user, chat.ID, h.service, h.presence)
	h.hub.Register(client)

	h.presence.SetOnline(ctx, user.ID, true)
	if err := h.hub.Publish(ctx, chat.ID, chatws.NewStatusEvent(chatws.EventUserOnline, user.ID, chat.ID)); err != nil {
		logPublishError("user.online", chat.ID, err)
	}

	go client.WritePump()
	client.ReadPump()

	h.presence.SetOnline(ctx, user.ID, false)
	if err := h.hub.Publish(ctx, chat.ID, chatws.NewStatusEvent(chatws.EventUserOffline, user.ID, chat.ID)); err != nil {
		logPublishError("user.offline", chat.ID, err)
	}
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func logPublishError(event string, chatID uuid.UUID, err error) {
	log.Printf("ws: publish %s to chat %s: %v", event, chatID, err)
}

func closeWithCode(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = conn.Close()
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	case errors.Is(err, services.ErrChatNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Chat not found"})
	case errors.Is(err, services.ErrMessageNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Message not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
