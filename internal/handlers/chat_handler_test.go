package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"chathub/backend/internal/models"
	"chathub/backend/internal/services"
	chatws "chathub/backend/internal/websocket"
)

type stubChatService struct {
	chatsResult   []models.ChatSummary
	chatsErr      error
	privateResult *models.Chat
	privateErr    error
	groupResult   *models.ChatDetail
	groupErr      error
	detailResult  *models.ChatDetail
	detailErr     error
	renameResult  *models.Chat
	renameErr     error
	settingsResult *models.Participant
	settingsErr    error
	messagesResult []models.ChatMessage
	messagesTotal  int
	messagesErr    error
	memberErr      error
	deleteErr      error

	lastActorID   uuid.UUID
	lastPeerID    uuid.UUID
	lastChatID    uuid.UUID
	lastUserID    uuid.UUID
	lastMessageID uuid.UUID
	lastGroupName string
	lastMemberIDs []uuid.UUID
	lastPage      int
	lastLimit     int
	lastRename    string
	lastSettings  models.ChatSettingsUpdate
}

func (s *stubChatService) ListChats(_ context.Context, actorID uuid.UUID) ([]models.ChatSummary, error) {
	s.lastActorID = actorID
	return s.chatsResult, s.chatsErr
}

func (s *stubChatService) GetOrCreatePrivateChat(_ context.Context, actorID, peerID uuid.UUID) (*models.Chat, error) {
	s.lastActorID = actorID
	s.lastPeerID = peerID
	return s.privateResult, s.privateErr
}

func (s *stubChatService) CreateGroupChat(_ context.Context, ownerID uuid.UUID, name string, memberIDs []uuid.UUID) (*models.ChatDetail, error) {
	s.lastActorID = ownerID
	s.lastGroupName = name
	s.lastMemberIDs = memberIDs
	return s.groupResult, s.groupErr
}

func (s *stubChatService) GetChat(_ context.Context, actorID, chatID uuid.UUID) (*models.ChatDetail, error) {
	s.lastActorID = actorID
	s.lastChatID = chatID
	return s.detailResult, s.detailErr
}

func (s *stubChatService) UpdateGroupName(_ context.Context, actorID, chatID uuid.UUID, name string) (*models.Chat, error) {
	s.lastActorID = actorID
	s.lastChatID = chatID
	s.lastRename = name
	return s.renameResult, s.renameErr
}

func (s *stubChatService) UpdateChatSettings(_ context.Context, actorID, chatID uuid.UUID, update models.ChatSettingsUpdate) (*models.Participant, error) {
	s.lastActorID = actorID
	s.lastChatID = chatID
	s.lastSettings = update
	return s.settingsResult, s.settingsErr
}

func (s *stubChatService) ListMessages(_ context.Context, actorID, chatID uuid.UUID, page, limit int) ([]models.ChatMessage, int, error) {
	s.lastActorID = actorID
	s.lastChatID = chatID
	s.lastPage = page
	s.lastLimit = limit
	return s.messagesResult, s.messagesTotal, s.messagesErr
}

func (s *stubChatService) AddGroupMember(_ context.Context, actorID, chatID, userID uuid.UUID) error {
	s.lastActorID = actorID
	s.lastChatID = chatID
	s.lastUserID = userID
	return s.memberErr
}

func (s *stubChatService) RemoveGroupMember(_ context.Context, actorID, chatID, userID uuid.UUID) error {
	s.lastActorID = actorID
	s.lastChatID = chatID
	s.lastUserID = userID
	return s.memberErr
}

func (s *stubChatService) DeleteMessage(_ context.Context, actorID, messageID uuid.UUID) error {
	s.lastActorID = actorID
	s.lastMessageID = messageID
	return s.deleteErr
}

func (s *stubChatService) SendMessage(_ context.Context, _, _ uuid.UUID, _, _ string) (*models.ChatMessage, error) {
	return nil, nil
}

func (s *stubChatService) MarkMessageRead(_ context.Context, _, _, _ uuid.UUID) (*models.ReadReceipt, error) {
	return nil, nil
}

func (s *stubChatService) MarkMessageDelivered(_ context.Context, _, _, _ uuid.UUID) error {
	return nil
}

type stubUserResolver struct {
	user *models.User
	err  error
}

func (s *stubUserResolver) GetByID(_ context.Context, _ uuid.UUID) (*models.User, error) {
	return s.user, s.err
}

type noopPresence struct{}

func (noopPresence) SetOnline(_ context.Context, _ uuid.UUID, _ bool)         {}
func (noopPresence) SetStatusMessage(_ context.Context, _ uuid.UUID, _ string) {}

func newChatTestApp(service *stubChatService, actorID uuid.UUID) (*fiber.App, *ChatHandler) {
	handler := NewChatHandler(service, &stubUserResolver{}, noopPresence{}, chatws.NewHub(chatws.NewMemoryBroker()), "secret")

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", actorID.String())
		c.Locals("role", models.RoleUser)
		return c.Next()
	})
	return app, handler
}

func TestListChatsReturnsSummaries(t *testing.T) {
	actorID := uuid.New()
	chatID := uuid.New()
	service := &stubChatService{
		chatsResult: []models.ChatSummary{
			{
				Chat: models.Chat{ID: chatID, ChatType: models.ChatTypePrivate},
				LastMessage: &models.ChatMessage{
					ID:        uuid.New(),
					ChatID:    chatID,
					Content:   "See you tomorrow",
					CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
				},
				UnreadCount: 2,
			},
		},
	}
	app, handler := newChatTestApp(service, actorID)
	app.Get("/api/v1/chats", handler.ListChats)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastActorID != actorID {
		t.Fatalf("unexpected actor id: %s", service.lastActorID)
	}

	var body struct {
		Chats []models.ChatSummary `json:"chats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Chats) != 1 || body.Chats[0].UnreadCount != 2 {
		t.Fatalf("unexpected response: %+v", body.Chats)
	}
}

func TestCreatePrivateChatReturnsChat(t *testing.T) {
	actorID := uuid.New()
	peerID := uuid.New()
	service := &stubChatService{
		privateResult: &models.Chat{ID: uuid.New(), ChatType: models.ChatTypePrivate},
	}
	app, handler := newChatTestApp(service, actorID)
	app.Post("/api/v1/chats/private", handler.CreatePrivateChat)

	payload := `{"user_id":"` + peerID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/private", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastActorID != actorID || service.lastPeerID != peerID {
		t.Fatalf("unexpected call: actor=%s peer=%s", service.lastActorID, service.lastPeerID)
	}
}

func TestCreatePrivateChatRejectsBadPeerID(t *testing.T) {
	service := &stubChatService{}
	app, handler := newChatTestApp(service, uuid.New())
	app.Post("/api/v1/chats/private", handler.CreatePrivateChat)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/private", strings.NewReader(`{"user_id":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateGroupChatReturnsCreated(t *testing.T) {
	actorID := uuid.New()
	memberID := uuid.New()
	service := &stubChatService{
		groupResult: &models.ChatDetail{
			Chat: models.Chat{ID: uuid.New(), ChatType: models.ChatTypeGroup, Name: "Weekend plans"},
		},
	}
	app, handler := newChatTestApp(service, actorID)
	app.Post("/api/v1/chats/group", handler.CreateGroupChat)

	payload := `{"name":"Weekend plans","user_ids":["` + memberID.String() + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chats/group", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastGroupName != "Weekend plans" {
		t.Fatalf("unexpected group name: %q", service.lastGroupName)
	}
	if len(service.lastMemberIDs) != 1 || service.lastMemberIDs[0] != memberID {
		t.Fatalf("unexpected member ids: %v", service.lastMemberIDs)
	}
}

func TestUpdateChatRenamesGroup(t *testing.T) {
	actorID := uuid.New()
	chatID := uuid.New()
	service := &stubChatService{
		renameResult: &models.Chat{ID: chatID, ChatType: models.ChatTypeGroup, Name: "New name"},
	}
	app, handler := newChatTestApp(service, actorID)
	app.Patch("/api/v1/chats/:id", handler.UpdateChat)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/chats/"+chatID.String(), strings.NewReader(`{"name":"New name"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastActorID != actorID || service.lastChatID != chatID || service.lastRename != "New name" {
		t.Fatalf("unexpected call: actor=%s chat=%s name=%q", service.lastActorID, service.lastChatID, service.lastRename)
	}
}

func TestUpdateChatMapsForbiddenForNonAdmin(t *testing.T) {
	service := &stubChatService{renameErr: services.ErrForbidden}
	app, handler := newChatTestApp(service, uuid.New())
	app.Patch("/api/v1/chats/:id", handler.UpdateChat)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/chats/"+uuid.NewString(), strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestUpdateChatSettingsForwardsPartialFlags(t *testing.T) {
	actorID := uuid.New()
	chatID := uuid.New()
	service := &stubChatService{
		settingsResult: &models.Participant{ChatID: chatID, UserID: actorID, IsMuted: true},
	}
	app, handler := newChatTestApp(service, actorID)
	app.Patch("/api/v1/chats/:id/settings", handler.UpdateChatSettings)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/chats/"+chatID.String()+"/settings", strings.NewReader(`{"is_muted":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastSettings.IsMuted == nil || !*service.lastSettings.IsMuted {
		t.Fatalf("expected is_muted=true to be forwarded, got %+v", service.lastSettings)
	}
	if service.lastSettings.IsPinned != nil || service.lastSettings.IsArchived != nil {
		t.Fatalf("expected unset flags to stay nil, got %+v", service.lastSettings)
	}

	var body struct {
		Participant models.Participant `json:"participant"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !body.Participant.IsMuted {
		t.Fatalf("unexpected response: %+v", body.Participant)
	}
}

func TestGetMessagesClampsAndForwardsPaging(t *testing.T) {
	actorID := uuid.New()
	chatID := uuid.New()
	service := &stubChatService{
		messagesResult: []models.ChatMessage{{ID: uuid.New(), ChatID: chatID, Content: "hi"}},
		messagesTotal:  41,
	}
	app, handler := newChatTestApp(service, actorID)
	app.Get("/api/v1/chats/:id/messages", handler.GetMessages)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/"+chatID.String()+"/messages?page=2&limit=500", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastPage != 2 || service.lastLimit != maxPageLimit {
		t.Fatalf("unexpected paging: page=%d limit=%d", service.lastPage, service.lastLimit)
	}

	var body struct {
		Messages   []models.ChatMessage  `json:"messages"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Pagination.Total != 41 || body.Pagination.TotalPages != 1 {
		t.Fatalf("unexpected pagination: %+v", body.Pagination)
	}
}

func TestGetChatMapsNotFound(t *testing.T) {
	service := &stubChatService{detailErr: services.ErrChatNotFound}
	app, handler := newChatTestApp(service, uuid.New())
	app.Get("/api/v1/chats/:id", handler.GetChat)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats/"+uuid.NewString(), nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRemoveParticipantMapsForbidden(t *testing.T) {
	service := &stubChatService{memberErr: services.ErrForbidden}
	app, handler := newChatTestApp(service, uuid.New())
	app.Delete("/api/v1/chats/:id/participants/:userId", handler.RemoveParticipant)

	target := "/api/v1/chats/" + uuid.NewString() + "/participants/" + uuid.NewString()
	req := httptest.NewRequest(http.MethodDelete, target, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestDeleteMessageMapsNotFound(t *testing.T) {
	service := &stubChatService{deleteErr: services.ErrMessageNotFound}
	app, handler := newChatTestApp(service, uuid.New())
	app.Delete("/api/v1/messages/:id", handler.DeleteMessage)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/messages/"+uuid.NewString(), nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandlersRejectMissingIdentity(t *testing.T) {
	service := &stubChatService{}
	handler := NewChatHandler(service, &stubUserResolver{}, noopPresence{}, chatws.NewHub(chatws.NewMemoryBroker()), "secret")

	app := fiber.New()
	app.Get("/api/v1/chats", handler.ListChats)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWebSocketAuthRequiresUpgrade(t *testing.T) {
	service := &stubChatService{}
	handler := NewChatHandler(service, &stubUserResolver{}, noopPresence{}, chatws.NewHub(chatws.NewMemoryBroker()), "secret")

	app := fiber.New()
	app.Get("/ws/chat/:peerId", handler.WebSocketAuth)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat/"+uuid.NewString(), nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}
