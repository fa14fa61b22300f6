package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"chathub/backend/internal/models"
	"chathub/backend/internal/repository"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestPrivateChatConcurrentCreateYieldsOneChat(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	aliceID := createTestUser(t, ctx, pool, "alice")
	bobID := createTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, aliceID, bobID) })

	// Both ends race to establish the chat, each naming the other as peer.
	var wg sync.WaitGroup
	start := make(chan struct{})
	chats := make([]*models.Chat, 2)
	errs := make([]error, 2)

	create := func(i int, actorID, peerID uuid.UUID) {
		defer wg.Done()
		<-start
		chats[i], errs[i] = service.GetOrCreatePrivateChat(ctx, actorID, peerID)
	}
	wg.Add(2)
	go create(0, aliceID, bobID)
	go create(1, bobID, aliceID)
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("GetOrCreatePrivateChat #%d: %v", i, err)
		}
	}
	if chats[0].ID != chats[1].ID {
		t.Fatalf("expected both sides to land on one chat, got %s and %s", chats[0].ID, chats[1].ID)
	}

	var count int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM chats WHERE pair_key = $1",
		repository.PairKey(aliceID, bobID),
	).Scan(&count); err != nil {
		t.Fatalf("count chats: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one chat row for the pair, got %d", count)
	}

	participants, err := repository.NewChatRepository(pool).ListParticipants(ctx, chats[0].ID)
	if err != nil {
		t.Fatalf("ListParticipants: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected both users as participants, got %+v", participants)
	}
}

func TestPrivateChatMessageAndReadReceiptFlow(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	aliceID := createTestUser(t, ctx, pool, "alice")
	bobID := createTestUser(t, ctx, pool, "bob")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, aliceID, bobID) })

	chat, err := service.GetOrCreatePrivateChat(ctx, aliceID, bobID)
	if err != nil {
		t.Fatalf("GetOrCreatePrivateChat: %v", err)
	}

	message, err := service.SendMessage(ctx, aliceID, chat.ID, "hello bob", "")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if message.Status != models.MessageStatusSent {
		t.Fatalf("expected sent status, got %q", message.Status)
	}

	if err := service.MarkMessageDelivered(ctx, bobID, chat.ID, message.ID); err != nil {
		t.Fatalf("MarkMessageDelivered: %v", err)
	}

	first, err := service.MarkMessageRead(ctx, bobID, chat.ID, message.ID)
	if err != nil {
		t.Fatalf("MarkMessageRead: %v", err)
	}
	second, err := service.MarkMessageRead(ctx, bobID, chat.ID, message.ID)
	if err != nil {
		t.Fatalf("repeat MarkMessageRead: %v", err)
	}
	if !first.ReadAt.Equal(second.ReadAt) {
		t.Fatalf("expected repeated receipt to keep the original time, got %v then %v", first.ReadAt, second.ReadAt)
	}

	messages, total, err := service.ListMessages(ctx, bobID, chat.ID, 1, 20)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if total != 1 || len(messages) != 1 {
		t.Fatalf("expected one message, got total=%d messages=%+v", total, messages)
	}
	if messages[0].Status != models.MessageStatusRead {
		t.Fatalf("expected read status, got %q", messages[0].Status)
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationChatService(pool *pgxpool.Pool) *ChatService {
	return NewChatService(
		pool,
		repository.NewChatRepository(pool),
		repository.NewMessageRepository(pool),
		repository.NewUserRepository(pool),
	)
}

func createTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()

	userRepo := repository.NewUserRepository(pool)
	suffix := time.Now().UnixNano()
	user := &models.User{
		Email:        fmt.Sprintf("chat-test-%s-%d@example.com", name, suffix),
		Username:     fmt.Sprintf("chat-test-%s-%d", name, suffix),
		PasswordHash: "test-hash",
		Role:         models.RoleUser,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return user.ID
}

func cleanupTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...uuid.UUID) {
	t.Helper()

	if len(userIDs) == 0 {
		return
	}

	if _, err := pool.Exec(ctx,
		"DELETE FROM chats WHERE id IN (SELECT chat_id FROM participants WHERE user_id = ANY($1))",
		userIDs,
	); err != nil {
		t.Fatalf("cleanup chats: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup users: %v", err)
	}
}
