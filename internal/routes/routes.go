package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"chathub/backend/internal/config"
	"chathub/backend/internal/handlers"
	"chathub/backend/internal/middleware"
	"chathub/backend/internal/repository"
	"chathub/backend/internal/services"
	chatws "chathub/backend/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client) {
	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var broker chatws.Broker
	if rdb != nil {
		broker = chatws.NewRedisBroker(rdb)
	} else {
		broker = chatws.NewMemoryBroker()
	}
	hub := chatws.NewHub(broker)
	go hub.Run()

	chatService := services.NewChatService(db, chatRepo, messageRepo, userRepo)
	presenceService := services.NewPresenceService(userRepo, rdb)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	chatHandler := handlers.NewChatHandler(chatService, userRepo, presenceService, hub, cfg.JWTSecret)
	userHandler := handlers.NewUserHandler(userRepo, presenceService)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	v1 := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	chats := v1.Group("/chats")
	chats.Get("", chatHandler.ListChats)
	chats.Post("/private", chatHandler.CreatePrivateChat)
	chats.Post("/group", chatHandler.CreateGroupChat)
	chats.Get("/:id", chatHandler.GetChat)
	chats.Patch("/:id", chatHandler.UpdateChat)
	chats.Patch("/:id/settings", chatHandler.UpdateChatSettings)
	chats.Post("/:id/participants", chatHandler.AddParticipant)
	chats.Delete("/:id/participants/:userId", chatHandler.RemoveParticipant)
	chats.Get("/:id/messages", chatHandler.GetMessages)

	v1.Delete("/messages/:id", chatHandler.DeleteMessage)

	users := v1.Group("/users")
	users.Get("", userHandler.ListUsers)
	users.Get("/:id/presence", userHandler.GetPresence)

	ws := app.Group("/ws", chatHandler.WebSocketAuth)
	ws.Get("/chat/:peerId", websocket.New(chatHandler.HandleWebSocket))
}
