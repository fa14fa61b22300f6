package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"chathub/backend/internal/models"
	"chathub/backend/internal/services"
)

type userLister interface {
	ListActive(ctx context.Context, excludeID uuid.UUID) ([]models.User, error)
}

type presenceReader interface {
	GetPresence(ctx context.Context, userID uuid.UUID) (*models.Presence, error)
}

type UserHandler struct {
	userRepo userLister
	presence presenceReader
}

func NewUserHandler(userRepo userLister, presence presenceReader) *UserHandler {
	return &UserHandler{
		userRepo: userRepo,
		presence: presence,
	}
}

// ListUsers returns the active users the caller can start a private chat
// with.
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	users, err := h.userRepo.ListActive(c.Context(), actorID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch users"})
	}

	return c.JSON(fiber.Map{"users": users})
}

func (h *UserHandler) GetPresence(c *fiber.Ctx) error {
	if _, err := parseActorID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	presence, err := h.presence.GetPresence(c.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch presence"})
	}

	return c.JSON(fiber.Map{"presence": presence})
}
