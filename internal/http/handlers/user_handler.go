package handlers

import (
	"context"

	"github.com/company-marketplace/backend/internal/http/dto"
	"github.com/company-marketplace/backend/internal/middleware"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type UserHandler struct {
	users UserLookup
	log   *zap.Logger
}

func NewUserHandler(users UserLookup, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	user, err := h.users.GetByID(c.UserContext(), middleware.GetActor(c).UserID)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: user})
}
