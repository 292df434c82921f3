package handlers

import (
	"github.com/company-marketplace/backend/internal/auth"
	"github.com/company-marketplace/backend/internal/config"
	"github.com/company-marketplace/backend/internal/http/dto"
	"github.com/company-marketplace/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AuthHandler re-issues session tokens. Initial tokens come from the
// identity provider sharing JWT_SECRET.
type AuthHandler struct {
	users UserLookup
	cfg   *config.Config
	log   *zap.Logger
}

func NewAuthHandler(users UserLookup, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, cfg: cfg, log: log}
}

// Refresh issues a token built from the user's current row, so a company
// granted by an approved access request shows up without logging in again.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	user, err := h.users.GetByID(c.UserContext(), middleware.GetActor(c).UserID)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, user, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	return c.JSON(dto.AuthResponse{Token: token, User: user})
}
