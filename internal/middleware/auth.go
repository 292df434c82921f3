package middleware

import (
	"strings"

	"github.com/company-marketplace/backend/internal/auth"
	"github.com/company-marketplace/backend/internal/config"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/company-marketplace/backend/internal/rbac"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CtxActor     = "actor"
	CtxCompanyID = "company_id"
)

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		actor := claims.Actor()
		if cfg.IsAdmin(actor.UserID) {
			actor.Role = models.RoleAdmin
		}
		c.Locals(CtxActor, actor)
		if claims.CompanyID != nil {
			c.Locals(CtxCompanyID, *claims.CompanyID)
		}

		return c.Next()
	}
}

// GetActor returns the authenticated principal, or the zero Actor outside
// AuthMiddleware.
func GetActor(c *fiber.Ctx) models.Actor {
	actor, _ := c.Locals(CtxActor).(models.Actor)
	return actor
}

// GetCompanyID returns the company the caller works for, if any.
func GetCompanyID(c *fiber.Ctx) *uuid.UUID {
	id, ok := c.Locals(CtxCompanyID).(uuid.UUID)
	if !ok {
		return nil
	}
	return &id
}

// RequirePermission rejects callers whose role lacks perm.
func RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetActor(c).Role, perm) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "permission denied"})
		}
		return c.Next()
	}
}

// AdminMiddleware requires the moderation permission.
func AdminMiddleware() fiber.Handler {
	return RequirePermission(rbac.PermModerateChange)
}
