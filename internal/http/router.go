package http

import (
	"time"

	"github.com/company-marketplace/backend/internal/config"
	"github.com/company-marketplace/backend/internal/http/handlers"
	"github.com/company-marketplace/backend/internal/middleware"
	"github.com/company-marketplace/backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	companyHandler *handlers.CompanyHandler,
	changeHandler *handlers.ChangeHandler,
	adminHandler *handlers.AdminChangeHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")

	// Protected endpoints, rate limited per user
	protected := api.Group("",
		middleware.AuthMiddleware(cfg, log),
		middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log),
	)

	// User
	protected.Get("/me", userHandler.GetMe)
	protected.Post("/auth/refresh", authHandler.Refresh)

	// Companies
	protected.Get("/companies/:id", middleware.RequirePermission(rbac.PermViewChanges), companyHandler.GetCompany)
	protected.Post("/companies/:id/changes", middleware.RequirePermission(rbac.PermSubmitChange), changeHandler.SubmitChange)
	protected.Get("/companies/:id/changes", middleware.RequirePermission(rbac.PermViewChanges), changeHandler.ListCompanyChanges)

	// Moderation
	admin := protected.Group("/admin", middleware.AdminMiddleware())
	admin.Get("/changes", adminHandler.ListChanges)
	admin.Get("/changes/unapplied", adminHandler.ListUnapplied)
	admin.Post("/changes", adminHandler.CreateChange)
	admin.Post("/changes/batch/approve", adminHandler.BatchApprove)
	admin.Post("/changes/batch/reject", adminHandler.BatchReject)
	admin.Get("/changes/:id", adminHandler.GetChange)
	admin.Get("/changes/:id/events", adminHandler.GetChangeEvents)
	admin.Post("/changes/:id/approve", adminHandler.ApproveChange)
	admin.Post("/changes/:id/reject", adminHandler.RejectChange)
	admin.Post("/changes/:id/apply", middleware.RequirePermission(rbac.PermApplyChange), adminHandler.ApplyChange)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
