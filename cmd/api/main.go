package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/company-marketplace/backend/internal/config"
	"github.com/company-marketplace/backend/internal/db"
	"github.com/company-marketplace/backend/internal/events"
	apphttp "github.com/company-marketplace/backend/internal/http"
	"github.com/company-marketplace/backend/internal/http/dto"
	"github.com/company-marketplace/backend/internal/http/handlers"
	"github.com/company-marketplace/backend/internal/middleware"
	"github.com/company-marketplace/backend/internal/repositories"
	"github.com/company-marketplace/backend/internal/services"
	"github.com/company-marketplace/backend/internal/storage"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Object storage
	var objects storage.ObjectStatter
	if cfg.MinioEndpoint != "" {
		client, err := storage.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, log)
		if err != nil {
			log.Fatal("failed to create minio client", zap.Error(err))
		}
		objects = client
	}

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	changeRepo := repositories.NewChangeRepo(pool)
	companyRepo := repositories.NewCompanyRepo(pool)
	attachmentRepo := repositories.NewAttachmentRepo(pool)
	productRepo := repositories.NewProductRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	blobs := storage.NewBlobStore(storage.NewSignedIDs(cfg.BlobSigningSecret), attachmentRepo, objects, cfg.MinioBucket, log)
	applier := services.NewApplier(companyRepo, attachmentRepo, blobs, productRepo, userRepo, log)
	notifier := services.NewEventNotifier(publisher, log)
	moderation := services.NewModerationService(changeRepo, applier, auditRepo, notifier, cfg, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, cfg, log)
	userHandler := handlers.NewUserHandler(userRepo, log)
	companyHandler := handlers.NewCompanyHandler(companyRepo, attachmentRepo, log)
	changeHandler := handlers.NewChangeHandler(moderation, log)
	adminHandler := handlers.NewAdminChangeHandler(moderation, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe ws hub", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			msg := err.Error()
			if code == fiber.StatusInternalServerError {
				msg = "internal error"
			}
			return c.Status(code).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, userHandler, companyHandler, changeHandler, adminHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	notifier.Wait()
}
