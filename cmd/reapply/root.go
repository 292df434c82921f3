package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/company-marketplace/backend/internal/config"
	"github.com/company-marketplace/backend/internal/db"
	"github.com/company-marketplace/backend/internal/events"
	"github.com/company-marketplace/backend/internal/repositories"
	"github.com/company-marketplace/backend/internal/services"
	"github.com/company-marketplace/backend/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "reapply",
		Short:        "Operator tools for approved changes that were never applied",
		SilenceUsage: true,
	}
	cmd.AddCommand(newListCmd(), newApplyCmd(), newTokenCmd(), newSignBlobCmd())
	return cmd
}

// env holds the connections a subcommand needs; close releases them.
type env struct {
	cfg        *config.Config
	log        *zap.Logger
	pool       *pgxpool.Pool
	rdb        *redis.Client
	users      *repositories.UserRepo
	blobs      *repositories.AttachmentRepo
	signedIDs  *storage.SignedIDs
	notifier   *services.EventNotifier
	moderation *services.ModerationService
}

func connect(ctx context.Context) (*env, error) {
	log, _ := zap.NewProduction()
	cfg := config.Load()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		return nil, err
	}
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	var objects storage.ObjectStatter
	if cfg.MinioEndpoint != "" {
		client, err := storage.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, log)
		if err != nil {
			pool.Close()
			_ = rdb.Close()
			return nil, err
		}
		objects = client
	}

	userRepo := repositories.NewUserRepo(pool)
	attachmentRepo := repositories.NewAttachmentRepo(pool)
	signedIDs := storage.NewSignedIDs(cfg.BlobSigningSecret)
	blobs := storage.NewBlobStore(signedIDs, attachmentRepo, objects, cfg.MinioBucket, log)
	applier := services.NewApplier(repositories.NewCompanyRepo(pool), attachmentRepo, blobs, repositories.NewProductRepo(pool), userRepo, log)
	notifier := services.NewEventNotifier(events.NewRedisPublisher(rdb, log), log)
	moderation := services.NewModerationService(repositories.NewChangeRepo(pool), applier, repositories.NewAuditRepo(pool), notifier, cfg, log)

	return &env{cfg: cfg, log: log, pool: pool, rdb: rdb, users: userRepo, blobs: attachmentRepo, signedIDs: signedIDs, notifier: notifier, moderation: moderation}, nil
}

func (e *env) close() {
	e.notifier.Wait()
	e.pool.Close()
	_ = e.rdb.Close()
	_ = e.log.Sync()
}
