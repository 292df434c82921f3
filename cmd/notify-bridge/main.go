package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/company-marketplace/backend/internal/config"
	"github.com/company-marketplace/backend/internal/db"
	"github.com/company-marketplace/backend/internal/events"
	"github.com/company-marketplace/backend/internal/services"
	"go.uber.org/zap"
)

// Notify Bridge subscribes to moderation events in Redis and forwards them
// to the notification webhook.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if cfg.NotifyWebhookURL == "" {
		log.Fatal("NOTIFY_WEBHOOK_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)
	webhook := services.NewWebhookClient(cfg.NotifyWebhookURL, log)

	err = subscriber.Subscribe(ctx, events.StreamModeration, func(event events.Event) {
		fwdCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := webhook.Forward(fwdCtx, event); err != nil {
			log.Warn("failed to forward notification", zap.String("type", event.Type), zap.Error(err))
			return
		}
		log.Info("notification forwarded", zap.String("type", event.Type))
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.String("stream", events.StreamModeration), zap.Error(err))
	}

	log.Info("notify-bridge started", zap.String("stream", events.StreamModeration))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}
