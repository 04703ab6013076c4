// Command notifier runs the Outbox Notifier (spec §4.9): it delivers claimed
// notifications_outbox rows to the chat surface at-least-once.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"raptor/internal/chatsurface"
	"raptor/internal/config"
	"raptor/internal/health"
	"raptor/internal/logging"
	"raptor/internal/outbox"
	"raptor/internal/store"
	"raptor/internal/supervisor"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.RoleNotifier)
	if err != nil {
		log.Fatalf("notifier: config: %v", err)
	}

	workerID := fmt.Sprintf("notifier-%s", uuid.NewString()[:8])
	logger, err := logging.New(cfg.Env, "notifier", workerID)
	if err != nil {
		log.Fatalf("notifier: logging: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		URL:          cfg.Store.URL,
		MaxOpenConns: cfg.Store.MaxOpenConns,
		MaxIdleConns: cfg.Store.MaxIdleConns,
		ConnMaxLife:  cfg.Store.ConnMaxLife,
	})
	if err != nil {
		logger.Fatal("notifier: store open failed", zap.Error(err))
	}
	defer st.Close()

	surface, err := chatsurface.NewTelegram(cfg.Chat.BotToken, logger)
	if err != nil {
		logger.Fatal("notifier: chat surface init failed", zap.Error(err))
	}

	notif := outbox.New(st, surface, outbox.Config{
		WorkerID:      workerID,
		PollInterval:  cfg.Tunables.NotificationPoll,
		ClaimLimit:    10,
		LeaseDuration: 30 * time.Second,
	}, logger)

	healthSrv := health.New(cfg.HealthAddr, st, logger)

	supervisor.Run(ctx, logger, "notifier", notif.Run, healthSrv.Run)

	logger.Info("notifier: exited cleanly")
}
