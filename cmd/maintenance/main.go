// Command maintenance runs the Maintenance Loop (spec §4.10): a periodic
// sweep recovering stale executions, expiring old candidates/monitors,
// purging sent notifications, and reaping lapsed cooldowns.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"raptor/internal/config"
	"raptor/internal/health"
	"raptor/internal/logging"
	"raptor/internal/maintenance"
	"raptor/internal/store"
	"raptor/internal/supervisor"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.RoleMaintenance)
	if err != nil {
		log.Fatalf("maintenance: config: %v", err)
	}

	workerID := fmt.Sprintf("maintenance-%s", uuid.NewString()[:8])
	logger, err := logging.New(cfg.Env, "maintenance", workerID)
	if err != nil {
		log.Fatalf("maintenance: logging: %v", err)
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
		logger.Fatal("maintenance: store open failed", zap.Error(err))
	}
	defer st.Close()

	loop := maintenance.New(st, maintenance.Config{
		Chain:                      cfg.Chain,
		Interval:                   cfg.Tunables.MaintenanceInterval,
		StaleExecutionMinutes:      cfg.Tunables.CleanupThresholdMins,
		CandidateMaxAgeSeconds:     int(cfg.Tunables.CandidateMaxAge.Seconds()),
		NotificationRetentionHours: 24,
	}, logger)

	healthSrv := health.New(cfg.HealthAddr, st, logger)

	supervisor.Run(ctx, logger, "maintenance", loop.Run, healthSrv.Run)

	logger.Info("maintenance: exited cleanly")
}
