// Command consumer runs the Candidate Consumer (spec §4.5): it drains newly
// discovered launch candidates and enqueues a BUY job per admitted strategy.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"raptor/internal/audit"
	"raptor/internal/budget"
	"raptor/internal/candidate"
	"raptor/internal/config"
	"raptor/internal/health"
	"raptor/internal/logging"
	"raptor/internal/queue"
	"raptor/internal/store"
	"raptor/internal/supervisor"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.RoleConsumer)
	if err != nil {
		log.Fatalf("consumer: config: %v", err)
	}

	workerID := fmt.Sprintf("consumer-%s", uuid.NewString()[:8])
	logger, err := logging.New(cfg.Env, "consumer", workerID)
	if err != nil {
		log.Fatalf("consumer: logging: %v", err)
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
		logger.Fatal("consumer: store open failed", zap.Error(err))
	}
	defer st.Close()

	auditLog := audit.New(st.DB())
	gate := budget.New(st, auditLog)
	q := queue.New(st, workerID, cfg.Chain, time.Duration(cfg.Tunables.JobLeaseSeconds)*time.Second)

	consumer := candidate.New(st, gate, q, candidate.Config{
		Chain:        cfg.Chain,
		PollInterval: cfg.Tunables.CandidatePoll,
		BatchSize:    cfg.Tunables.CandidateBatch,
		MaxAge:       cfg.Tunables.CandidateMaxAge,
	}, logger)

	healthSrv := health.New(cfg.HealthAddr, st, logger)

	supervisor.Run(ctx, logger, "consumer", consumer.Run, healthSrv.Run)

	logger.Info("consumer: exited cleanly")
}
