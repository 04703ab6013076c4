// Command executor runs the Execution Worker (spec §4.6): it claims
// trade_jobs rows for one chain and drives each to a terminal state via the
// router factory.
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
	"raptor/internal/chain"
	"raptor/internal/config"
	"raptor/internal/health"
	"raptor/internal/logging"
	"raptor/internal/priceoracle"
	"raptor/internal/queue"
	"raptor/internal/router"
	"raptor/internal/store"
	"raptor/internal/supervisor"
	"raptor/internal/worker"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.RoleExecutor)
	if err != nil {
		log.Fatalf("executor: config: %v", err)
	}

	workerID := fmt.Sprintf("executor-%s", uuid.NewString()[:8])
	logger, err := logging.New(cfg.Env, "executor", workerID)
	if err != nil {
		log.Fatalf("executor: logging: %v", err)
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
		// Failure of the store is fatal to this component (spec §5): exit and
		// let the process supervisor restart rather than degrade in place.
		logger.Fatal("executor: store open failed", zap.Error(err))
	}
	defer st.Close()

	auditLog := audit.New(st.DB())

	masterKey := []byte(cfg.Security.WalletEncryptionKey)

	chainClient := chain.New(cfg.RPC.RPCURL)
	bondingCurve := router.NewBondingCurveRouter(chainClient)
	aggregator := router.NewAggregatorRouter(chainClient, cfg.RPC.AggregatorBaseURL)
	factory := router.NewFactory(bondingCurve, aggregator)

	oracle := priceoracle.New(priceoracle.Config{
		BaseURL:  cfg.RPC.AggregatorBaseURL,
		CacheTTL: cfg.Tunables.PriceCacheTTL,
		CacheMax: cfg.Tunables.PriceCacheMax,
	}, logger)

	q := queue.New(st, workerID, cfg.Chain, time.Duration(cfg.Tunables.JobLeaseSeconds)*time.Second)

	w := worker.New(st, q, factory, chainClient, oracle, masterKey, auditLog, worker.Config{
		ClaimLimit:     cfg.Tunables.JobClaimLimit,
		PollInterval:   cfg.Tunables.JobPollInterval,
		ConfirmTimeout: cfg.Tunables.ConfirmTimeout,
	}, logger)

	healthSrv := health.New(cfg.HealthAddr, st, logger)

	supervisor.Run(ctx, logger, "executor", w.Run, healthSrv.Run)

	logger.Info("executor: exited cleanly")
}
