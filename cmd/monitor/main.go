// Command monitor runs the Position Monitor and the Exit Queue it feeds
// (spec §4.7/§4.8): together they watch every open position for this chain
// and turn a won trigger claim into a SELL trade job.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"raptor/internal/budget"
	"raptor/internal/chain"
	"raptor/internal/config"
	"raptor/internal/exitqueue"
	"raptor/internal/health"
	"raptor/internal/logging"
	"raptor/internal/monitor"
	"raptor/internal/priceoracle"
	"raptor/internal/queue"
	"raptor/internal/store"
	"raptor/internal/supervisor"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.RoleMonitor)
	if err != nil {
		log.Fatalf("monitor: config: %v", err)
	}

	workerID := fmt.Sprintf("monitor-%s", uuid.NewString()[:8])
	logger, err := logging.New(cfg.Env, "monitor", workerID)
	if err != nil {
		log.Fatalf("monitor: logging: %v", err)
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
		logger.Fatal("monitor: store open failed", zap.Error(err))
	}
	defer st.Close()

	chainClient := chain.New(cfg.RPC.RPCURL)

	oracle := priceoracle.New(priceoracle.Config{
		BaseURL:  cfg.RPC.AggregatorBaseURL,
		CacheTTL: cfg.Tunables.PriceCacheTTL,
		CacheMax: cfg.Tunables.PriceCacheMax,
	}, logger)

	var subs *chain.SubscriptionManager
	if cfg.RPC.WSURL != "" {
		subs = chain.NewSubscriptionManager(cfg.RPC.WSURL, chain.DefaultReconnectConfig())
		if err := subs.Connect(); err != nil {
			// Activity hints are a latency optimization, not a correctness
			// requirement (spec §4.7: polling alone still catches every
			// trigger); log and fall back to poll-only rather than exiting.
			logger.Warn("monitor: ws connect failed, falling back to poll-only", zap.Error(err))
			subs = nil
		} else {
			defer subs.Close()
		}
	}

	gate := budget.New(st, nil)
	q := queue.New(st, workerID, cfg.Chain, time.Duration(cfg.Tunables.JobLeaseSeconds)*time.Second)

	exits := exitqueue.New(st, gate, q, exitqueue.Config{
		Workers:        4,
		HighWaterMark:  cfg.Tunables.ExitQueueHighWaterMark,
		LowWaterMark:   cfg.Tunables.ExitQueueLowWaterMark,
		PerWalletLimit: cfg.Tunables.PerWalletConcurrency,
	}, logger)

	mon := monitor.New(st, oracle, subs, exits, monitor.Config{
		Chain:         cfg.Chain,
		PollInterval:  cfg.Tunables.MonitorPoll,
		RefreshEveryN: 10,
	}, logger)

	healthSrv := health.New(cfg.HealthAddr, st, logger)

	supervisor.Run(ctx, logger, "monitor", mon.Run, exits.Run, healthSrv.Run)

	logger.Info("monitor: exited cleanly")
}
