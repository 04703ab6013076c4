// Package maintenance implements the Maintenance Loop (spec §4.10): a 60s
// sweep that recovers stale executions, purges sent notifications, expires
// trade monitors past TTL, and reaps lapsed cooldowns.
package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"raptor/internal/store"
)

// sweeper is the slice of *store.Store the loop depends on.
type sweeper interface {
	RunMaintenanceSweep(ctx context.Context, chain string, staleExecutionMinutes, candidateMaxAgeSeconds, notificationRetentionHours int) (store.MaintenanceReport, error)
}

// Config holds the loop's cadence and thresholds (spec §6 tunables).
type Config struct {
	Chain                      string
	Interval                   time.Duration
	StaleExecutionMinutes      int
	CandidateMaxAgeSeconds     int
	NotificationRetentionHours int
}

// Loop runs the periodic cleanup sweep.
type Loop struct {
	store  sweeper
	cfg    Config
	logger *zap.Logger
}

// New builds a Loop with spec-default thresholds applied where cfg leaves
// them zero.
func New(st *store.Store, cfg Config, logger *zap.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.StaleExecutionMinutes <= 0 {
		cfg.StaleExecutionMinutes = 5
	}
	if cfg.CandidateMaxAgeSeconds <= 0 {
		cfg.CandidateMaxAgeSeconds = 120
	}
	if cfg.NotificationRetentionHours <= 0 {
		cfg.NotificationRetentionHours = 24
	}
	return &Loop{store: st, cfg: cfg, logger: logger}
}

// Run sweeps on cfg.Interval until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

func (l *Loop) sweep(ctx context.Context) {
	report, err := l.store.RunMaintenanceSweep(ctx, l.cfg.Chain, l.cfg.StaleExecutionMinutes, l.cfg.CandidateMaxAgeSeconds, l.cfg.NotificationRetentionHours)
	if err != nil {
		l.logger.Error("maintenance: sweep failed", zap.Error(err))
		return
	}
	l.logger.Info("maintenance: sweep complete",
		zap.Int64("stale_executions", report.StaleExecutions),
		zap.Int64("expired_candidates", report.ExpiredCandidates),
		zap.Int64("released_triggers", report.ReleasedTriggers),
		zap.Int64("purged_notifications", report.PurgedNotifications),
		zap.Int64("expired_monitors", report.ExpiredMonitors),
		zap.Int64("reaped_cooldowns", report.ReapedCooldowns),
	)
}
