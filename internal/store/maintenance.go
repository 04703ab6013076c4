package store

import (
	"context"
)

// MaintenanceReport summarizes one maintenance sweep for logging/metrics.
type MaintenanceReport struct {
	StaleExecutions   int64
	ExpiredCandidates int64
	ReleasedTriggers  int64
	PurgedNotifications int64
	ExpiredMonitors   int64
	ReapedCooldowns   int64
}

// RunMaintenanceSweep drives every periodic cleanup RPC the maintenance loop
// needs (spec §4.9), in the order that matters least-destructive-first:
// releasing retryable triggers before anything that deletes rows outright.
func (s *Store) RunMaintenanceSweep(ctx context.Context, chain string, staleExecutionMinutes, candidateMaxAgeSeconds, notificationRetentionHours int) (MaintenanceReport, error) {
	var report MaintenanceReport

	released, err := s.ReleaseFailedTriggers(ctx, chain)
	if err != nil {
		return report, err
	}
	report.ReleasedTriggers = released

	stale, err := s.CleanupStaleExecutions(ctx, staleExecutionMinutes)
	if err != nil {
		return report, err
	}
	report.StaleExecutions = stale

	expiredCandidates, err := s.ExpireStaleCandidates(ctx, candidateMaxAgeSeconds)
	if err != nil {
		return report, err
	}
	report.ExpiredCandidates = expiredCandidates

	expiredMonitors, err := s.ExpireStaleTradeMonitors(ctx)
	if err != nil {
		return report, err
	}
	report.ExpiredMonitors = expiredMonitors

	purged, err := s.PurgeSentNotifications(ctx, notificationRetentionHours)
	if err != nil {
		return report, err
	}
	report.PurgedNotifications = purged

	reaped, err := s.ReapExpiredCooldowns(ctx)
	if err != nil {
		return report, err
	}
	report.ReapedCooldowns = reaped

	return report, nil
}
