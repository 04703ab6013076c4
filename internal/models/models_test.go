package models

import (
	"testing"
	"time"
)

func TestCanTransitionExecution(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"reserved to submitted", ExecutionReserved, ExecutionSubmitted, true},
		{"reserved to failed", ExecutionReserved, ExecutionFailed, true},
		{"reserved to confirmed direct", ExecutionReserved, ExecutionConfirmed, false},
		{"submitted to confirmed", ExecutionSubmitted, ExecutionConfirmed, true},
		{"submitted to failed", ExecutionSubmitted, ExecutionFailed, true},
		{"confirmed is terminal", ExecutionConfirmed, ExecutionSubmitted, false},
		{"failed is terminal", ExecutionFailed, ExecutionReserved, false},
		{"unknown from state", "BOGUS", ExecutionSubmitted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionExecution(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransitionExecution(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCanTransitionTrigger(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"monitoring to triggered", TriggerMonitoring, TriggerTriggered, true},
		{"triggered to executing", TriggerTriggered, TriggerExecuting, true},
		{"executing to completed", TriggerExecuting, TriggerCompleted, true},
		{"executing to failed", TriggerExecuting, TriggerFailed, true},
		{"failed resets to monitoring", TriggerFailed, TriggerMonitoring, true},
		{"completed is terminal", TriggerCompleted, TriggerMonitoring, false},
		{"no skipping triggered", TriggerMonitoring, TriggerExecuting, false},
		{"no reverse from executing to triggered", TriggerExecuting, TriggerTriggered, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionTrigger(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransitionTrigger(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTradeJobClaimable(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status string
		lease  *time.Time
		want   bool
	}{
		{"pending no lease", JobPending, nil, true},
		{"pending lease expired", JobPending, tPtr(now.Add(-time.Second)), true},
		{"pending lease exactly now", JobPending, tPtr(now), true},
		{"pending lease in future", JobPending, tPtr(now.Add(time.Second)), false},
		{"running never claimable", JobRunning, nil, false},
		{"done never claimable", JobDone, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &TradeJob{Status: tt.status, LeaseExpiresAt: tt.lease}
			if got := j.Claimable(now); got != tt.want {
				t.Errorf("Claimable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLaunchCandidateExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	maxAge := 120 * time.Second

	tests := []struct {
		name      string
		firstSeen time.Time
		want      bool
	}{
		{"fresh candidate", now.Add(-10 * time.Second), false},
		{"exactly at max age is expired", now.Add(-maxAge), true},
		{"older than max age", now.Add(-200 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &LaunchCandidate{FirstSeenAt: tt.firstSeen}
			if got := c.Expired(now, maxAge); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func tPtr(t time.Time) *time.Time { return &t }
