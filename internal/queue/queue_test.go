package queue

import (
	"context"
	"testing"
	"time"

	"raptor/internal/models"
)

type fakeClaimer struct {
	finalizedStatus string
	finalizedError  string
}

func (f *fakeClaimer) EnqueueJob(ctx context.Context, j *models.TradeJob) (int64, error) {
	return 1, nil
}
func (f *fakeClaimer) ClaimTradeJobs(ctx context.Context, chain, workerID string, limit int, leaseDuration time.Duration) ([]*models.TradeJob, error) {
	return nil, nil
}
func (f *fakeClaimer) ExtendLease(ctx context.Context, jobID int64, workerID string, leaseDuration time.Duration) error {
	return nil
}
func (f *fakeClaimer) FinalizeJob(ctx context.Context, jobID int64, workerID, status, lastError string) error {
	f.finalizedStatus = status
	f.finalizedError = lastError
	return nil
}

func TestFailReenqueuesWhenRetryableWithAttemptsRemaining(t *testing.T) {
	fc := &fakeClaimer{}
	q := &Queue{store: fc, workerID: "w1", chain: "solana", leaseDuration: time.Second}

	job := &models.TradeJob{ID: 1, Attempts: 1, MaxAttempts: 3}
	if err := q.Fail(context.Background(), job, "rpc timeout", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.finalizedStatus != models.JobPending {
		t.Errorf("expected re-enqueue to PENDING, got %s", fc.finalizedStatus)
	}
}

func TestFailGoesTerminalWhenAttemptsExhausted(t *testing.T) {
	fc := &fakeClaimer{}
	q := &Queue{store: fc, workerID: "w1", chain: "solana", leaseDuration: time.Second}

	job := &models.TradeJob{ID: 1, Attempts: 3, MaxAttempts: 3}
	if err := q.Fail(context.Background(), job, "program error", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.finalizedStatus != models.JobFailed {
		t.Errorf("expected terminal FAILED, got %s", fc.finalizedStatus)
	}
}

func TestFailGoesTerminalWhenNotRetryable(t *testing.T) {
	fc := &fakeClaimer{}
	q := &Queue{store: fc, workerID: "w1", chain: "solana", leaseDuration: time.Second}

	job := &models.TradeJob{ID: 1, Attempts: 0, MaxAttempts: 3}
	if err := q.Fail(context.Background(), job, "honeypot detected", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.finalizedStatus != models.JobFailed {
		t.Errorf("expected terminal FAILED for non-retryable error, got %s", fc.finalizedStatus)
	}
}
