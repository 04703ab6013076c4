// Package queue is the Execution Worker's job-queue contract: claim, heartbeat,
// and finalize over the store's trade_jobs primitives (spec §4.1/§4.3), with
// the retry-vs-terminal decision spec §4.1 leaves to the caller.
package queue

import (
	"context"
	"time"

	"raptor/internal/models"
	"raptor/internal/store"
)

// claimer is the slice of *store.Store the queue depends on.
type claimer interface {
	EnqueueJob(ctx context.Context, j *models.TradeJob) (int64, error)
	ClaimTradeJobs(ctx context.Context, chain, workerID string, limit int, leaseDuration time.Duration) ([]*models.TradeJob, error)
	ExtendLease(ctx context.Context, jobID int64, workerID string, leaseDuration time.Duration) error
	FinalizeJob(ctx context.Context, jobID int64, workerID, status, lastError string) error
}

// Queue wraps a Store with the Execution Worker's claim/heartbeat/finalize loop.
type Queue struct {
	store         claimer
	workerID      string
	chain         string
	leaseDuration time.Duration
}

// New builds a Queue bound to one worker identity, chain, and lease window.
func New(st *store.Store, workerID, chain string, leaseDuration time.Duration) *Queue {
	return &Queue{store: st, workerID: workerID, chain: chain, leaseDuration: leaseDuration}
}

// Enqueue submits a new trade job; a duplicate idempotency_key is reported via
// store.ErrAlreadyExecuted, not treated as a hard failure by callers that are
// fine with at-most-once semantics already being satisfied.
func (q *Queue) Enqueue(ctx context.Context, j *models.TradeJob) (int64, error) {
	return q.store.EnqueueJob(ctx, j)
}

// Claim picks up to limit runnable jobs under this worker's lease.
func (q *Queue) Claim(ctx context.Context, limit int) ([]*models.TradeJob, error) {
	return q.store.ClaimTradeJobs(ctx, q.chain, q.workerID, limit, q.leaseDuration)
}

// Heartbeat extends a held job's lease; call periodically while an execution
// attempt is in flight (e.g. waiting on chain confirmation) so another worker
// doesn't reclaim it as abandoned mid-flight.
func (q *Queue) Heartbeat(ctx context.Context, jobID int64) error {
	return q.store.ExtendLease(ctx, jobID, q.workerID, q.leaseDuration)
}

// Complete finalizes a job as DONE.
func (q *Queue) Complete(ctx context.Context, jobID int64) error {
	return q.store.FinalizeJob(ctx, jobID, q.workerID, models.JobDone, "")
}

// Fail finalizes a job's outcome, re-enqueueing it (status reset to PENDING,
// lease cleared) instead of marking it terminally FAILED when the error is
// retryable and attempts remain — spec §4.1's "caller instead re-enqueues"
// alternative to a dedicated re-enqueue RPC.
func (q *Queue) Fail(ctx context.Context, job *models.TradeJob, errText string, retryable bool) error {
	if retryable && job.Attempts < job.MaxAttempts {
		return q.store.FinalizeJob(ctx, job.ID, q.workerID, models.JobPending, errText)
	}
	return q.store.FinalizeJob(ctx, job.ID, q.workerID, models.JobFailed, errText)
}

// Cancel finalizes a job as CANCELED, used when a candidate or execution this
// job depended on was independently resolved before the worker reached it.
func (q *Queue) Cancel(ctx context.Context, jobID int64, reason string) error {
	return q.store.FinalizeJob(ctx, jobID, q.workerID, models.JobCanceled, reason)
}
