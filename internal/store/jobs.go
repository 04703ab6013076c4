package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"raptor/internal/models"
)

// EnqueueJob inserts a trade job, relying on UNIQUE(idempotency_key) to reject
// duplicate submissions. A duplicate is reported via ErrAlreadyExecuted rather
// than surfacing the raw constraint error.
func (s *Store) EnqueueJob(ctx context.Context, j *models.TradeJob) (int64, error) {
	const q = `
		INSERT INTO trade_jobs (
			strategy_id, user_id, chain, action, opportunity_ref, priority, payload,
			idempotency_key, status, attempts, max_attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PENDING', 0, $9, now(), now())
		RETURNING id`

	maxAttempts := j.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var id int64
	err := s.db.QueryRowContext(ctx, q,
		j.StrategyID, j.UserID, j.Chain, j.Action, j.OpportunityRef, j.Priority, j.Payload,
		j.IdempotencyKey, maxAttempts,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrAlreadyExecuted
		}
		return 0, fmt.Errorf("store: enqueue job: %w", err)
	}
	return id, nil
}

// ClaimTradeJobs is the claim_trade_jobs RPC: it atomically picks up to limit
// runnable jobs (pending, or running with an expired lease), stamps them RUNNING
// under workerID with a fresh lease, and returns the claimed rows. SKIP LOCKED
// lets multiple Execution Workers race the same table without blocking.
func (s *Store) ClaimTradeJobs(ctx context.Context, chain, workerID string, limit int, leaseDuration time.Duration) ([]*models.TradeJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: claim jobs begin: %w", err)
	}
	defer tx.Rollback()

	const selectQ = `
		SELECT id FROM trade_jobs
		WHERE chain = $1
		  AND (
			(status = 'PENDING')
			OR (status = 'RUNNING' AND lease_expires_at IS NOT NULL AND lease_expires_at <= now())
		  )
		ORDER BY priority ASC, created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.QueryContext(ctx, selectQ, chain, limit)
	if err != nil {
		return nil, fmt.Errorf("store: claim jobs select: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	const updateQ = `
		UPDATE trade_jobs
		SET status = 'RUNNING', worker_id = $1, lease_expires_at = now() + ($2 || ' seconds')::interval,
			attempts = attempts + 1, updated_at = now()
		WHERE id = ANY($3)
		RETURNING id, strategy_id, user_id, chain, action, opportunity_ref, priority, payload,
			idempotency_key, status, attempts, max_attempts, worker_id, lease_expires_at, last_error, created_at, updated_at`

	claimRows, err := tx.QueryContext(ctx, updateQ, workerID, int(leaseDuration.Seconds()), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("store: claim jobs update: %w", err)
	}
	defer claimRows.Close()

	var out []*models.TradeJob
	for claimRows.Next() {
		j, err := scanTradeJob(claimRows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := claimRows.Err(); err != nil {
		return nil, err
	}

	return out, tx.Commit()
}

// ExtendLease pushes a held job's lease_expires_at forward, called periodically
// by long-running execution attempts (e.g. waiting on confirmation).
func (s *Store) ExtendLease(ctx context.Context, jobID int64, workerID string, leaseDuration time.Duration) error {
	const q = `
		UPDATE trade_jobs
		SET lease_expires_at = now() + ($3 || ' seconds')::interval, updated_at = now()
		WHERE id = $1 AND worker_id = $2 AND status = 'RUNNING'`

	res, err := s.db.ExecContext(ctx, q, jobID, workerID, int(leaseDuration.Seconds()))
	if err != nil {
		return fmt.Errorf("store: extend lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// FinalizeJob records the terminal outcome of a claimed job. Only the worker
// still holding the lease may finalize it; otherwise ErrLeaseLost is returned
// so the caller does not act on stale work.
func (s *Store) FinalizeJob(ctx context.Context, jobID int64, workerID, status, lastError string) error {
	const q = `
		UPDATE trade_jobs
		SET status = $3, last_error = $4, lease_expires_at = NULL, updated_at = now()
		WHERE id = $1 AND worker_id = $2 AND status = 'RUNNING'`

	res, err := s.db.ExecContext(ctx, q, jobID, workerID, status, lastError)
	if err != nil {
		return fmt.Errorf("store: finalize job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// GetJob looks up a job by primary key.
func (s *Store) GetJob(ctx context.Context, id int64) (*models.TradeJob, error) {
	const q = `
		SELECT id, strategy_id, user_id, chain, action, opportunity_ref, priority, payload,
			idempotency_key, status, attempts, max_attempts, worker_id, lease_expires_at, last_error, created_at, updated_at
		FROM trade_jobs WHERE id = $1`

	row := s.db.QueryRowContext(ctx, q, id)
	j, err := scanTradeJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func scanTradeJob(row rowScanner) (*models.TradeJob, error) {
	var j models.TradeJob
	err := row.Scan(
		&j.ID, &j.StrategyID, &j.UserID, &j.Chain, &j.Action, &j.OpportunityRef, &j.Priority, &j.Payload,
		&j.IdempotencyKey, &j.Status, &j.Attempts, &j.MaxAttempts, &j.WorkerID, &j.LeaseExpiresAt, &j.LastError,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
