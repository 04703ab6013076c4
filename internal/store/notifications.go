package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"

	"raptor/internal/models"
)

// EnqueueNotification appends an outbox row (spec §4.8).
func (s *Store) EnqueueNotification(ctx context.Context, n *models.Notification) (int64, error) {
	const q = `
		INSERT INTO notifications (user_id, type, payload, status, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, 'pending', 0, $4, now())
		RETURNING id`

	maxAttempts := n.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	var id int64
	err := s.db.QueryRowContext(ctx, q, n.UserID, n.Type, n.Payload, maxAttempts).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: enqueue notification: %w", err)
	}
	return id, nil
}

// ClaimNotifications is the claim_notifications RPC, mirroring ClaimTradeJobs'
// SKIP LOCKED claim against the outbox table.
func (s *Store) ClaimNotifications(ctx context.Context, workerID string, limit int, leaseDuration time.Duration) ([]*models.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: claim notifications begin: %w", err)
	}
	defer tx.Rollback()

	const selectQ = `
		SELECT id FROM notifications
		WHERE (status = 'pending')
		   OR (status = 'sending' AND sending_expires_at IS NOT NULL AND sending_expires_at <= now())
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.QueryContext(ctx, selectQ, limit)
	if err != nil {
		return nil, fmt.Errorf("store: claim notifications select: %w", err)
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
		UPDATE notifications
		SET status = 'sending', worker_id = $1, sending_expires_at = now() + ($2 || ' seconds')::interval,
			attempts = attempts + 1
		WHERE id = ANY($3)
		RETURNING id, user_id, type, payload, status, attempts, max_attempts, sending_expires_at, worker_id, last_error, created_at, sent_at`

	claimRows, err := tx.QueryContext(ctx, updateQ, workerID, int(leaseDuration.Seconds()), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("store: claim notifications update: %w", err)
	}
	defer claimRows.Close()

	var out []*models.Notification
	for claimRows.Next() {
		n, err := scanNotification(claimRows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := claimRows.Err(); err != nil {
		return nil, err
	}

	return out, tx.Commit()
}

// MarkNotificationDelivered finalizes a successful delivery.
func (s *Store) MarkNotificationDelivered(ctx context.Context, id int64, workerID string) error {
	const q = `
		UPDATE notifications
		SET status = 'sent', sent_at = now(), sending_expires_at = NULL
		WHERE id = $1 AND worker_id = $2 AND status = 'sending'`

	res, err := s.db.ExecContext(ctx, q, id, workerID)
	if err != nil {
		return fmt.Errorf("store: mark notification delivered: %w", err)
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

// MarkNotificationFailed records a delivery failure. Once attempts reaches
// max_attempts the row moves to the terminal 'failed' status instead of being
// released back to 'pending'.
func (s *Store) MarkNotificationFailed(ctx context.Context, id int64, workerID, lastError string) error {
	const q = `
		UPDATE notifications
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
			last_error = $3, sending_expires_at = NULL
		WHERE id = $1 AND worker_id = $2 AND status = 'sending'`

	res, err := s.db.ExecContext(ctx, q, id, workerID, lastError)
	if err != nil {
		return fmt.Errorf("store: mark notification failed: %w", err)
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

// PurgeSentNotifications deletes delivered notifications older than
// olderThanHours, called from the maintenance loop to bound table growth.
func (s *Store) PurgeSentNotifications(ctx context.Context, olderThanHours int) (int64, error) {
	const q = `
		DELETE FROM notifications
		WHERE status = 'sent' AND sent_at <= now() - ($1 || ' hours')::interval`
	res, err := s.db.ExecContext(ctx, q, olderThanHours)
	if err != nil {
		return 0, fmt.Errorf("store: purge sent notifications: %w", err)
	}
	return res.RowsAffected()
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &n.Payload, &n.Status, &n.Attempts, &n.MaxAttempts,
		&n.SendingExpiresAt, &n.WorkerID, &n.LastError, &n.CreatedAt, &n.SentAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
