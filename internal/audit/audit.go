// Package audit is the append-only security audit log (spec §7): "key
// export, withdrawal initiation, honeypot detected, circuit open" events are
// written here with timestamp, user, chain, and details, and the log is
// never updated or deleted from in place. Modeled on the teacher's
// blacklist_repository.go insert-only shape, the closest thing the teacher
// has to a write-once table.
package audit

import (
	"context"
	"database/sql"
	"fmt"

	"raptor/internal/models"
)

// Log writes audit events. A *sql.DB is enough: unlike internal/store this
// package never needs a transaction spanning more than one insert.
type Log struct {
	db *sql.DB
}

// New wraps an existing connection pool, normally the one internal/store
// already opened.
func New(db *sql.DB) *Log {
	return &Log{db: db}
}

// Record appends one event. userID is nil for events with no acting user
// (e.g. a circuit breaker trip driven by the safety gate itself).
func (l *Log) Record(ctx context.Context, kind string, userID *int64, chain string, details models.JSONMap) error {
	const q = `
		INSERT INTO audit_log (kind, user_id, chain, details, created_at)
		VALUES ($1, $2, $3, $4, now())`
	_, err := l.db.ExecContext(ctx, q, kind, userID, chain, details)
	if err != nil {
		return fmt.Errorf("audit: record %s: %w", kind, err)
	}
	return nil
}

// Recent returns the most recent events, newest first, for operator review.
// There is deliberately no Update or Delete: the log is append-only.
func (l *Log) Recent(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	const q = `
		SELECT id, kind, user_id, chain, details, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := l.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.UserID, &e.Chain, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ForUser returns a user's own audit trail, e.g. for the chat front-end's
// "show my key export history" command.
func (l *Log) ForUser(ctx context.Context, userID int64, limit int) ([]*models.AuditEvent, error) {
	const q = `
		SELECT id, kind, user_id, chain, details, created_at
		FROM audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := l.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: for user: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		if err := rows.Scan(&e.ID, &e.Kind, &e.UserID, &e.Chain, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
