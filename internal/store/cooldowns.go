package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"raptor/internal/models"
)

// SetCooldown is the set_cooldown RPC: upsert-on-conflict against the
// (chain, type, target) key so repeated triggers just extend the window.
func (s *Store) SetCooldown(ctx context.Context, chain, typ, target string, until time.Time, reason string) error {
	const q = `
		INSERT INTO cooldowns (chain, type, target, cooldown_until, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (chain, type, target) DO UPDATE SET
			cooldown_until = GREATEST(cooldowns.cooldown_until, EXCLUDED.cooldown_until),
			reason = EXCLUDED.reason`

	_, err := s.db.ExecContext(ctx, q, chain, typ, target, until, reason)
	if err != nil {
		return fmt.Errorf("store: set cooldown: %w", err)
	}
	return nil
}

// ActiveCooldown reports the still-active cooldown for a target, if any.
func (s *Store) ActiveCooldown(ctx context.Context, chain, typ, target string) (*models.Cooldown, error) {
	const q = `
		SELECT id, chain, type, target, cooldown_until, reason, created_at
		FROM cooldowns
		WHERE chain = $1 AND type = $2 AND target = $3 AND cooldown_until > now()`

	row := s.db.QueryRowContext(ctx, q, chain, typ, target)
	c, err := scanCooldown(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ReapExpiredCooldowns deletes cooldown rows that have lapsed, bounding table growth.
func (s *Store) ReapExpiredCooldowns(ctx context.Context) (int64, error) {
	const q = `DELETE FROM cooldowns WHERE cooldown_until <= now()`
	res, err := s.db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("store: reap cooldowns: %w", err)
	}
	return res.RowsAffected()
}

// IsBlacklisted checks the (chain, type, target) blacklist, grounding the
// TOKEN_BLACKLISTED / DEPLOYER_BLACKLISTED error codes.
func (s *Store) IsBlacklisted(ctx context.Context, chain, typ, target string) (bool, error) {
	const q = `SELECT 1 FROM blacklist_entries WHERE chain = $1 AND type = $2 AND target = $3`
	var found int
	err := s.db.QueryRowContext(ctx, q, chain, typ, target).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check blacklist: %w", err)
	}
	return true, nil
}

func scanCooldown(row rowScanner) (*models.Cooldown, error) {
	var c models.Cooldown
	err := row.Scan(&c.ID, &c.Chain, &c.Type, &c.Target, &c.CooldownUntil, &c.Reason, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
