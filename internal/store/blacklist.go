package store

import (
	"context"
	"fmt"

	"raptor/internal/models"
)

// AddBlacklistEntry inserts a permanent deny entry. A duplicate is not an
// error — the target is already denied.
func (s *Store) AddBlacklistEntry(ctx context.Context, b *models.BlacklistEntry) error {
	const q = `
		INSERT INTO blacklist_entries (chain, type, target, reason, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (chain, type, target) DO NOTHING`

	_, err := s.db.ExecContext(ctx, q, b.Chain, b.Type, b.Target, b.Reason)
	if err != nil {
		return fmt.Errorf("store: add blacklist entry: %w", err)
	}
	return nil
}

// RemoveBlacklistEntry lifts a deny entry.
func (s *Store) RemoveBlacklistEntry(ctx context.Context, chain, typ, target string) error {
	const q = `DELETE FROM blacklist_entries WHERE chain = $1 AND type = $2 AND target = $3`
	res, err := s.db.ExecContext(ctx, q, chain, typ, target)
	if err != nil {
		return fmt.Errorf("store: remove blacklist entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
