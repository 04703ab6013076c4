package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"raptor/internal/models"
)

// InsertCandidate records a discovery event, deduping on (chain, source, token_mint).
// A duplicate insert is not an error: the candidate is already queued for every
// interested user, so the caller should treat it as a no-op (spec §8 dedup rule).
func (s *Store) InsertCandidate(ctx context.Context, c *models.LaunchCandidate) (int64, bool, error) {
	const q = `
		INSERT INTO launch_candidates (
			chain, source, token_mint, name, symbol, score, deployer, bonding_curve,
			initial_liquidity, raw_payload, status, first_seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'new', now())
		ON CONFLICT (chain, source, token_mint) DO NOTHING
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, q,
		c.Chain, c.Source, c.TokenMint, c.Name, c.Symbol, c.Score, c.Deployer, c.BondingCurve,
		c.InitialLiquidity, c.RawPayload,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: insert candidate: %w", err)
	}
	return id, true, nil
}

// ClaimNewCandidates locks up to limit 'new' candidates for consumption, using
// SKIP LOCKED so multiple consumer instances never double-process a row
// (grounded on the outbox worker's FOR UPDATE SKIP LOCKED idiom).
func (s *Store) ClaimNewCandidates(ctx context.Context, chain string, limit int) ([]*models.LaunchCandidate, error) {
	const q = `
		SELECT id, chain, source, token_mint, name, symbol, score, deployer, bonding_curve,
			initial_liquidity, raw_payload, status, first_seen_at
		FROM launch_candidates
		WHERE chain = $1 AND status = 'new'
		ORDER BY first_seen_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := s.db.QueryContext(ctx, q, chain, limit)
	if err != nil {
		return nil, fmt.Errorf("store: claim candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.LaunchCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResolveCandidate moves a candidate to a terminal status (accepted, rejected, expired).
func (s *Store) ResolveCandidate(ctx context.Context, id int64, status string) error {
	const q = `UPDATE launch_candidates SET status = $2 WHERE id = $1 AND status = 'new'`
	res, err := s.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("store: resolve candidate: %w", err)
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

// ExpireStaleCandidates bulk-transitions candidates older than maxAge still in
// 'new' to 'expired', called from the maintenance loop.
func (s *Store) ExpireStaleCandidates(ctx context.Context, maxAgeSeconds int) (int64, error) {
	const q = `
		UPDATE launch_candidates
		SET status = 'expired'
		WHERE status = 'new' AND first_seen_at <= now() - ($1 || ' seconds')::interval`

	res, err := s.db.ExecContext(ctx, q, maxAgeSeconds)
	if err != nil {
		return 0, fmt.Errorf("store: expire stale candidates: %w", err)
	}
	return res.RowsAffected()
}

func scanCandidate(row rowScanner) (*models.LaunchCandidate, error) {
	var c models.LaunchCandidate
	err := row.Scan(
		&c.ID, &c.Chain, &c.Source, &c.TokenMint, &c.Name, &c.Symbol, &c.Score, &c.Deployer,
		&c.BondingCurve, &c.InitialLiquidity, &c.RawPayload, &c.Status, &c.FirstSeenAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
