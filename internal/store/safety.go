package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"raptor/internal/models"
)

// GetSafetyControls returns the GLOBAL singleton row, creating it with
// trading enabled on first access.
func (s *Store) GetSafetyControls(ctx context.Context) (*models.SafetyControls, error) {
	const q = `SELECT scope, trading_paused, circuit_open_until, updated_at FROM safety_controls WHERE scope = $1`
	row := s.db.QueryRowContext(ctx, q, models.SafetyScopeGlobal)
	sc, err := scanSafetyControls(row)
	if errors.Is(err, sql.ErrNoRows) {
		const insert = `
			INSERT INTO safety_controls (scope, trading_paused, updated_at)
			VALUES ($1, false, now())
			ON CONFLICT (scope) DO NOTHING
			RETURNING scope, trading_paused, circuit_open_until, updated_at`
		row := s.db.QueryRowContext(ctx, insert, models.SafetyScopeGlobal)
		sc, err = scanSafetyControls(row)
		if errors.Is(err, sql.ErrNoRows) {
			return s.GetSafetyControls(ctx)
		}
	}
	return sc, err
}

// SetTradingPaused toggles the global kill switch (an operator action, not
// something any automated worker calls).
func (s *Store) SetTradingPaused(ctx context.Context, paused bool) error {
	const q = `
		INSERT INTO safety_controls (scope, trading_paused, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (scope) DO UPDATE SET trading_paused = EXCLUDED.trading_paused, updated_at = now()`

	_, err := s.db.ExecContext(ctx, q, models.SafetyScopeGlobal, paused)
	if err != nil {
		return fmt.Errorf("store: set trading paused: %w", err)
	}
	return nil
}

// TripCircuitBreaker opens the circuit until the given time (spec §7's
// circuit-open code). No component in this repository calls it.
func (s *Store) TripCircuitBreaker(ctx context.Context, until time.Time) error {
	const q = `
		INSERT INTO safety_controls (scope, trading_paused, circuit_open_until, updated_at)
		VALUES ($1, false, $2, now())
		ON CONFLICT (scope) DO UPDATE SET
			circuit_open_until = GREATEST(COALESCE(safety_controls.circuit_open_until, now()), EXCLUDED.circuit_open_until),
			updated_at = now()`

	_, err := s.db.ExecContext(ctx, q, models.SafetyScopeGlobal, until)
	if err != nil {
		return fmt.Errorf("store: trip circuit breaker: %w", err)
	}
	return nil
}

func scanSafetyControls(row rowScanner) (*models.SafetyControls, error) {
	var sc models.SafetyControls
	err := row.Scan(&sc.Scope, &sc.TradingPaused, &sc.CircuitOpenUntil, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}
