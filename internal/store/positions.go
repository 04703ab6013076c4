package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"raptor/internal/models"
)

// ErrTriggerConflict signals that trigger_exit_atomically lost the race: the
// position's trigger_state had already moved off MONITORING by the time this
// caller tried to claim it. The caller should simply drop the trigger — some
// other evaluation already owns the exit.
var ErrTriggerConflict = errors.New("store: trigger state already claimed")

// CreatePosition opens a position against a confirmed entry execution.
func (s *Store) CreatePosition(ctx context.Context, p *models.Position) (int64, error) {
	const q = `
		INSERT INTO positions (
			uuid_id, user_id, strategy_id, opportunity_ref, chain, token_mint, token_symbol, token_name,
			entry_execution_ref, entry_tx_sig, entry_cost_sol, entry_price, size_tokens, current_price,
			peak_price, tp_price, sl_price, trail_activation_price, bonding_curve, entry_mc_sol,
			lifecycle_state, status, trigger_state, opened_at, price_updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, 'ACTIVE', 'MONITORING', $22, now()
		)
		RETURNING id`

	openedAt := p.OpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now()
	}

	// current_price and peak_price default to entry_price for a fresh BUY
	// (p.PeakPrice unset); a moon-bag remainder (spec §9, DESIGN.md "Moon-bag
	// accounting") passes the original position's already-observed peak and
	// current price forward instead, so peak_price stays monotonic across
	// the split rather than resetting to entry_price.
	currentPrice := p.CurrentPrice
	if currentPrice == 0 {
		currentPrice = p.EntryPrice
	}
	peakPrice := p.PeakPrice
	if peakPrice == 0 {
		peakPrice = p.EntryPrice
	}

	var id int64
	err := s.db.QueryRowContext(ctx, q,
		p.UUID, p.UserID, p.StrategyID, p.OpportunityRef, p.Chain, p.TokenMint, p.TokenSymbol, p.TokenName,
		p.EntryExecutionRef, p.EntryTxSig, p.EntryCostSOL, p.EntryPrice, p.SizeTokens, currentPrice,
		peakPrice, p.TPPrice, p.SLPrice, p.TrailActivationPrice, p.BondingCurve, p.EntryMarketCapSOL, p.LifecycleState, openedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: create position: %w", err)
	}
	return id, nil
}

// GetPosition looks up a position by primary key.
func (s *Store) GetPosition(ctx context.Context, id int64) (*models.Position, error) {
	const q = positionSelectCols + ` FROM positions WHERE id = $1`
	row := s.db.QueryRowContext(ctx, q, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// ListMonitoredPositions is the Position Monitor's watch-set refresh query:
// every ACTIVE position currently in MONITORING on chain.
func (s *Store) ListMonitoredPositions(ctx context.Context, chain string) ([]*models.Position, error) {
	const q = positionSelectCols + `
		FROM positions
		WHERE chain = $1 AND status = 'ACTIVE' AND trigger_state = 'MONITORING'`

	rows, err := s.db.QueryContext(ctx, q, chain)
	if err != nil {
		return nil, fmt.Errorf("store: list monitored positions: %w", err)
	}
	defer rows.Close()

	var out []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePositionPrice records a fresh price sample, bumping peak_price when
// current exceeds it and recomputing the trailing stop if trailing is armed.
func (s *Store) UpdatePositionPrice(ctx context.Context, id int64, price float64, trailingStop *float64) error {
	const q = `
		UPDATE positions
		SET current_price = $2,
			peak_price = GREATEST(peak_price, $2),
			trailing_stop_price = COALESCE($3, trailing_stop_price),
			price_updated_at = now()
		WHERE id = $1 AND status = 'ACTIVE'`

	res, err := s.db.ExecContext(ctx, q, id, price, trailingStop)
	if err != nil {
		return fmt.Errorf("store: update position price: %w", err)
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

// TriggerExitAtomically is the trigger_exit_atomically RPC: a compare-and-set
// MONITORING -> TRIGGERED guarded by trigger_state equality in the WHERE
// clause. Exactly one caller observing a crossed threshold wins the row; every
// other evaluator of the same price tick gets ErrTriggerConflict and must not
// submit a second exit. This is the system's sole anti-double-exit mechanism.
func (s *Store) TriggerExitAtomically(ctx context.Context, positionID int64, trigger string, triggerPrice float64) error {
	const q = `
		UPDATE positions
		SET trigger_state = 'TRIGGERED', pending_trigger = $2, pending_trigger_price = $3
		WHERE id = $1 AND trigger_state = 'MONITORING' AND status = 'ACTIVE'`

	res, err := s.db.ExecContext(ctx, q, positionID, trigger, triggerPrice)
	if err != nil {
		return fmt.Errorf("store: trigger exit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTriggerConflict
	}
	return nil
}

// MarkPositionExecuting is the TRIGGERED -> EXECUTING step, taken once the
// Exit Queue has dequeued the trigger and is about to submit the sell.
func (s *Store) MarkPositionExecuting(ctx context.Context, positionID int64) error {
	const q = `
		UPDATE positions SET trigger_state = 'EXECUTING', status = 'CLOSING'
		WHERE id = $1 AND trigger_state = 'TRIGGERED'`

	res, err := s.db.ExecContext(ctx, q, positionID)
	if err != nil {
		return fmt.Errorf("store: mark position executing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTriggerConflict
	}
	return nil
}

// MarkTriggerCompleted closes out a confirmed exit. It takes no sell
// percentage: for a moon-bag exit (less than 100% sold) the caller inserts
// the remainder as a new position row first (see DESIGN.md), and this call
// only finalizes the original.
func (s *Store) MarkTriggerCompleted(ctx context.Context, positionID, exitExecutionRef int64, exitTxSig string, exitPrice float64, exitTrigger string, realizedPnlSOL, realizedPnlPercent float64) error {
	const q = `
		UPDATE positions
		SET trigger_state = 'COMPLETED', status = 'CLOSED', lifecycle_state = 'CLOSED',
			exit_execution_ref = $2, exit_tx_sig = $3, exit_price = $4, exit_trigger = $5,
			realized_pnl_sol = $6, realized_pnl_percent = $7, closed_at = now()
		WHERE id = $1 AND trigger_state = 'EXECUTING'`

	res, err := s.db.ExecContext(ctx, q, positionID, exitExecutionRef, exitTxSig, exitPrice, exitTrigger, realizedPnlSOL, realizedPnlPercent)
	if err != nil {
		return fmt.Errorf("store: mark trigger completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTriggerConflict
	}
	return nil
}

// MarkTriggerFailed records a failed exit attempt. The position is left in
// FAILED rather than reset immediately, so a maintenance pass can apply the
// one legal reverse edge (FAILED -> MONITORING) after the failure has been
// observed and logged, instead of silently retrying inline.
func (s *Store) MarkTriggerFailed(ctx context.Context, positionID int64, lastError string) error {
	const q = `
		UPDATE positions
		SET trigger_state = 'FAILED', status = 'ACTIVE', pending_trigger = NULL, pending_trigger_price = NULL
		WHERE id = $1 AND trigger_state = 'EXECUTING'`

	res, err := s.db.ExecContext(ctx, q, positionID)
	if err != nil {
		return fmt.Errorf("store: mark trigger failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTriggerConflict
	}
	return nil
}

// ReleaseFailedTriggers applies the FAILED -> MONITORING reverse edge for
// every position that failed its exit attempt, allowing the monitor to
// re-evaluate and re-trigger it on the next pricing cycle. Called from the
// maintenance loop.
func (s *Store) ReleaseFailedTriggers(ctx context.Context, chain string) (int64, error) {
	const q = `
		UPDATE positions SET trigger_state = 'MONITORING'
		WHERE chain = $1 AND trigger_state = 'FAILED' AND status = 'ACTIVE'`

	res, err := s.db.ExecContext(ctx, q, chain)
	if err != nil {
		return 0, fmt.Errorf("store: release failed triggers: %w", err)
	}
	return res.RowsAffected()
}

// ListOpenPositionsForUser supports the budget gate's open-exposure recount
// and position-count cap.
func (s *Store) ListOpenPositionsForUser(ctx context.Context, userID int64) ([]*models.Position, error) {
	const q = positionSelectCols + ` FROM positions WHERE user_id = $1 AND status = 'ACTIVE'`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list open positions: %w", err)
	}
	defer rows.Close()

	var out []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const positionSelectCols = `
	SELECT id, uuid_id, user_id, strategy_id, opportunity_ref, chain, token_mint, token_symbol, token_name,
		entry_execution_ref, entry_tx_sig, entry_cost_sol, entry_price, size_tokens, current_price,
		peak_price, trailing_stop_price, tp_price, sl_price, trail_activation_price, bonding_curve,
		entry_mc_sol, lifecycle_state, status, trigger_state, pending_trigger, pending_trigger_price,
		opened_at, price_updated_at, exit_execution_ref, exit_tx_sig, exit_price, exit_trigger,
		realized_pnl_sol, realized_pnl_percent, closed_at`

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	err := row.Scan(
		&p.ID, &p.UUID, &p.UserID, &p.StrategyID, &p.OpportunityRef, &p.Chain, &p.TokenMint, &p.TokenSymbol, &p.TokenName,
		&p.EntryExecutionRef, &p.EntryTxSig, &p.EntryCostSOL, &p.EntryPrice, &p.SizeTokens, &p.CurrentPrice,
		&p.PeakPrice, &p.TrailingStopPrice, &p.TPPrice, &p.SLPrice, &p.TrailActivationPrice, &p.BondingCurve,
		&p.EntryMarketCapSOL, &p.LifecycleState, &p.Status, &p.TriggerState, &p.PendingTrigger, &p.PendingTriggerPrice,
		&p.OpenedAt, &p.PriceUpdatedAt, &p.ExitExecutionRef, &p.ExitTxSig, &p.ExitPrice, &p.ExitTrigger,
		&p.RealizedPnlSOL, &p.RealizedPnlPercent, &p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
