package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"raptor/internal/models"
)

// ErrBudgetExceeded is returned by ReserveTradeBudget when admitting the
// requested spend would breach the strategy's daily or open-exposure caps.
var ErrBudgetExceeded = errors.New("store: trade budget exceeded")

// ReserveTradeBudget is the reserve_trade_budget RPC (spec §4.1/§4.2, the
// Budget and Safety Gate) in full: (a) idempotency-key reuse — an existing
// non-terminal or CONFIRMED execution under this key is returned as-is rather
// than double-reserved, and a FAILED one is reused in place when allowRetry is
// set; (b) global safety controls (trading_paused, circuit breaker); (c)
// strategy caps, re-derived from first principles each call (summing
// RESERVED/SUBMITTED/CONFIRMED executions and ACTIVE positions rather than
// trusting a running counter); (d) cooldowns on the mint, the (user, mint)
// pair, and the deployer. Everything happens under one transaction so two
// concurrent reservations for the same budget can never both slip through.
func (s *Store) ReserveTradeBudget(ctx context.Context, st *models.Strategy, idempotencyKey, mint, deployer, action, mode string, amountSOL float64, allowRetry bool) (*models.Execution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: reserve budget begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := txGetExecutionByIdempotencyKey(ctx, tx, idempotencyKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.Status != models.ExecutionFailed || !allowRetry {
			return existing, ErrAlreadyExecuted
		}
		// FAILED + allow_retry: the caller reuses this row rather than
		// inserting a new one, so the rest of the transaction doesn't
		// re-check caps the first reservation already cleared.
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return existing, nil
	}

	safety, err := txGetSafetyControls(ctx, tx)
	if err != nil {
		return nil, err
	}
	if blocked, reason := safety.Blocking(time.Now()); blocked {
		if reason == "CIRCUIT_OPEN" {
			return nil, ErrCircuitOpen
		}
		return nil, ErrTradingPaused
	}

	if action == models.ActionBuy {
		for _, cd := range []struct{ typ, target string }{
			{models.CooldownMint, mint},
			{models.CooldownUserMint, fmt.Sprintf("%d:%s", st.UserID, mint)},
			{models.CooldownDeployer, deployer},
		} {
			if cd.target == "" {
				continue
			}
			active, err := txActiveCooldown(ctx, tx, st.Chain, cd.typ, cd.target)
			if err != nil {
				return nil, err
			}
			if active {
				return nil, ErrCooldownActive
			}
		}
	}

	var spentToday float64
	const spentQ = `
		SELECT COALESCE(SUM(amount_sol), 0) FROM executions
		WHERE user_id = $1 AND action = 'BUY' AND status IN ('RESERVED', 'SUBMITTED', 'CONFIRMED')
		  AND created_at >= date_trunc('day', now())`
	if err := tx.QueryRowContext(ctx, spentQ, st.UserID).Scan(&spentToday); err != nil {
		return nil, fmt.Errorf("store: reserve budget spent: %w", err)
	}

	var openExposure float64
	const exposureQ = `
		SELECT COALESCE(SUM(entry_cost_sol), 0) FROM positions
		WHERE user_id = $1 AND status = 'ACTIVE'`
	if err := tx.QueryRowContext(ctx, exposureQ, st.UserID).Scan(&openExposure); err != nil {
		return nil, fmt.Errorf("store: reserve budget exposure: %w", err)
	}

	var openPositions int
	const positionsQ = `SELECT count(*) FROM positions WHERE user_id = $1 AND status = 'ACTIVE'`
	if err := tx.QueryRowContext(ctx, positionsQ, st.UserID).Scan(&openPositions); err != nil {
		return nil, fmt.Errorf("store: reserve budget position count: %w", err)
	}

	if action == models.ActionBuy {
		if amountSOL > st.MaxPerTradeSOL {
			return nil, ErrBudgetExceeded
		}
		if spentToday+amountSOL > st.MaxDailySOL {
			return nil, ErrBudgetExceeded
		}
		if openExposure+amountSOL > st.MaxOpenExposureSOL {
			return nil, ErrBudgetExceeded
		}
		if openPositions >= st.MaxPositions {
			return nil, ErrBudgetExceeded
		}
	}

	const insert = `
		INSERT INTO executions (idempotency_key, user_id, mint, action, mode, status, amount_sol, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'RESERVED', $6, now(), now())
		RETURNING id, idempotency_key, user_id, mint, action, mode, status, tx_sig, amount_sol,
			tokens_out, price_per_token, error, error_code, result, created_at, updated_at`

	row := tx.QueryRowContext(ctx, insert, idempotencyKey, st.UserID, mint, action, mode, amountSOL)
	exec, err := scanExecution(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExecuted
		}
		return nil, fmt.Errorf("store: reserve budget insert: %w", err)
	}

	return exec, tx.Commit()
}

// UpdateExecution advances an execution's status and attaches the fields the
// caller learned since reservation (tx signature, filled amount, price, or
// failure detail). The transition is validated against CanTransitionExecution
// before the write is attempted.
func (s *Store) UpdateExecution(ctx context.Context, id int64, toStatus string, txSig *string, tokensOut *string, pricePerToken *float64, errText, errCode string, result models.JSONMap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: update execution begin: %w", err)
	}
	defer tx.Rollback()

	var fromStatus string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM executions WHERE id = $1 FOR UPDATE`, id).Scan(&fromStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if !models.CanTransitionExecution(fromStatus, toStatus) {
		return fmt.Errorf("store: illegal execution transition %s -> %s", fromStatus, toStatus)
	}

	const q = `
		UPDATE executions
		SET status = $2, tx_sig = $3, tokens_out = $4, price_per_token = $5, error = $6, error_code = $7,
			result = $8, updated_at = now()
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, q, id, toStatus, txSig, tokensOut, pricePerToken, errText, errCode, result); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExecuted
		}
		return fmt.Errorf("store: update execution: %w", err)
	}

	return tx.Commit()
}

// GetExecution looks up an execution by primary key.
func (s *Store) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	const q = `
		SELECT id, idempotency_key, user_id, mint, action, mode, status, tx_sig, amount_sol,
			tokens_out, price_per_token, error, error_code, result, created_at, updated_at
		FROM executions WHERE id = $1`
	row := s.db.QueryRowContext(ctx, q, id)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return exec, err
}

// GetExecutionByIdempotencyKey supports replay-safe lookups: a caller that
// crashed after reserving but before learning the outcome can recover its
// execution by the same key it would have used to create one.
func (s *Store) GetExecutionByIdempotencyKey(ctx context.Context, key string) (*models.Execution, error) {
	const q = `
		SELECT id, idempotency_key, user_id, mint, action, mode, status, tx_sig, amount_sol,
			tokens_out, price_per_token, error, error_code, result, created_at, updated_at
		FROM executions WHERE idempotency_key = $1`
	row := s.db.QueryRowContext(ctx, q, key)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return exec, err
}

// CleanupStaleExecutions transitions RESERVED/SUBMITTED executions older than
// staleAfterMinutes to FAILED, releasing budget they were holding. Called from
// the maintenance loop (spec §4.9).
func (s *Store) CleanupStaleExecutions(ctx context.Context, staleAfterMinutes int) (int64, error) {
	const q = `
		UPDATE executions
		SET status = 'FAILED', error = 'stale: exceeded confirmation window', error_code = 'RPC_TIMEOUT', updated_at = now()
		WHERE status IN ('RESERVED', 'SUBMITTED')
		  AND updated_at <= now() - ($1 || ' minutes')::interval`
	res, err := s.db.ExecContext(ctx, q, staleAfterMinutes)
	if err != nil {
		return 0, fmt.Errorf("store: cleanup stale executions: %w", err)
	}
	return res.RowsAffected()
}

// txGetExecutionByIdempotencyKey looks up an execution within an in-flight
// transaction, for reserve_trade_budget's reuse check.
func txGetExecutionByIdempotencyKey(ctx context.Context, tx *sql.Tx, key string) (*models.Execution, error) {
	const q = `
		SELECT id, idempotency_key, user_id, mint, action, mode, status, tx_sig, amount_sol,
			tokens_out, price_per_token, error, error_code, result, created_at, updated_at
		FROM executions WHERE idempotency_key = $1 FOR UPDATE`
	exec, err := scanExecution(tx.QueryRowContext(ctx, q, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return exec, err
}

// txGetSafetyControls reads the singleton safety row within a transaction.
func txGetSafetyControls(ctx context.Context, tx *sql.Tx) (*models.SafetyControls, error) {
	const q = `SELECT scope, trading_paused, circuit_open_until, updated_at FROM safety_controls WHERE scope = $1`
	sc, err := scanSafetyControls(tx.QueryRowContext(ctx, q, models.SafetyScopeGlobal))
	if errors.Is(err, sql.ErrNoRows) {
		// no row yet means nothing has ever paused trading or tripped the breaker
		return &models.SafetyControls{Scope: models.SafetyScopeGlobal}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reserve budget safety controls: %w", err)
	}
	return sc, nil
}

// txActiveCooldown reports whether (chain, typ, target) currently suppresses activity.
func txActiveCooldown(ctx context.Context, tx *sql.Tx, chain, typ, target string) (bool, error) {
	const q = `SELECT 1 FROM cooldowns WHERE chain = $1 AND type = $2 AND target = $3 AND cooldown_until > now()`
	var found int
	err := tx.QueryRowContext(ctx, q, chain, typ, target).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: reserve budget cooldown check: %w", err)
	}
	return true, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var e models.Execution
	err := row.Scan(
		&e.ID, &e.IdempotencyKey, &e.UserID, &e.Mint, &e.Action, &e.Mode, &e.Status, &e.TxSig, &e.AmountSOL,
		&e.TokensOut, &e.PricePerToken, &e.Error, &e.ErrorCode, &e.Result, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
