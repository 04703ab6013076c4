package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"raptor/internal/models"
)

// UpsertStrategy enforces the spec's exactly-one-(user,kind,chain) invariant via ON CONFLICT.
func (s *Store) UpsertStrategy(ctx context.Context, st *models.Strategy) (int64, error) {
	const q = `
		INSERT INTO strategies (
			user_id, chain, kind, enabled, auto_execute, risk_profile, max_positions,
			max_per_trade_sol, max_daily_sol, max_open_exposure_sol, slippage_bps,
			priority_fee_lamports, take_profit_percent, stop_loss_percent, max_hold_minutes,
			trailing_enabled, trail_activation_percent, trail_distance_percent, moon_bag_percent,
			min_score, launchpad_allowlist, cooldown_seconds, allow_list, deny_list,
			snipe_mode, filter_mode, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, now(), now()
		)
		ON CONFLICT (user_id, kind, chain) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			auto_execute = EXCLUDED.auto_execute,
			risk_profile = EXCLUDED.risk_profile,
			max_positions = EXCLUDED.max_positions,
			max_per_trade_sol = EXCLUDED.max_per_trade_sol,
			max_daily_sol = EXCLUDED.max_daily_sol,
			max_open_exposure_sol = EXCLUDED.max_open_exposure_sol,
			slippage_bps = EXCLUDED.slippage_bps,
			priority_fee_lamports = EXCLUDED.priority_fee_lamports,
			take_profit_percent = EXCLUDED.take_profit_percent,
			stop_loss_percent = EXCLUDED.stop_loss_percent,
			max_hold_minutes = EXCLUDED.max_hold_minutes,
			trailing_enabled = EXCLUDED.trailing_enabled,
			trail_activation_percent = EXCLUDED.trail_activation_percent,
			trail_distance_percent = EXCLUDED.trail_distance_percent,
			moon_bag_percent = EXCLUDED.moon_bag_percent,
			min_score = EXCLUDED.min_score,
			launchpad_allowlist = EXCLUDED.launchpad_allowlist,
			cooldown_seconds = EXCLUDED.cooldown_seconds,
			allow_list = EXCLUDED.allow_list,
			deny_list = EXCLUDED.deny_list,
			snipe_mode = EXCLUDED.snipe_mode,
			filter_mode = EXCLUDED.filter_mode,
			updated_at = now()
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, q,
		st.UserID, st.Chain, st.Kind, st.Enabled, st.AutoExecute, st.RiskProfile, st.MaxPositions,
		st.MaxPerTradeSOL, st.MaxDailySOL, st.MaxOpenExposureSOL, st.SlippageBps,
		st.PriorityFeeLamports, st.TakeProfitPercent, st.StopLossPercent, st.MaxHoldMinutes,
		st.TrailingEnabled, st.TrailActivationPct, st.TrailDistancePct, st.MoonBagPercent,
		st.MinScore, pq.Array(st.LaunchpadAllowlist), st.CooldownSeconds, pq.Array(st.AllowList), pq.Array(st.DenyList),
		st.SnipeMode, st.FilterMode,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: upsert strategy: %w", err)
	}
	return id, nil
}

// GetStrategy looks up a strategy by primary key.
func (s *Store) GetStrategy(ctx context.Context, id int64) (*models.Strategy, error) {
	const q = strategySelectCols + ` FROM strategies WHERE id = $1`
	row := s.db.QueryRowContext(ctx, q, id)
	st, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

// ListActivatedAutoStrategies returns every AUTO strategy with enabled=true
// and auto_execute=true on chain, consumed by the Candidate Consumer (spec §4.5).
func (s *Store) ListActivatedAutoStrategies(ctx context.Context, chain string) ([]*models.Strategy, error) {
	const q = strategySelectCols + `
		FROM strategies
		WHERE chain = $1 AND kind = 'AUTO' AND enabled = true AND auto_execute = true`

	rows, err := s.db.QueryContext(ctx, q, chain)
	if err != nil {
		return nil, fmt.Errorf("store: list activated strategies: %w", err)
	}
	defer rows.Close()

	var out []*models.Strategy
	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

const strategySelectCols = `
	SELECT id, user_id, chain, kind, enabled, auto_execute, risk_profile, max_positions,
		max_per_trade_sol, max_daily_sol, max_open_exposure_sol, slippage_bps,
		priority_fee_lamports, take_profit_percent, stop_loss_percent, max_hold_minutes,
		trailing_enabled, trail_activation_percent, trail_distance_percent, moon_bag_percent,
		min_score, launchpad_allowlist, cooldown_seconds, allow_list, deny_list,
		snipe_mode, filter_mode, created_at, updated_at`

func scanStrategy(row rowScanner) (*models.Strategy, error) {
	var st models.Strategy
	err := row.Scan(
		&st.ID, &st.UserID, &st.Chain, &st.Kind, &st.Enabled, &st.AutoExecute, &st.RiskProfile, &st.MaxPositions,
		&st.MaxPerTradeSOL, &st.MaxDailySOL, &st.MaxOpenExposureSOL, &st.SlippageBps,
		&st.PriorityFeeLamports, &st.TakeProfitPercent, &st.StopLossPercent, &st.MaxHoldMinutes,
		&st.TrailingEnabled, &st.TrailActivationPct, &st.TrailDistancePct, &st.MoonBagPercent,
		&st.MinScore, pq.Array(&st.LaunchpadAllowlist), &st.CooldownSeconds, pq.Array(&st.AllowList), pq.Array(&st.DenyList),
		&st.SnipeMode, &st.FilterMode, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
