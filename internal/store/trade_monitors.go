package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"raptor/internal/models"
)

// UpsertTradeMonitor opens or refreshes the single active panel for (user, mint).
func (s *Store) UpsertTradeMonitor(ctx context.Context, m *models.TradeMonitor) (int64, error) {
	const q = `
		INSERT INTO trade_monitors (
			user_id, token_mint, chat_id, message_id, entry_snapshot, current_price, current_value,
			current_pnl, current_mcap, liquidity, status, current_view, expires_at, last_refresh_at, refresh_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'ACTIVE', $11, $12, now(), 0)
		ON CONFLICT (user_id, token_mint) WHERE status = 'ACTIVE' DO UPDATE SET
			chat_id = EXCLUDED.chat_id,
			message_id = EXCLUDED.message_id,
			current_price = EXCLUDED.current_price,
			current_value = EXCLUDED.current_value,
			current_pnl = EXCLUDED.current_pnl,
			current_mcap = EXCLUDED.current_mcap,
			liquidity = EXCLUDED.liquidity,
			expires_at = EXCLUDED.expires_at,
			last_refresh_at = now(),
			refresh_count = trade_monitors.refresh_count + 1
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, q,
		m.UserID, m.TokenMint, m.ChatID, m.MessageID, m.EntrySnapshot, m.CurrentPrice, m.CurrentValue,
		m.CurrentPnl, m.CurrentMcap, m.Liquidity, m.CurrentView, m.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: upsert trade monitor: %w", err)
	}
	return id, nil
}

// SetTradeMonitorView updates the user-driven view lock (MONITOR/SELL/TOKEN).
func (s *Store) SetTradeMonitorView(ctx context.Context, id int64, view string) error {
	const q = `UPDATE trade_monitors SET current_view = $2 WHERE id = $1 AND status = 'ACTIVE'`
	res, err := s.db.ExecContext(ctx, q, id, view)
	if err != nil {
		return fmt.Errorf("store: set trade monitor view: %w", err)
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

// ListActiveTradeMonitors returns every panel still due for background refresh.
func (s *Store) ListActiveTradeMonitors(ctx context.Context) ([]*models.TradeMonitor, error) {
	const q = tradeMonitorSelectCols + ` FROM trade_monitors WHERE status = 'ACTIVE'`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list active trade monitors: %w", err)
	}
	defer rows.Close()

	var out []*models.TradeMonitor
	for rows.Next() {
		m, err := scanTradeMonitor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetTradeMonitor looks up a panel by primary key.
func (s *Store) GetTradeMonitor(ctx context.Context, id int64) (*models.TradeMonitor, error) {
	const q = tradeMonitorSelectCols + ` FROM trade_monitors WHERE id = $1`
	row := s.db.QueryRowContext(ctx, q, id)
	m, err := scanTradeMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ExpireStaleTradeMonitors closes panels past their TTL, called from the
// maintenance loop so a user's chat message stops being refreshed forever.
func (s *Store) ExpireStaleTradeMonitors(ctx context.Context) (int64, error) {
	const q = `UPDATE trade_monitors SET status = 'EXPIRED' WHERE status = 'ACTIVE' AND expires_at <= now()`
	res, err := s.db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("store: expire trade monitors: %w", err)
	}
	return res.RowsAffected()
}

const tradeMonitorSelectCols = `
	SELECT id, user_id, token_mint, chat_id, message_id, entry_snapshot, current_price, current_value,
		current_pnl, current_mcap, liquidity, status, current_view, expires_at, last_refresh_at, refresh_count`

func scanTradeMonitor(row rowScanner) (*models.TradeMonitor, error) {
	var m models.TradeMonitor
	err := row.Scan(
		&m.ID, &m.UserID, &m.TokenMint, &m.ChatID, &m.MessageID, &m.EntrySnapshot, &m.CurrentPrice, &m.CurrentValue,
		&m.CurrentPnl, &m.CurrentMcap, &m.Liquidity, &m.Status, &m.CurrentView, &m.ExpiresAt, &m.LastRefreshAt, &m.RefreshCount,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
