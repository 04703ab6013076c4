package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"raptor/internal/models"
)

// GetOrCreateUserByChatID returns the user for chatID, creating one on first
// interaction (spec §3 "created on first interaction, never deleted").
func (s *Store) GetOrCreateUserByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	u, err := s.GetUserByChatID(ctx, chatID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	const q = `
		INSERT INTO users (chat_id, slippage_bps, priority_fee_lamports, anti_mev, created_at, updated_at)
		VALUES ($1, 100, 0, false, now(), now())
		ON CONFLICT (chat_id) DO UPDATE SET chat_id = EXCLUDED.chat_id
		RETURNING id, chat_id, slippage_bps, priority_fee_lamports, anti_mev, chain_overrides, created_at, updated_at`

	row := s.db.QueryRowContext(ctx, q, chatID)
	return scanUser(row)
}

// GetUserByChatID looks up a user by external chat id.
func (s *Store) GetUserByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	const q = `
		SELECT id, chat_id, slippage_bps, priority_fee_lamports, anti_mev, chain_overrides, created_at, updated_at
		FROM users WHERE chat_id = $1`

	row := s.db.QueryRowContext(ctx, q, chatID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// GetUser looks up a user by primary key.
func (s *Store) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	const q = `
		SELECT id, chat_id, slippage_bps, priority_fee_lamports, anti_mev, chain_overrides, created_at, updated_at
		FROM users WHERE id = $1`

	row := s.db.QueryRowContext(ctx, q, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// UpdateUserSettings persists slippage/priority-fee/anti-MEV preferences.
func (s *Store) UpdateUserSettings(ctx context.Context, u *models.User) error {
	const q = `
		UPDATE users
		SET slippage_bps = $2, priority_fee_lamports = $3, anti_mev = $4, chain_overrides = $5, updated_at = now()
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, q, u.ID, u.SlippageBps, u.PriorityFeeLamp, u.AntiMEV, u.ChainOverrides)
	if err != nil {
		return fmt.Errorf("store: update user settings: %w", err)
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.ChatID, &u.SlippageBps, &u.PriorityFeeLamp, &u.AntiMEV, &u.ChainOverrides, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
