package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"raptor/internal/models"
)

// GetActiveWallet returns the active wallet for (userID, chain). A position or
// job can only be worked against the active wallet, per spec §3's single-writer
// invariant.
func (s *Store) GetActiveWallet(ctx context.Context, userID int64, chain string) (*models.Wallet, error) {
	const q = `
		SELECT id, user_id, chain, wallet_index, label, is_active, encrypted_key, public_address, created_at
		FROM wallets WHERE user_id = $1 AND chain = $2 AND is_active = true`

	row := s.db.QueryRowContext(ctx, q, userID, chain)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

// CreateWallet inserts a new wallet. If it is the first wallet on this chain
// for the user, or isActive is requested, it is atomically promoted.
func (s *Store) CreateWallet(ctx context.Context, w *models.Wallet) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: create wallet begin: %w", err)
	}
	defer tx.Rollback()

	if w.IsActive {
		const deactivate = `UPDATE wallets SET is_active = false WHERE user_id = $1 AND chain = $2 AND is_active = true`
		if _, err := tx.ExecContext(ctx, deactivate, w.UserID, w.Chain); err != nil {
			return 0, fmt.Errorf("store: deactivate existing wallets: %w", err)
		}
	}

	const insert = `
		INSERT INTO wallets (user_id, chain, wallet_index, label, is_active, encrypted_key, public_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id`

	var id int64
	err = tx.QueryRowContext(ctx, insert, w.UserID, w.Chain, w.WalletIndex, w.Label, w.IsActive, w.EncryptedKey, w.PublicAddress).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: create wallet insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: create wallet commit: %w", err)
	}
	return id, nil
}

// DeleteWallet forbids deleting the only wallet on a chain, and atomically
// promotes another wallet to active when deleting the active one (spec §3).
func (s *Store) DeleteWallet(ctx context.Context, walletID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete wallet begin: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	var chain string
	var isActive bool
	const selectOne = `SELECT user_id, chain, is_active FROM wallets WHERE id = $1 FOR UPDATE`
	if err := tx.QueryRowContext(ctx, selectOne, walletID).Scan(&userID, &chain, &isActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var count int
	const countQ = `SELECT count(*) FROM wallets WHERE user_id = $1 AND chain = $2`
	if err := tx.QueryRowContext(ctx, countQ, userID, chain).Scan(&count); err != nil {
		return err
	}
	if count <= 1 {
		return fmt.Errorf("store: cannot delete the only wallet on chain %s", chain)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM wallets WHERE id = $1`, walletID); err != nil {
		return fmt.Errorf("store: delete wallet: %w", err)
	}

	if isActive {
		const promote = `
			UPDATE wallets SET is_active = true
			WHERE id = (SELECT id FROM wallets WHERE user_id = $1 AND chain = $2 ORDER BY wallet_index ASC LIMIT 1)`
		if _, err := tx.ExecContext(ctx, promote, userID, chain); err != nil {
			return fmt.Errorf("store: promote wallet: %w", err)
		}
	}

	return tx.Commit()
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Chain, &w.WalletIndex, &w.Label, &w.IsActive, &w.EncryptedKey, &w.PublicAddress, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
