package models

import "time"

// Wallet belongs to a user; at most one active wallet per (user, chain).
type Wallet struct {
	ID              int64     `json:"id" db:"id"`
	UserID          int64     `json:"user_id" db:"user_id"`
	Chain           string    `json:"chain" db:"chain"`
	WalletIndex     int       `json:"wallet_index" db:"wallet_index"` // 1..5
	Label           string    `json:"label" db:"label"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	EncryptedKey    []byte    `json:"-" db:"encrypted_key"` // never emitted except by explicit logged export
	PublicAddress   string    `json:"public_address" db:"public_address"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
