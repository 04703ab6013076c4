package models

import "time"

// User identity is keyed by external chat id; never deleted during operation.
type User struct {
	ID              int64     `json:"id" db:"id"`
	ChatID          int64     `json:"chat_id" db:"chat_id"`
	SlippageBps     int       `json:"slippage_bps" db:"slippage_bps"`
	PriorityFeeLamp int64     `json:"priority_fee_lamports" db:"priority_fee_lamports"`
	AntiMEV         bool      `json:"anti_mev" db:"anti_mev"`
	ChainOverrides  JSONMap   `json:"chain_overrides,omitempty" db:"chain_overrides"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
