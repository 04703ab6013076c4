package models

import "time"

// Trade monitor statuses.
const (
	TradeMonitorActive  = "ACTIVE"
	TradeMonitorPaused  = "PAUSED"
	TradeMonitorExpired = "EXPIRED"
	TradeMonitorClosed  = "CLOSED"
)

// Trade monitor views. CurrentView acts as a lock against background refresh
// overwriting a user-driven view.
const (
	ViewMonitor = "MONITOR"
	ViewSell    = "SELL"
	ViewToken   = "TOKEN"
)

// TradeMonitor is a user-visible panel row tied to (user, mint), active at most once.
type TradeMonitor struct {
	ID            int64     `json:"id" db:"id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	TokenMint     string    `json:"token_mint" db:"token_mint"`
	ChatID        int64     `json:"chat_id" db:"chat_id"`
	MessageID     int       `json:"message_id" db:"message_id"`
	EntrySnapshot JSONMap   `json:"entry_snapshot" db:"entry_snapshot"`
	CurrentPrice  float64   `json:"current_price" db:"current_price"`
	CurrentValue  float64   `json:"current_value" db:"current_value"`
	CurrentPnl    float64   `json:"current_pnl" db:"current_pnl"`
	CurrentMcap   float64   `json:"current_mcap" db:"current_mcap"`
	Liquidity     float64   `json:"liquidity" db:"liquidity"`
	Status        string    `json:"status" db:"status"`
	CurrentView   string    `json:"current_view" db:"current_view"`
	ExpiresAt     time.Time `json:"expires_at" db:"expires_at"`
	LastRefreshAt time.Time `json:"last_refresh_at" db:"last_refresh_at"`
	RefreshCount  int       `json:"refresh_count" db:"refresh_count"`
}
