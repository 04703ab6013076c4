package models

import "time"

// Strategy kinds.
const (
	StrategyManual = "MANUAL"
	StrategyAuto   = "AUTO"
)

// Strategy belongs to a user and a chain; exactly one row per (user, kind, chain) — upsert on conflict.
type Strategy struct {
	ID                 int64     `json:"id" db:"id"`
	UserID              int64     `json:"user_id" db:"user_id"`
	Chain               string    `json:"chain" db:"chain"`
	Kind                string    `json:"kind" db:"kind"` // MANUAL | AUTO
	Enabled             bool      `json:"enabled" db:"enabled"`
	AutoExecute         bool      `json:"auto_execute" db:"auto_execute"`
	RiskProfile         string    `json:"risk_profile" db:"risk_profile"`
	MaxPositions        int       `json:"max_positions" db:"max_positions"`
	MaxPerTradeSOL      float64   `json:"max_per_trade_sol" db:"max_per_trade_sol"`
	MaxDailySOL         float64   `json:"max_daily_sol" db:"max_daily_sol"`
	MaxOpenExposureSOL  float64   `json:"max_open_exposure_sol" db:"max_open_exposure_sol"`
	SlippageBps         int       `json:"slippage_bps" db:"slippage_bps"`
	PriorityFeeLamports int64     `json:"priority_fee_lamports" db:"priority_fee_lamports"`
	TakeProfitPercent   float64   `json:"take_profit_percent" db:"take_profit_percent"`
	StopLossPercent     float64   `json:"stop_loss_percent" db:"stop_loss_percent"`
	MaxHoldMinutes      int       `json:"max_hold_minutes" db:"max_hold_minutes"`
	TrailingEnabled     bool      `json:"trailing_enabled" db:"trailing_enabled"`
	TrailActivationPct  float64   `json:"trail_activation_percent" db:"trail_activation_percent"`
	TrailDistancePct    float64   `json:"trail_distance_percent" db:"trail_distance_percent"`
	MoonBagPercent      float64   `json:"moon_bag_percent" db:"moon_bag_percent"`
	MinScore            float64   `json:"min_score" db:"min_score"`
	LaunchpadAllowlist  []string  `json:"launchpad_allowlist,omitempty" db:"launchpad_allowlist"`
	CooldownSeconds     int       `json:"cooldown_seconds" db:"cooldown_seconds"`
	AllowList           []string  `json:"allow_list,omitempty" db:"allow_list"`
	DenyList            []string  `json:"deny_list,omitempty" db:"deny_list"`
	SnipeMode           string    `json:"snipe_mode" db:"snipe_mode"`
	FilterMode          string    `json:"filter_mode" db:"filter_mode"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// IsActivated is the AUTO activation pattern: enabled AND auto_execute under kind AUTO.
func (s *Strategy) IsActivated() bool {
	return s.Kind == StrategyAuto && s.Enabled && s.AutoExecute
}
