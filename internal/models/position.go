package models

import "time"

// Position lifecycle states — selects the router.
const (
	LifecyclePreGraduation  = "PRE_GRADUATION"
	LifecyclePostGraduation = "POST_GRADUATION"
	LifecycleClosed         = "CLOSED"
)

// Position statuses.
const (
	PositionActive          = "ACTIVE"
	PositionClosing         = "CLOSING"
	PositionClosingEmergency = "CLOSING_EMERGENCY"
	PositionClosed           = "CLOSED"
)

// Position trigger states — the sole anti-double-exit mechanism.
const (
	TriggerMonitoring = "MONITORING"
	TriggerTriggered  = "TRIGGERED"
	TriggerExecuting  = "EXECUTING"
	TriggerCompleted  = "COMPLETED"
	TriggerFailed     = "FAILED"
)

// Trigger kinds, in strict tie-break precedence order.
const (
	TriggerKindTP        = "TP"
	TriggerKindSL        = "SL"
	TriggerKindTrail     = "TRAIL"
	TriggerKindMaxHold   = "MAXHOLD"
	TriggerKindEmergency = "EMERGENCY"
)

// validTriggerTransitions grounds on the teacher's state_machine.go shape.
// FAILED may reset to MONITORING on retry; this is the only reverse edge
// (spec invariant: no reverse transitions except FAILED -> MONITORING). A
// moon-bag partial exit does not reopen this position's trigger_state — it
// reaches COMPLETED like any other exit, and the remaining exposure is
// carried by a freshly created position row in MONITORING (see DESIGN.md).
var validTriggerTransitions = map[string][]string{
	TriggerMonitoring: {TriggerTriggered},
	TriggerTriggered:  {TriggerExecuting},
	TriggerExecuting:  {TriggerCompleted, TriggerFailed},
	TriggerCompleted:  {},
	TriggerFailed:     {TriggerMonitoring},
}

// CanTransitionTrigger reports whether from -> to is a legal trigger_state change.
func CanTransitionTrigger(from, to string) bool {
	next, ok := validTriggerTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// Position is a held token balance belonging to a user.
type Position struct {
	ID                   int64      `json:"id" db:"id"`
	UUID                 string     `json:"uuid_id" db:"uuid_id"`
	UserID               int64      `json:"user_id" db:"user_id"`
	StrategyID           int64      `json:"strategy_id" db:"strategy_id"`
	OpportunityRef       *int64     `json:"opportunity_ref,omitempty" db:"opportunity_ref"`
	Chain                string     `json:"chain" db:"chain"`
	TokenMint            string     `json:"token_mint" db:"token_mint"`
	TokenSymbol          string     `json:"token_symbol,omitempty" db:"token_symbol"`
	TokenName            string     `json:"token_name,omitempty" db:"token_name"`
	EntryExecutionRef    int64      `json:"entry_execution_ref" db:"entry_execution_ref"`
	EntryTxSig           string     `json:"entry_tx_sig" db:"entry_tx_sig"`
	EntryCostSOL         float64    `json:"entry_cost_sol" db:"entry_cost_sol"`
	EntryPrice           float64    `json:"entry_price" db:"entry_price"`
	SizeTokens           string     `json:"size_tokens" db:"size_tokens"` // raw base units
	CurrentPrice         float64    `json:"current_price" db:"current_price"`
	PeakPrice            float64    `json:"peak_price" db:"peak_price"`
	TrailingStopPrice    *float64   `json:"trailing_stop_price,omitempty" db:"trailing_stop_price"`
	TPPrice              float64    `json:"tp_price" db:"tp_price"`
	SLPrice              float64    `json:"sl_price" db:"sl_price"`
	TrailActivationPrice *float64   `json:"trail_activation_price,omitempty" db:"trail_activation_price"`
	BondingCurve         string     `json:"bonding_curve,omitempty" db:"bonding_curve"`
	EntryMarketCapSOL    *float64   `json:"entry_mc_sol,omitempty" db:"entry_mc_sol"`
	LifecycleState       string     `json:"lifecycle_state" db:"lifecycle_state"`
	Status               string     `json:"status" db:"status"`
	TriggerState          string     `json:"trigger_state" db:"trigger_state"`
	PendingTrigger        string     `json:"pending_trigger,omitempty" db:"pending_trigger"`
	PendingTriggerPrice   *float64   `json:"pending_trigger_price,omitempty" db:"pending_trigger_price"`
	OpenedAt             time.Time  `json:"opened_at" db:"opened_at"`
	PriceUpdatedAt       time.Time  `json:"price_updated_at" db:"price_updated_at"`
	ExitExecutionRef     *int64     `json:"exit_execution_ref,omitempty" db:"exit_execution_ref"`
	ExitTxSig            *string    `json:"exit_tx_sig,omitempty" db:"exit_tx_sig"`
	ExitPrice            *float64   `json:"exit_price,omitempty" db:"exit_price"`
	ExitTrigger          *string    `json:"exit_trigger,omitempty" db:"exit_trigger"`
	RealizedPnlSOL       *float64   `json:"realized_pnl_sol,omitempty" db:"realized_pnl_sol"`
	RealizedPnlPercent   *float64   `json:"realized_pnl_percent,omitempty" db:"realized_pnl_percent"`
	ClosedAt             *time.Time `json:"closed_at,omitempty" db:"closed_at"`
}

// IsPreGraduation reports whether the position should route through the bonding-curve router.
func (p *Position) IsPreGraduation() bool {
	return p.LifecycleState == LifecyclePreGraduation || p.BondingCurve != ""
}
