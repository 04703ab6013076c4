package models

import "time"

// Execution modes.
const (
	ModeAuto   = "AUTO"
	ModeManual = "MANUAL"
)

// Execution statuses. Strict state machine RESERVED -> SUBMITTED -> {CONFIRMED|FAILED}.
const (
	ExecutionReserved  = "RESERVED"
	ExecutionSubmitted = "SUBMITTED"
	ExecutionConfirmed = "CONFIRMED"
	ExecutionFailed    = "FAILED"
)

// Execution is an immutable record of a single trade attempt anchored to an
// idempotency key. UNIQUE(idempotency_key), UNIQUE(tx_sig) WHERE tx_sig IS NOT NULL.
type Execution struct {
	ID             int64     `json:"id" db:"id"`
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
	UserID         int64     `json:"user_id" db:"user_id"`
	Mint           string    `json:"mint" db:"mint"`
	Action         string    `json:"action" db:"action"`
	Mode           string    `json:"mode" db:"mode"`
	Status         string    `json:"status" db:"status"`
	TxSig          *string   `json:"tx_sig,omitempty" db:"tx_sig"`
	AmountSOL      float64   `json:"amount_sol" db:"amount_sol"`
	TokensOut      *string   `json:"tokens_out,omitempty" db:"tokens_out"` // raw base units, arbitrary precision
	PricePerToken  *float64  `json:"price_per_token,omitempty" db:"price_per_token"`
	Error          string    `json:"error,omitempty" db:"error"`
	ErrorCode      string    `json:"error_code,omitempty" db:"error_code"`
	Result         JSONMap   `json:"result,omitempty" db:"result"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// validExecutionTransitions mirrors the teacher's bot state machine shape,
// applied to the execution lifecycle instead of the pair lifecycle.
var validExecutionTransitions = map[string][]string{
	ExecutionReserved:  {ExecutionSubmitted, ExecutionFailed},
	ExecutionSubmitted: {ExecutionConfirmed, ExecutionFailed},
	ExecutionConfirmed: {},
	ExecutionFailed:    {},
}

// CanTransitionExecution reports whether from -> to is a legal execution state change.
func CanTransitionExecution(from, to string) bool {
	next, ok := validExecutionTransitions[from]
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
