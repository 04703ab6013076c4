package models

import "time"

// Trade job actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Trade job statuses.
const (
	JobPending  = "PENDING"
	JobRunning  = "RUNNING"
	JobDone     = "DONE"
	JobFailed   = "FAILED"
	JobCanceled = "CANCELED"
)

// TradeJob is a unit of work claimed by an Execution Worker. UNIQUE(idempotency_key).
type TradeJob struct {
	ID              int64      `json:"id" db:"id"`
	StrategyID      int64      `json:"strategy_id" db:"strategy_id"`
	UserID          int64      `json:"user_id" db:"user_id"`
	Chain           string     `json:"chain" db:"chain"`
	Action          string     `json:"action" db:"action"`
	OpportunityRef  *int64     `json:"opportunity_ref,omitempty" db:"opportunity_ref"`
	Priority        int        `json:"priority" db:"priority"` // lower = higher priority
	Payload         JSONMap    `json:"payload" db:"payload"`
	IdempotencyKey  string     `json:"idempotency_key" db:"idempotency_key"`
	Status          string     `json:"status" db:"status"`
	Attempts        int        `json:"attempts" db:"attempts"`
	MaxAttempts     int        `json:"max_attempts" db:"max_attempts"`
	WorkerID        string     `json:"worker_id,omitempty" db:"worker_id"`
	LeaseExpiresAt  *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	LastError       string     `json:"last_error,omitempty" db:"last_error"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Claimable reports whether the job's lease is absent or has expired as of now.
func (j *TradeJob) Claimable(now time.Time) bool {
	if j.Status != JobPending {
		return false
	}
	return j.LeaseExpiresAt == nil || !j.LeaseExpiresAt.After(now)
}
