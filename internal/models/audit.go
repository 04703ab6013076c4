package models

import "time"

// Audit event kinds (spec §7: "key export, withdrawal initiation, honeypot
// detected, circuit open").
const (
	AuditKeyExport         = "KEY_EXPORT"
	AuditWithdrawalStarted = "WITHDRAWAL_INITIATED"
	AuditHoneypotDetected  = "HONEYPOT_DETECTED"
	AuditCircuitOpen       = "CIRCUIT_OPEN"
	AuditTradingPaused     = "TRADING_PAUSED"
	AuditBlacklistAdded    = "BLACKLIST_ADDED"
)

// AuditEvent is one append-only row in the security audit log.
type AuditEvent struct {
	ID        int64     `db:"id"`
	Kind      string    `db:"kind"`
	UserID    *int64    `db:"user_id"`
	Chain     string    `db:"chain"`
	Details   JSONMap   `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}
