package store

import (
	"errors"
	"strings"
)

// Sentinel errors returned by the typed accessors.
var (
	ErrNotFound        = errors.New("store: record not found")
	ErrAlreadyExecuted = errors.New("store: idempotency key already executed")
	ErrLeaseLost       = errors.New("store: lease no longer held by caller")
	ErrTradingPaused   = errors.New("store: trading is paused")
	ErrCircuitOpen     = errors.New("store: circuit breaker open")
	ErrCooldownActive  = errors.New("store: cooldown active")
)

// isUniqueViolation detects a Postgres UNIQUE constraint violation by string
// matching, the teacher's idiom in blacklist_repository.go
// (isBlacklistUniqueViolation), rather than a typed *pq.Error assertion.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
