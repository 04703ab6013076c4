// Package idempotency derives deterministic idempotency keys from a trade's
// identifying inputs. Uniqueness of the derived string in the store guarantees
// at-most-once effect (spec GLOSSARY).
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// BuyKey derives the idempotency key for an auto-buy trade job (spec §4.5 step 3).
func BuyKey(userID, strategyID int64, mint string) string {
	return hash("buy", fmt.Sprint(userID), fmt.Sprint(strategyID), mint)
}

// ExitKey derives the idempotency key for an exit job enqueued from a trigger
// claim (spec §4.7 step 3): deterministic from (chain, mint, position_id,
// trigger, sell_percent).
func ExitKey(chain, mint string, positionID int64, trigger string, sellPercent int) string {
	return hash("exit", chain, mint, fmt.Sprint(positionID), trigger, fmt.Sprint(sellPercent))
}

// ManualKey derives the idempotency key for a user-initiated manual trade,
// keyed so a retried command does not double-execute within the same second.
func ManualKey(userID int64, mint, side string, nonce string) string {
	return hash("manual", fmt.Sprint(userID), mint, side, nonce)
}

func hash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
