package chain

import (
	"encoding/json"
	"testing"
)

// newTestManager builds a manager with no live connection: sendLogsSubscribe
// will fail to write, but ref counting and the account/mint bookkeeping
// happen before that write is attempted, so the maps are still exercised.
func newTestManager() *SubscriptionManager {
	return NewSubscriptionManager("wss://example.invalid", DefaultReconnectConfig())
}

func TestSubscribeUsesBondingCurveAccountButRefCountsByMint(t *testing.T) {
	m := newTestManager()
	const mint = "MintAAAA"
	const bondingCurve = "CurveBBBB"

	_ = m.Subscribe(mint, bondingCurve)
	_ = m.Subscribe(mint, bondingCurve) // second position on the same mint

	if got := m.refCounts[mint]; got != 2 {
		t.Fatalf("refCounts[mint] = %d, want 2", got)
	}
	if got := m.accountOf[mint]; got != bondingCurve {
		t.Fatalf("accountOf[mint] = %q, want %q", got, bondingCurve)
	}
	if got := m.mintOfAccount[bondingCurve]; got != mint {
		t.Fatalf("mintOfAccount[account] = %q, want %q", got, mint)
	}
}

func TestUnsubscribeTearsDownOnLastRefUsingTheSubscribedAccount(t *testing.T) {
	m := newTestManager()
	const mint = "MintAAAA"
	const bondingCurve = "CurveBBBB"

	_ = m.Subscribe(mint, bondingCurve)
	_ = m.Subscribe(mint, bondingCurve)

	if err := m.Unsubscribe(mint); err != nil {
		t.Fatalf("unexpected error on partial unsubscribe: %v", err)
	}
	if _, ok := m.accountOf[mint]; !ok {
		t.Fatal("accountOf entry removed before last reference dropped")
	}

	_ = m.Unsubscribe(mint)

	if _, ok := m.refCounts[mint]; ok {
		t.Fatal("refCounts entry should be gone after last unsubscribe")
	}
	if _, ok := m.accountOf[mint]; ok {
		t.Fatal("accountOf entry should be gone after last unsubscribe")
	}
	if _, ok := m.mintOfAccount[bondingCurve]; ok {
		t.Fatal("mintOfAccount entry should be gone after last unsubscribe")
	}
}

// TestDispatchResolvesMintNotAccount is the regression case for the
// pre-graduation hint bug: a logsSubscribe opened against a bonding-curve
// account must still surface an ActivityHint keyed by the token mint, since
// that's the key positionsForMint (and the monitor's ref counting) use.
func TestDispatchResolvesMintNotAccount(t *testing.T) {
	m := newTestManager()
	const mint = "MintAAAA"
	const bondingCurve = "CurveBBBB"

	_ = m.Subscribe(mint, bondingCurve)
	reqID := m.subIDs[bondingCurve]
	if reqID == 0 {
		t.Fatal("expected sendLogsSubscribe to have recorded a request id")
	}

	raw, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"subscription": reqID,
			"result": map[string]interface{}{
				"value": map[string]interface{}{
					"signature": "sig123",
					"logs":      []string{"Program log: swap"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	m.dispatch(raw)

	select {
	case hint := <-m.hints:
		if hint.Mint != mint {
			t.Fatalf("hint.Mint = %q, want %q (the mint, not the subscribed account %q)", hint.Mint, mint, bondingCurve)
		}
		if hint.Signature != "sig123" {
			t.Fatalf("hint.Signature = %q, want %q", hint.Signature, "sig123")
		}
	default:
		t.Fatal("expected a hint to be emitted")
	}
}
