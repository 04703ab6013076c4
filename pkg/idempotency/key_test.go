package idempotency

import "testing"

func TestBuyKeyDeterministic(t *testing.T) {
	k1 := BuyKey(1, 2, "MINTabc")
	k2 := BuyKey(1, 2, "MINTabc")
	if k1 != k2 {
		t.Fatalf("BuyKey not deterministic: %s != %s", k1, k2)
	}

	k3 := BuyKey(1, 2, "MINTxyz")
	if k1 == k3 {
		t.Fatalf("BuyKey collided across different mints")
	}
}

func TestExitKeyDistinguishesTriggerAndPercent(t *testing.T) {
	base := ExitKey("solana", "MINT", 42, "TP", 100)
	other := ExitKey("solana", "MINT", 42, "SL", 100)
	if base == other {
		t.Fatalf("ExitKey collided across trigger kinds")
	}

	partial := ExitKey("solana", "MINT", 42, "TP", 50)
	if base == partial {
		t.Fatalf("ExitKey collided across sell percents")
	}
}
