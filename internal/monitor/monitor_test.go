package monitor

import (
	"testing"

	"go.uber.org/zap"

	"raptor/internal/chain"
	"raptor/internal/models"
)

// fakeSubscriber records every Subscribe/Unsubscribe call so tests can assert
// the monitor always tears down with the same mint key it subscribed with.
type fakeSubscriber struct {
	subscribed   []string // mint
	subAccounts  []string // account passed alongside each mint
	unsubscribed []string // mint
	hints        chan chain.ActivityHint
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{hints: make(chan chain.ActivityHint, 1)}
}

func (f *fakeSubscriber) Subscribe(mint, account string) error {
	f.subscribed = append(f.subscribed, mint)
	f.subAccounts = append(f.subAccounts, account)
	return nil
}

func (f *fakeSubscriber) Unsubscribe(mint string) error {
	f.unsubscribed = append(f.unsubscribed, mint)
	return nil
}

func (f *fakeSubscriber) Hints() <-chan chain.ActivityHint { return f.hints }

func newTestMonitor(subs subscriber) *Monitor {
	return &Monitor{
		subs:     subs,
		cfg:      Config{Chain: "solana"},
		logger:   zap.NewNop(),
		watchSet: make(map[int64]*watched),
		mintRefs: make(map[string]int),
	}
}

// TestAddRemoveWatchSetSubscribesAndUnsubscribesSameMintKey is the regression
// case for the bonding-curve/mint key mismatch: a pre-graduation position
// subscribes on its bonding-curve account, but the monitor must always
// unsubscribe (and later match activity hints) by token mint, not whatever
// account the subscription itself used.
func TestAddRemoveWatchSetSubscribesAndUnsubscribesSameMintKey(t *testing.T) {
	subs := newFakeSubscriber()
	m := newTestMonitor(subs)

	pos := &models.Position{ID: 1, TokenMint: "MintAAAA", BondingCurve: "CurveBBBB"}
	strat := &models.Strategy{ID: 1}

	m.addToWatchSet(pos, strat)

	if len(subs.subscribed) != 1 || subs.subscribed[0] != pos.TokenMint {
		t.Fatalf("subscribed mints = %v, want [%s]", subs.subscribed, pos.TokenMint)
	}
	if subs.subAccounts[0] != pos.BondingCurve {
		t.Fatalf("subscribed account = %q, want bonding curve %q", subs.subAccounts[0], pos.BondingCurve)
	}

	m.removeFromWatchSet(pos.ID, pos.TokenMint)

	if len(subs.unsubscribed) != 1 || subs.unsubscribed[0] != pos.TokenMint {
		t.Fatalf("unsubscribed mints = %v, want [%s]", subs.unsubscribed, pos.TokenMint)
	}
}

// TestAddWatchSetFallsBackToMintWhenNoBondingCurve covers the post-graduation
// case, where there is no bonding curve and the subscription account is the
// mint itself.
func TestAddWatchSetFallsBackToMintWhenNoBondingCurve(t *testing.T) {
	subs := newFakeSubscriber()
	m := newTestMonitor(subs)

	pos := &models.Position{ID: 2, TokenMint: "MintCCCC"}
	m.addToWatchSet(pos, &models.Strategy{ID: 1})

	if subs.subAccounts[0] != pos.TokenMint {
		t.Fatalf("subscribed account = %q, want mint %q", subs.subAccounts[0], pos.TokenMint)
	}
}

// TestPositionsForMintMatchesHintKeyedByMint confirms positionsForMint
// indexes on token mint, the same key dispatch now emits in ActivityHint —
// so a hint for a pre-graduation token (subscribed via its bonding curve)
// still resolves back to the watching position.
func TestPositionsForMintMatchesHintKeyedByMint(t *testing.T) {
	subs := newFakeSubscriber()
	m := newTestMonitor(subs)

	pos := &models.Position{ID: 3, TokenMint: "MintDDDD", BondingCurve: "CurveEEEE"}
	m.addToWatchSet(pos, &models.Strategy{ID: 1})

	matches := m.positionsForMint("MintDDDD")
	if len(matches) != 1 || matches[0].position.ID != pos.ID {
		t.Fatalf("positionsForMint(mint) = %v, want position %d", matches, pos.ID)
	}

	if matches := m.positionsForMint(pos.BondingCurve); len(matches) != 0 {
		t.Fatalf("positionsForMint(bondingCurve) should not match; got %v", matches)
	}
}
