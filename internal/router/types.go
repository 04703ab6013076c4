// Package router implements the venue-agnostic swap contract (quote / build /
// execute) behind a single SwapRouter interface, with a factory that selects
// between a bonding-curve and an aggregator implementation by lifecycle_state.
package router

import (
	"context"
	"time"
)

// Side is the direction of a swap.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Intent describes the swap a caller wants quoted/built/executed.
type Intent struct {
	Mint           string
	Amount         string // raw base units for sells, lamports for buys
	Side           Side
	SlippageBps    int
	UserPubkey     string
	BondingCurve   string // non-empty when known pre-graduation
	LifecycleState string
	PositionID     int64
}

// SwapQuote is the router's priced view of an Intent.
type SwapQuote struct {
	ExpectedOutput       string
	MinOutput            string
	PriceImpactBps       int
	RoutePlan            string
	QuotedAt             time.Time
	ExpiresAt            time.Time
	LastValidBlockHeight uint64
	Router               string
}

// UnsignedTx is an opaque, router-specific unsigned transaction blob ready for signing.
type UnsignedTx struct {
	Router  string
	Base64  string
	Message []byte
}

// ExecuteOptions configures submission and confirmation of a built transaction.
type ExecuteOptions struct {
	UseAntiMEV           bool
	PriorityFeeLamports  int64
	ConfirmTimeout       time.Duration
	LastValidBlockHeight uint64
}

// DefaultConfirmTimeout matches the spec's default confirmation window; a
// router must return deterministically once it elapses, never hang.
const DefaultConfirmTimeout = 30 * time.Second

// SwapResult is the outcome of executing a built transaction.
type SwapResult struct {
	Success       bool
	Signature     string
	ActualInput   string
	ActualOutput  string
	Error         string
	ErrorCode     string
	Router        string
}

// SwapRouter is the uniform capability every venue implementation provides.
type SwapRouter interface {
	// CanHandle is a fast predicate on (lifecycle_state, chain, venue hints).
	CanHandle(intent Intent) bool
	Quote(ctx context.Context, intent Intent) (*SwapQuote, error)
	BuildTx(ctx context.Context, quote *SwapQuote, intent Intent) (*UnsignedTx, error)
	Execute(ctx context.Context, tx *UnsignedTx, intent Intent, signer Signer, opts ExecuteOptions) (*SwapResult, error)
	Name() string
}

// Signer abstracts over a decrypted wallet keypair without router code ever
// holding raw key bytes longer than a single signing call.
type Signer interface {
	PublicKey() string
	SignMessage(message []byte) ([]byte, error)
}
