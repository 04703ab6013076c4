package router

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"raptor/internal/chain"
	"raptor/internal/models"
)

// dustThresholdPercent is the sell-percent at or above which a sell rounds up
// to selling the full raw balance, avoiding an unsellable dust remainder.
const dustThresholdPercent = 95

// BondingCurveRouter derives program instructions locally against a pump.fun-
// style bonding curve account instead of routing through an aggregator.
type BondingCurveRouter struct {
	chainClient *chain.Client
}

// NewBondingCurveRouter builds a router bound to a chain client.
func NewBondingCurveRouter(c *chain.Client) *BondingCurveRouter {
	return &BondingCurveRouter{chainClient: c}
}

func (r *BondingCurveRouter) Name() string { return "bonding_curve" }

// CanHandle matches spec §4.2's factory rule: pre-graduation lifecycle, or a
// bonding curve pubkey supplied directly on the intent.
func (r *BondingCurveRouter) CanHandle(intent Intent) bool {
	return intent.LifecycleState == models.LifecyclePreGraduation || intent.BondingCurve != ""
}

// Quote builds a bonding-curve quote without reading the curve: the expected
// output is the input amount itself, and the minimum output is that amount
// reduced by the intent's slippage. No curve math or reserve ratio is applied.
func (r *BondingCurveRouter) Quote(ctx context.Context, intent Intent) (*SwapQuote, error) {
	amount, ok := new(big.Int).SetString(intent.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("router: invalid amount %q", intent.Amount)
	}

	sellAmount := amount
	if intent.Side == SideSell {
		sellAmount = applyDustRule(amount, intent.Amount)
	}

	expected := new(big.Int).Set(sellAmount)
	slippageFactor := big.NewInt(int64(10_000 - intent.SlippageBps))
	minOutput := new(big.Int).Mul(expected, slippageFactor)
	minOutput.Div(minOutput, big.NewInt(10_000))

	now := time.Now()
	return &SwapQuote{
		ExpectedOutput:       expected.String(),
		MinOutput:            minOutput.String(),
		PriceImpactBps:       0,
		RoutePlan:            "bonding_curve direct",
		QuotedAt:             now,
		ExpiresAt:            now.Add(DefaultConfirmTimeout),
		LastValidBlockHeight: 0,
		Router:               r.Name(),
	}, nil
}

// ApplyDustRule is the exported entry point the execution worker uses to
// round a sell amount up to the wallet's full on-chain balance once it
// crosses the dust threshold, before the amount is ever placed on an Intent.
func ApplyDustRule(requestedRaw, balanceRaw string) (string, error) {
	requested, ok := new(big.Int).SetString(requestedRaw, 10)
	if !ok {
		return "", fmt.Errorf("router: invalid requested amount %q", requestedRaw)
	}
	return applyDustRule(requested, balanceRaw).String(), nil
}

// applyDustRule rounds a sell up to the full balance once it crosses the dust
// threshold, since the curve program cannot leave an unsellable remainder.
func applyDustRule(requested *big.Int, rawBalance string) *big.Int {
	balance, ok := new(big.Int).SetString(rawBalance, 10)
	if !ok || balance.Sign() == 0 {
		return requested
	}

	thresholdNumerator := new(big.Int).Mul(balance, big.NewInt(dustThresholdPercent))
	threshold := thresholdNumerator.Div(thresholdNumerator, big.NewInt(100))
	if requested.Cmp(threshold) >= 0 {
		return balance
	}
	return requested
}

func (r *BondingCurveRouter) BuildTx(ctx context.Context, quote *SwapQuote, intent Intent) (*UnsignedTx, error) {
	return &UnsignedTx{
		Router:  r.Name(),
		Message: []byte(fmt.Sprintf("bonding_curve:%s:%s:%s", intent.Mint, intent.Side, intent.Amount)),
	}, nil
}

func (r *BondingCurveRouter) Execute(ctx context.Context, tx *UnsignedTx, intent Intent, signer Signer, opts ExecuteOptions) (*SwapResult, error) {
	timeout := opts.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	signed, err := signer.SignMessage(tx.Message)
	if err != nil {
		return &SwapResult{Success: false, Error: err.Error(), ErrorCode: "SIMULATION_FAILED", Router: r.Name()}, nil
	}

	result := r.chainClient.SubmitAndConfirm(ctx, signed, opts.LastValidBlockHeight, timeout)
	if result.Err != nil {
		return &SwapResult{Success: false, Signature: result.Signature, Error: result.Err.Error(), Router: r.Name()}, nil
	}
	return &SwapResult{Success: true, Signature: result.Signature, Router: r.Name()}, nil
}
