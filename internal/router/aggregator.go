package router

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"raptor/internal/chain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AggregatorRouter routes through a Jupiter-style swap aggregator: quote via
// HTTP, receive an unsigned transaction from the aggregator, sign, submit.
type AggregatorRouter struct {
	chainClient *chain.Client
	httpClient  *http.Client
	baseURL     string
}

// NewAggregatorRouter builds a router bound to an aggregator HTTP endpoint
// and the chain client used for submission and output verification.
func NewAggregatorRouter(c *chain.Client, baseURL string) *AggregatorRouter {
	return &AggregatorRouter{
		chainClient: c,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseURL:     baseURL,
	}
}

func (r *AggregatorRouter) Name() string { return "aggregator" }

// CanHandle is the aggregator's fallback role: anything the bonding-curve
// router doesn't claim (post-graduation, or no bonding curve hint at all).
func (r *AggregatorRouter) CanHandle(intent Intent) bool {
	return true
}

type aggregatorQuoteResponse struct {
	OutAmount            string              `json:"outAmount"`
	OtherAmountThreshold string              `json:"otherAmountThreshold"`
	PriceImpactPct       string              `json:"priceImpactPct"`
	RoutePlan            []jsoniter.RawMessage `json:"routePlan"`
}

func (r *AggregatorRouter) Quote(ctx context.Context, intent Intent) (*SwapQuote, error) {
	url := fmt.Sprintf("%s/quote?inputMint=%s&amount=%s&slippageBps=%d&side=%s",
		r.baseURL, intent.Mint, intent.Amount, intent.SlippageBps, intent.Side)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("router: build quote request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("router: quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("router: read quote response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("router: aggregator quote failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed aggregatorQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("router: parse quote response: %w", err)
	}

	latest, err := r.chainClient.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("router: fetch blockhash for quote expiry: %w", err)
	}

	now := time.Now()
	return &SwapQuote{
		ExpectedOutput:       parsed.OutAmount,
		MinOutput:            parsed.OtherAmountThreshold,
		RoutePlan:            r.Name(),
		QuotedAt:             now,
		ExpiresAt:            now.Add(DefaultConfirmTimeout),
		LastValidBlockHeight: latest.LastValidBlockHeight,
		Router:               r.Name(),
	}, nil
}

type aggregatorSwapRequest struct {
	UserPublicKey string `json:"userPublicKey"`
	QuoteResponse string `json:"quoteResponse"`
	PriorityFee   int64  `json:"prioritizationFeeLamports,omitempty"`
}

type aggregatorSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

func (r *AggregatorRouter) BuildTx(ctx context.Context, quote *SwapQuote, intent Intent) (*UnsignedTx, error) {
	payload, err := json.Marshal(aggregatorSwapRequest{
		UserPublicKey: intent.UserPubkey,
		QuoteResponse: quote.ExpectedOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("router: encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("router: build swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("router: swap request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("router: read swap response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("router: aggregator swap build failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed aggregatorSwapResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("router: parse swap response: %w", err)
	}

	return &UnsignedTx{Router: r.Name(), Base64: parsed.SwapTransaction}, nil
}

// Execute signs the aggregator-built transaction, submits it, and on a buy's
// confirmation re-reads the on-chain token balance before and after to report
// actual tokens received rather than trusting the quoted amount — the
// aggregator's RoutePlan can legitimately land a different amount than it
// quoted, and nothing downstream should size a position off an unverified
// number.
func (r *AggregatorRouter) Execute(ctx context.Context, tx *UnsignedTx, intent Intent, signer Signer, opts ExecuteOptions) (*SwapResult, error) {
	timeout := opts.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	var preBalance chain.TokenBalance
	if intent.Side == SideBuy {
		var err error
		preBalance, err = r.chainClient.GetTokenBalanceForOwner(ctx, intent.UserPubkey, intent.Mint)
		if err != nil {
			return &SwapResult{Success: false, Error: fmt.Errorf("router: read pre-swap balance: %w", err).Error(), ErrorCode: "VERIFICATION_FAILED", Router: r.Name()}, nil
		}
	}

	signed, err := signer.SignMessage([]byte(tx.Base64))
	if err != nil {
		return &SwapResult{Success: false, Error: err.Error(), ErrorCode: "SIMULATION_FAILED", Router: r.Name()}, nil
	}

	result := r.chainClient.SubmitAndConfirm(ctx, signed, opts.LastValidBlockHeight, timeout)
	if result.Err != nil {
		return &SwapResult{Success: false, Signature: result.Signature, Error: result.Err.Error(), Router: r.Name()}, nil
	}

	swapResult := &SwapResult{Success: true, Signature: result.Signature, Router: r.Name()}

	if intent.Side == SideBuy {
		postBalance, err := r.chainClient.GetTokenBalanceForOwner(ctx, intent.UserPubkey, intent.Mint)
		if err != nil {
			// the swap landed on-chain; a failed re-read doesn't reverse that,
			// it only means the caller must fall back to the quoted amount
			swapResult.ActualOutput = ""
			return swapResult, nil
		}
		swapResult.ActualOutput = tokenDelta(preBalance.Amount, postBalance.Amount)
	}

	return swapResult, nil
}

// tokenDelta returns post-pre as a decimal string, or "" if either side
// doesn't parse (never expected, but Execute must not panic on it).
func tokenDelta(pre, post string) string {
	preAmt, ok1 := new(big.Int).SetString(pre, 10)
	postAmt, ok2 := new(big.Int).SetString(post, 10)
	if !ok1 || !ok2 {
		return ""
	}
	return new(big.Int).Sub(postAmt, preAmt).String()
}
