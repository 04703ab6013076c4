// Package chain wraps the Solana RPC/WS dependency surface: balance reads,
// transaction submission/confirmation, and token-scoped activity subscriptions.
// Every other package reaches the chain only through this one.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"

	"raptor/pkg/raptorerr"
	"raptor/pkg/retry"
)

// retryableRPC classifies an RPC error to decide whether retry.Do should
// attempt it again; non-retryable codes (bad account, program error, ...)
// fail fast instead of burning the retry budget.
func retryableRPC(err error) bool {
	return raptorerr.Classify(err.Error()).Retryable()
}

// Client wraps the solana-go RPC client with the narrow set of calls the
// router and monitor packages need.
type Client struct {
	rpc *rpc.Client
}

// New dials a Solana RPC endpoint. No network round trip happens here;
// rpc.New only builds the HTTP client.
func New(rpcURL string) *Client {
	return &Client{rpc: rpc.New(rpcURL)}
}

// TokenBalance is the raw base-unit balance of an SPL token account.
type TokenBalance struct {
	Amount   string
	Decimals uint8
}

// GetTokenBalance reads the current raw token balance of an associated token account.
func (c *Client) GetTokenBalance(ctx context.Context, tokenAccount string) (TokenBalance, error) {
	pk, err := solana.PublicKeyFromBase58(tokenAccount)
	if err != nil {
		return TokenBalance{}, fmt.Errorf("chain: invalid token account %q: %w", tokenAccount, err)
	}

	out, err := retry.DoWithResult(ctx, func() (*rpc.GetTokenAccountBalanceResult, error) {
		return c.rpc.GetTokenAccountBalance(ctx, pk, rpc.CommitmentConfirmed)
	}, retry.Config{MaxRetries: 4, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2.0, JitterFactor: 0.2, RetryIf: retryableRPC})
	if err != nil {
		return TokenBalance{}, fmt.Errorf("chain: get token balance: %w", err)
	}
	if out == nil || out.Value == nil {
		return TokenBalance{}, fmt.Errorf("chain: empty token balance response")
	}

	return TokenBalance{Amount: out.Value.Amount, Decimals: out.Value.Decimals}, nil
}

// GetTokenBalanceForOwner reads the raw token balance a wallet holds of mint,
// without the caller needing to derive the associated token account address
// itself. Returns a zero balance, not an error, if the account doesn't exist
// yet (a wallet that has never held the mint).
func (c *Client) GetTokenBalanceForOwner(ctx context.Context, owner, mint string) (TokenBalance, error) {
	ownerPk, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return TokenBalance{}, fmt.Errorf("chain: invalid owner %q: %w", owner, err)
	}
	mintPk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return TokenBalance{}, fmt.Errorf("chain: invalid mint %q: %w", mint, err)
	}

	out, err := c.rpc.GetTokenAccountsByOwner(ctx, ownerPk,
		&rpc.GetTokenAccountsConfig{Mint: &mintPk},
		&rpc.GetTokenAccountsOpts{Commitment: rpc.CommitmentConfirmed, Encoding: solana.EncodingJSONParsed},
	)
	if err != nil {
		return TokenBalance{}, fmt.Errorf("chain: get token accounts by owner: %w", err)
	}
	if out == nil || len(out.Value) == 0 {
		return TokenBalance{Amount: "0"}, nil
	}

	return c.GetTokenBalance(ctx, out.Value[0].Pubkey.String())
}

// GetSOLBalance reads a wallet's lamport balance.
func (c *Client) GetSOLBalance(ctx context.Context, pubkey string) (uint64, error) {
	pk, err := solana.PublicKeyFromBase58(pubkey)
	if err != nil {
		return 0, fmt.Errorf("chain: invalid pubkey %q: %w", pubkey, err)
	}

	out, err := retry.DoWithResult(ctx, func() (*rpc.GetBalanceResult, error) {
		return c.rpc.GetBalance(ctx, pk, rpc.CommitmentConfirmed)
	}, retry.Config{MaxRetries: 4, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2.0, JitterFactor: 0.2, RetryIf: retryableRPC})
	if err != nil {
		return 0, fmt.Errorf("chain: get balance: %w", err)
	}
	return out.Value, nil
}

// LatestBlockhash is the staleness anchor every built transaction is signed
// against; last_valid_block_height lets the caller give up deterministically
// instead of polling confirmation forever.
type LatestBlockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

func (c *Client) GetLatestBlockhash(ctx context.Context) (LatestBlockhash, error) {
	cfg := retry.NetworkConfig()
	cfg.RetryIf = retryableRPC
	out, err := retry.DoWithResult(ctx, func() (*rpc.GetLatestBlockhashResult, error) {
		return c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	}, cfg)
	if err != nil {
		return LatestBlockhash{}, fmt.Errorf("chain: get latest blockhash: %w", err)
	}
	return LatestBlockhash{
		Blockhash:            out.Value.Blockhash.String(),
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// SubmitResult is what the caller needs to decide retry vs. give-up.
type SubmitResult struct {
	Signature string
	Err       error
}

// SubmitAndConfirm sends a fully signed, base64-encoded transaction and polls
// for confirmation up to confirmTimeout, returning deterministically either
// way. lastValidBlockHeight short-circuits the poll once the blockhash used
// to build the transaction can no longer land.
func (c *Client) SubmitAndConfirm(ctx context.Context, rawTx []byte, lastValidBlockHeight uint64, confirmTimeout time.Duration) SubmitResult {
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	sig, err := c.rpc.SendEncodedTransactionWithOpts(ctx, base58.Encode(rawTx), rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return SubmitResult{Err: fmt.Errorf("chain: send transaction: %w", err)}
	}

	pollInterval := 500 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return SubmitResult{Signature: sig.String(), Err: fmt.Errorf("chain: confirmation timeout after %s", confirmTimeout)}
		case <-ticker.C:
			statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			st := statuses.Value[0]
			if st.Err != nil {
				return SubmitResult{Signature: sig.String(), Err: fmt.Errorf("chain: transaction failed on-chain: %v", st.Err)}
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return SubmitResult{Signature: sig.String()}
			}
			if lastValidBlockHeight > 0 {
				height, err := c.rpc.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
				if err == nil && height > lastValidBlockHeight {
					return SubmitResult{Signature: sig.String(), Err: fmt.Errorf("chain: blockhash expired before confirmation")}
				}
			}
		}
	}
}
