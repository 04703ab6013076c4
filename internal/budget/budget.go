// Package budget is the thin caller of the store's reserve_trade_budget RPC
// named in spec §4.2: all cap, cooldown, and safety-control enforcement lives
// in the store transaction, and this package's only job is to call it and
// translate the result into the error taxonomy (spec §7).
package budget

import (
	"context"
	"errors"

	"raptor/internal/audit"
	"raptor/internal/models"
	"raptor/internal/store"
	"raptor/pkg/raptorerr"
)

// reservoir is the slice of *store.Store the gate depends on, narrowed to an
// interface so tests can substitute a fake without a real database.
type reservoir interface {
	ReserveTradeBudget(ctx context.Context, st *models.Strategy, idempotencyKey, mint, deployer, action, mode string, amountSOL float64, allowRetry bool) (*models.Execution, error)
	IsBlacklisted(ctx context.Context, chain, typ, target string) (bool, error)
}

// Gate wraps a Store for trade admission checks.
type Gate struct {
	store reservoir
	audit *audit.Log // optional; nil disables audit recording (e.g. in tests)
}

// New builds a Gate over st. log records circuit-open denials to the
// security audit trail (spec §7); pass nil to skip audit recording.
func New(st *store.Store, log *audit.Log) *Gate {
	return &Gate{store: st, audit: log}
}

// Reserve attempts to admit a trade under strategy st, returning the reserved
// execution on success or a *raptorerr.Error carrying the taxonomy code on
// denial. allowRetry lets a caller that already failed once under this exact
// idempotency key reuse the FAILED row instead of being denied as a dup.
func (g *Gate) Reserve(ctx context.Context, st *models.Strategy, idempotencyKey, mint, deployer, action, mode string, amountSOL float64, allowRetry bool) (*models.Execution, error) {
	exec, err := g.store.ReserveTradeBudget(ctx, st, idempotencyKey, mint, deployer, action, mode, amountSOL, allowRetry)
	if err == nil {
		return exec, nil
	}

	switch {
	case errors.Is(err, store.ErrAlreadyExecuted):
		return exec, raptorerr.New(raptorerr.BudgetExceeded, "already executed")
	case errors.Is(err, store.ErrTradingPaused):
		return nil, raptorerr.New(raptorerr.TradingPaused, "")
	case errors.Is(err, store.ErrCircuitOpen):
		if g.audit != nil {
			g.audit.Record(ctx, models.AuditCircuitOpen, nil, st.Chain, models.JSONMap{
				"strategy_id": st.ID, "mint": mint, "action": action,
			})
		}
		return nil, raptorerr.New(raptorerr.CircuitOpen, "")
	case errors.Is(err, store.ErrCooldownActive):
		return nil, raptorerr.New(raptorerr.CooldownActive, "")
	case errors.Is(err, store.ErrBudgetExceeded):
		return nil, raptorerr.New(raptorerr.BudgetExceeded, "")
	default:
		return nil, err
	}
}

// CheckBlacklist denies the trade if the mint or its deployer is blacklisted.
// Blacklist entries never expire on their own, unlike cooldowns, so this is a
// separate, permanent check ahead of the budget reservation.
func (g *Gate) CheckBlacklist(ctx context.Context, chain, mint, deployer string) error {
	blocked, err := g.store.IsBlacklisted(ctx, chain, models.BlacklistTokenMint, mint)
	if err != nil {
		return err
	}
	if blocked {
		return raptorerr.New(raptorerr.TokenBlacklisted, "")
	}

	if deployer == "" {
		return nil
	}
	blocked, err = g.store.IsBlacklisted(ctx, chain, models.BlacklistDeployer, deployer)
	if err != nil {
		return err
	}
	if blocked {
		return raptorerr.New(raptorerr.DeployerBlacklisted, "")
	}
	return nil
}
