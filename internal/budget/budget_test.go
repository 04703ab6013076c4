package budget

import (
	"context"
	"errors"
	"testing"

	"raptor/internal/models"
	"raptor/internal/store"
	"raptor/pkg/raptorerr"
)

type fakeReservoir struct {
	reserveErr     error
	reserveExec    *models.Execution
	blacklisted    map[string]bool
	blacklistErr   error
}

func (f *fakeReservoir) ReserveTradeBudget(ctx context.Context, st *models.Strategy, idempotencyKey, mint, deployer, action, mode string, amountSOL float64, allowRetry bool) (*models.Execution, error) {
	return f.reserveExec, f.reserveErr
}

func (f *fakeReservoir) IsBlacklisted(ctx context.Context, chain, typ, target string) (bool, error) {
	if f.blacklistErr != nil {
		return false, f.blacklistErr
	}
	return f.blacklisted[typ+":"+target], nil
}

func TestReserveTranslatesStoreErrors(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		wantCode raptorerr.Code
	}{
		{"trading paused", store.ErrTradingPaused, raptorerr.TradingPaused},
		{"circuit open", store.ErrCircuitOpen, raptorerr.CircuitOpen},
		{"cooldown active", store.ErrCooldownActive, raptorerr.CooldownActive},
		{"budget exceeded", store.ErrBudgetExceeded, raptorerr.BudgetExceeded},
		{"already executed", store.ErrAlreadyExecuted, raptorerr.BudgetExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Gate{store: &fakeReservoir{reserveErr: tt.storeErr}}
			_, err := g.Reserve(context.Background(), &models.Strategy{}, "key", "mint", "", models.ActionBuy, models.ModeAuto, 1.0, false)

			var classified *raptorerr.Error
			if !errors.As(err, &classified) {
				t.Fatalf("expected a *raptorerr.Error, got %v (%T)", err, err)
			}
			if classified.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, classified.Code)
			}
		})
	}
}

func TestReserveSucceedsPassesThroughExecution(t *testing.T) {
	want := &models.Execution{ID: 42, Status: models.ExecutionReserved}
	g := &Gate{store: &fakeReservoir{reserveExec: want}}

	exec, err := g.Reserve(context.Background(), &models.Strategy{}, "key", "mint", "", models.ActionBuy, models.ModeAuto, 1.0, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec != want {
		t.Errorf("expected the execution passed through unchanged")
	}
}

func TestCheckBlacklistRejectsBlacklistedMint(t *testing.T) {
	g := &Gate{store: &fakeReservoir{blacklisted: map[string]bool{
		models.BlacklistTokenMint + ":MINT1": true,
	}}}

	err := g.CheckBlacklist(context.Background(), "solana", "MINT1", "")
	var classified *raptorerr.Error
	if !errors.As(err, &classified) || classified.Code != raptorerr.TokenBlacklisted {
		t.Fatalf("expected TOKEN_BLACKLISTED, got %v", err)
	}
}

func TestCheckBlacklistRejectsBlacklistedDeployer(t *testing.T) {
	g := &Gate{store: &fakeReservoir{blacklisted: map[string]bool{
		models.BlacklistDeployer + ":DEPLOYER1": true,
	}}}

	err := g.CheckBlacklist(context.Background(), "solana", "MINT1", "DEPLOYER1")
	var classified *raptorerr.Error
	if !errors.As(err, &classified) || classified.Code != raptorerr.DeployerBlacklisted {
		t.Fatalf("expected DEPLOYER_BLACKLISTED, got %v", err)
	}
}

func TestCheckBlacklistAllowsCleanMint(t *testing.T) {
	g := &Gate{store: &fakeReservoir{blacklisted: map[string]bool{}}}

	if err := g.CheckBlacklist(context.Background(), "solana", "MINT1", "DEPLOYER1"); err != nil {
		t.Fatalf("unexpected error for clean mint: %v", err)
	}
}
