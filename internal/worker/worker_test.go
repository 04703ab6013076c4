package worker

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"raptor/internal/chain"
	"raptor/internal/models"
	"raptor/internal/priceoracle"
	"raptor/internal/router"
	"raptor/pkg/crypto"
)

type fakeExecutor struct {
	wallet   *models.Wallet
	strategy *models.Strategy
	exec     *models.Execution
	position *models.Position

	createdPosition *models.Position
	updates         []string
	markedExecuting bool
	completedArgs   []interface{}
	failedErr       string
	notifications   []*models.Notification

	executingConflict error
}

func (f *fakeExecutor) GetActiveWallet(ctx context.Context, userID int64, chain string) (*models.Wallet, error) {
	return f.wallet, nil
}
func (f *fakeExecutor) GetStrategy(ctx context.Context, id int64) (*models.Strategy, error) {
	return f.strategy, nil
}
func (f *fakeExecutor) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	return f.exec, nil
}
func (f *fakeExecutor) UpdateExecution(ctx context.Context, id int64, toStatus string, txSig *string, tokensOut *string, pricePerToken *float64, errText, errCode string, result models.JSONMap) error {
	f.updates = append(f.updates, toStatus)
	return nil
}
func (f *fakeExecutor) CreatePosition(ctx context.Context, p *models.Position) (int64, error) {
	f.createdPosition = p
	return 500, nil
}
func (f *fakeExecutor) GetPosition(ctx context.Context, id int64) (*models.Position, error) {
	return f.position, nil
}
func (f *fakeExecutor) MarkPositionExecuting(ctx context.Context, positionID int64) error {
	if f.executingConflict != nil {
		return f.executingConflict
	}
	f.markedExecuting = true
	return nil
}
func (f *fakeExecutor) MarkTriggerCompleted(ctx context.Context, positionID, exitExecutionRef int64, exitTxSig string, exitPrice float64, exitTrigger string, realizedPnlSOL, realizedPnlPercent float64) error {
	f.completedArgs = []interface{}{positionID, exitExecutionRef, exitTxSig, exitPrice, exitTrigger, realizedPnlSOL, realizedPnlPercent}
	return nil
}
func (f *fakeExecutor) MarkTriggerFailed(ctx context.Context, positionID int64, lastError string) error {
	f.failedErr = lastError
	return nil
}
func (f *fakeExecutor) EnqueueNotification(ctx context.Context, n *models.Notification) (int64, error) {
	f.notifications = append(f.notifications, n)
	return 1, nil
}

type fakeQueue struct {
	completed []int64
	failed    []string
}

func (f *fakeQueue) Claim(ctx context.Context, limit int) ([]*models.TradeJob, error) { return nil, nil }
func (f *fakeQueue) Heartbeat(ctx context.Context, jobID int64) error                 { return nil }
func (f *fakeQueue) Complete(ctx context.Context, jobID int64) error {
	f.completed = append(f.completed, jobID)
	return nil
}
func (f *fakeQueue) Fail(ctx context.Context, job *models.TradeJob, errText string, retryable bool) error {
	f.failed = append(f.failed, errText)
	return nil
}

type fakeBalanceReader struct {
	balance chain.TokenBalance
}

func (f *fakeBalanceReader) GetTokenBalanceForOwner(ctx context.Context, owner, mint string) (chain.TokenBalance, error) {
	return f.balance, nil
}

type fakePriceGetter struct {
	price float64
}

func (f *fakePriceGetter) GetPrice(ctx context.Context, mint string) (priceoracle.Price, error) {
	return priceoracle.Price{Mint: mint, USD: f.price}, nil
}

type stubRouter struct {
	name    string
	success bool
	output  string
	errCode string
}

func (r *stubRouter) Name() string                           { return r.name }
func (r *stubRouter) CanHandle(intent router.Intent) bool     { return true }
func (r *stubRouter) Quote(ctx context.Context, intent router.Intent) (*router.SwapQuote, error) {
	return &router.SwapQuote{ExpectedOutput: "1000000", MinOutput: "990000", Router: r.name}, nil
}
func (r *stubRouter) BuildTx(ctx context.Context, quote *router.SwapQuote, intent router.Intent) (*router.UnsignedTx, error) {
	return &router.UnsignedTx{Router: r.name, Message: []byte("msg")}, nil
}
func (r *stubRouter) Execute(ctx context.Context, tx *router.UnsignedTx, intent router.Intent, signer router.Signer, opts router.ExecuteOptions) (*router.SwapResult, error) {
	if !r.success {
		return &router.SwapResult{Success: false, Error: "simulation failed", ErrorCode: r.errCode, Router: r.name}, nil
	}
	return &router.SwapResult{Success: true, Signature: "sig123", ActualOutput: r.output, Router: r.name}, nil
}

func testMasterKey(t *testing.T) []byte {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate master key: %v", err)
	}
	return key
}

// newUnlockableWallet mints a real keypair and encrypts it the same way
// wallet provisioning does, so walletkey.Unlock can round-trip it.
func newUnlockableWallet(t *testing.T, masterKey []byte, userID int64) *models.Wallet {
	t.Helper()
	priv, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	ciphertext, err := crypto.EncryptForUser(priv.String(), masterKey, userID)
	if err != nil {
		t.Fatalf("encrypt wallet key: %v", err)
	}
	return &models.Wallet{
		ID:            1,
		UserID:        userID,
		Chain:         "solana",
		PublicAddress: priv.PublicKey().String(),
		EncryptedKey:  []byte(ciphertext),
	}
}

func newWorker(ex *fakeExecutor, q *fakeQueue, f *router.Factory, br *fakeBalanceReader, pg *fakePriceGetter, masterKey []byte) *Worker {
	return &Worker{
		store:       ex,
		queue:       q,
		factory:     f,
		chainClient: br,
		oracle:      pg,
		masterKey:   masterKey,
		cfg:         Config{ClaimLimit: 5, PollInterval: time.Second, ConfirmTimeout: 5 * time.Second},
		logger:      zap.NewNop(),
	}
}

func TestPayloadInt64HandlesFloat64RoundTrip(t *testing.T) {
	m := models.JSONMap{"execution_id": float64(42)}
	v, ok := payloadInt64(m, "execution_id")
	if !ok || v != 42 {
		t.Fatalf("expected 42, got %d, ok=%v", v, ok)
	}
}

func TestPercentOfFloorsDivision(t *testing.T) {
	if got := percentOf("1000", 50); got != "500" {
		t.Fatalf("expected 500, got %s", got)
	}
	if got := percentOf("999", 50); got != "499" {
		t.Fatalf("expected floor division 499, got %s", got)
	}
}

func TestLamportsConvertsWholeSOL(t *testing.T) {
	if got := lamports(1.5); got != "1500000000" {
		t.Fatalf("expected 1500000000, got %s", got)
	}
}

// TestHandleSellMoonBagOpensRemainderPosition exercises the moon-bag path
// (DESIGN.md "Moon-bag accounting"): a TP exit with sell_percent=80 must
// close the original position for the sold 80% and open a brand new
// MONITORING position for the held-back 20%, carrying entry_price, tp_price,
// sl_price, and peak_price forward from the original instead of dropping
// the remainder on the floor.
func TestHandleSellMoonBagOpensRemainderPosition(t *testing.T) {
	masterKey := testMasterKey(t)
	userID := int64(7)
	wallet := newUnlockableWallet(t, masterKey, userID)

	pos := &models.Position{
		ID:             42,
		UserID:         userID,
		Chain:          "solana",
		TokenMint:      "Mint111",
		EntryCostSOL:   1.0,
		EntryPrice:     1.0,
		CurrentPrice:   1.5,
		PeakPrice:      1.5,
		TPPrice:        1.5,
		SLPrice:        0.8,
		LifecycleState: models.LifecyclePostGraduation,
	}
	ex := &fakeExecutor{
		wallet: wallet,
		strategy: &models.Strategy{
			ID:             1,
			Chain:          "solana",
			Kind:           models.StrategyAuto,
			SlippageBps:    100,
			MoonBagPercent: 20,
		},
		exec:     &models.Execution{ID: 99, AmountSOL: 1.0},
		position: pos,
	}
	q := &fakeQueue{}
	stub := &stubRouter{name: "aggregator", success: true, output: "500000"}
	factory := router.NewFactory(stub, stub)
	br := &fakeBalanceReader{balance: chain.TokenBalance{Amount: "1000000", Decimals: 6}}
	pg := &fakePriceGetter{price: 1.5}
	w := newWorker(ex, q, factory, br, pg, masterKey)

	job := &models.TradeJob{
		ID:         1,
		StrategyID: 1,
		UserID:     userID,
		Chain:      "solana",
		Action:     models.ActionSell,
		Payload: models.JSONMap{
			PayloadMint:        "Mint111",
			PayloadExecutionID: int64(99),
			PayloadPositionID:  int64(42),
			PayloadTrigger:     models.TriggerKindTP,
			PayloadSellPercent: int64(80),
		},
	}

	if err := w.handleSell(context.Background(), job); err != nil {
		t.Fatalf("handleSell() error = %v", err)
	}

	if ex.createdPosition == nil {
		t.Fatal("expected a remainder position to be created for the moon-bag exit")
	}
	if ex.createdPosition.SizeTokens != "200000" {
		t.Errorf("remainder size_tokens = %s, want 200000 (20%% of 1000000)", ex.createdPosition.SizeTokens)
	}
	if got, want := ex.createdPosition.EntryCostSOL, 0.2; got != want {
		t.Errorf("remainder entry_cost_sol = %v, want %v", got, want)
	}
	if ex.createdPosition.EntryPrice != pos.EntryPrice {
		t.Errorf("remainder entry_price = %v, want %v (copied from original)", ex.createdPosition.EntryPrice, pos.EntryPrice)
	}
	if ex.createdPosition.TPPrice != pos.TPPrice || ex.createdPosition.SLPrice != pos.SLPrice {
		t.Error("remainder must copy the original's immutable tp_price/sl_price")
	}
	if ex.createdPosition.PeakPrice != pos.PeakPrice {
		t.Errorf("remainder peak_price = %v, want %v (carried forward, not reset)", ex.createdPosition.PeakPrice, pos.PeakPrice)
	}
	if ex.createdPosition.EntryExecutionRef != pos.EntryExecutionRef {
		t.Error("remainder must point at the original entry execution, not the sell execution")
	}

	if ex.completedArgs == nil {
		t.Fatal("expected the original position to still be marked trigger-completed")
	}
}

// TestHandleSellFullExitOpensNoRemainderPosition is the non-moon-bag control:
// a 100% sell must not create a second position row.
func TestHandleSellFullExitOpensNoRemainderPosition(t *testing.T) {
	masterKey := testMasterKey(t)
	userID := int64(7)
	wallet := newUnlockableWallet(t, masterKey, userID)

	pos := &models.Position{
		ID:           42,
		UserID:       userID,
		Chain:        "solana",
		TokenMint:    "Mint111",
		EntryCostSOL: 1.0,
		EntryPrice:   1.0,
		CurrentPrice: 0.5,
		PeakPrice:    1.1,
		TPPrice:      1.5,
		SLPrice:      0.5,
	}
	ex := &fakeExecutor{
		wallet:   wallet,
		strategy: &models.Strategy{ID: 1, Chain: "solana", Kind: models.StrategyAuto, SlippageBps: 100},
		exec:     &models.Execution{ID: 99, AmountSOL: 1.0},
		position: pos,
	}
	q := &fakeQueue{}
	stub := &stubRouter{name: "aggregator", success: true, output: "1000000"}
	factory := router.NewFactory(stub, stub)
	br := &fakeBalanceReader{balance: chain.TokenBalance{Amount: "1000000", Decimals: 6}}
	pg := &fakePriceGetter{price: 0.5}
	w := newWorker(ex, q, factory, br, pg, masterKey)

	job := &models.TradeJob{
		ID:         1,
		StrategyID: 1,
		UserID:     userID,
		Chain:      "solana",
		Action:     models.ActionSell,
		Payload: models.JSONMap{
			PayloadMint:        "Mint111",
			PayloadExecutionID: int64(99),
			PayloadPositionID:  int64(42),
			PayloadTrigger:     models.TriggerKindSL,
			PayloadSellPercent: int64(100),
		},
	}

	if err := w.handleSell(context.Background(), job); err != nil {
		t.Fatalf("handleSell() error = %v", err)
	}
	if ex.createdPosition != nil {
		t.Error("a full exit must not open a remainder position")
	}
}

func TestRemainingTokensFloorsAtZero(t *testing.T) {
	if got := remainingTokens("1000", "400").String(); got != "600" {
		t.Errorf("remainingTokens(1000, 400) = %s, want 600", got)
	}
	if got := remainingTokens("1000", "1000").String(); got != "0" {
		t.Errorf("remainingTokens(1000, 1000) = %s, want 0", got)
	}
	if got := remainingTokens("1000", "1500").String(); got != "0" {
		t.Errorf("remainingTokens(1000, 1500) = %s, want 0 (never negative)", got)
	}
}
