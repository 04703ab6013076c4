// Package worker implements the Execution Worker (spec §4.6): it claims
// trade jobs, drives each through the router factory to a terminal execution
// state, and on a confirmed buy opens the corresponding position.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"raptor/internal/audit"
	"raptor/internal/chain"
	"raptor/internal/models"
	"raptor/internal/priceoracle"
	"raptor/internal/queue"
	"raptor/internal/router"
	"raptor/internal/store"
	"raptor/internal/walletkey"
	"raptor/pkg/raptorerr"
)

// jobQueue is the slice of *queue.Queue the worker depends on.
type jobQueue interface {
	Claim(ctx context.Context, limit int) ([]*models.TradeJob, error)
	Heartbeat(ctx context.Context, jobID int64) error
	Complete(ctx context.Context, jobID int64) error
	Fail(ctx context.Context, job *models.TradeJob, errText string, retryable bool) error
}

// balanceReader is the slice of *chain.Client the worker depends on.
type balanceReader interface {
	GetTokenBalanceForOwner(ctx context.Context, owner, mint string) (chain.TokenBalance, error)
}

// priceGetter is the slice of *priceoracle.Oracle the worker depends on.
type priceGetter interface {
	GetPrice(ctx context.Context, mint string) (priceoracle.Price, error)
}

// Job payload keys shared with producers (internal/candidate for BUY,
// internal/exitqueue for SELL). The store's trade_jobs.payload column is
// opaque jsonb, so these are the only contract between producer and worker.
const (
	PayloadMint         = "mint"
	PayloadExecutionID  = "execution_id"
	PayloadBondingCurve = "bonding_curve"
	PayloadPositionID   = "position_id"
	PayloadTrigger      = "trigger"
	PayloadSellPercent  = "sell_percent"
)

// executor is the slice of *store.Store the worker depends on.
type executor interface {
	GetActiveWallet(ctx context.Context, userID int64, chain string) (*models.Wallet, error)
	GetStrategy(ctx context.Context, id int64) (*models.Strategy, error)
	GetExecution(ctx context.Context, id int64) (*models.Execution, error)
	UpdateExecution(ctx context.Context, id int64, toStatus string, txSig *string, tokensOut *string, pricePerToken *float64, errText, errCode string, result models.JSONMap) error
	CreatePosition(ctx context.Context, p *models.Position) (int64, error)
	GetPosition(ctx context.Context, id int64) (*models.Position, error)
	MarkPositionExecuting(ctx context.Context, positionID int64) error
	MarkTriggerCompleted(ctx context.Context, positionID, exitExecutionRef int64, exitTxSig string, exitPrice float64, exitTrigger string, realizedPnlSOL, realizedPnlPercent float64) error
	MarkTriggerFailed(ctx context.Context, positionID int64, lastError string) error
	EnqueueNotification(ctx context.Context, n *models.Notification) (int64, error)
}

// Config holds the worker's tunables. internal/config clamps ClaimLimit;
// PollInterval and ConfirmTimeout are used as given, except that a
// non-positive ConfirmTimeout falls back to router.DefaultConfirmTimeout.
type Config struct {
	ClaimLimit     int
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	UseAntiMEV     bool
}

// Worker claims and executes trade jobs for one chain.
type Worker struct {
	store       executor
	queue       jobQueue
	factory     *router.Factory
	chainClient balanceReader
	oracle      priceGetter
	masterKey   []byte
	audit       *audit.Log
	cfg         Config
	logger      *zap.Logger
}

// New builds a Worker. masterKey backs wallet decryption (pkg/crypto) and
// must never be logged or retained beyond this process's lifetime. log
// records every key unlock to the security audit trail (spec §7); pass nil
// to skip audit recording.
func New(st *store.Store, q *queue.Queue, f *router.Factory, c *chain.Client, oracle *priceoracle.Oracle, masterKey []byte, log *audit.Log, cfg Config, logger *zap.Logger) *Worker {
	return &Worker{store: st, queue: q, factory: f, chainClient: c, oracle: oracle, masterKey: masterKey, audit: log, cfg: cfg, logger: logger}
}

// unlockWallet decrypts w's key material for one signing call and records
// the unlock to the audit trail (spec §7 "key export").
func (w *Worker) unlockWallet(ctx context.Context, wallet *models.Wallet, job *models.TradeJob) (*walletkey.Signer, error) {
	signer, err := walletkey.Unlock(wallet, w.masterKey)
	if err != nil {
		return nil, err
	}
	if w.audit != nil {
		userID := job.UserID
		w.audit.Record(ctx, models.AuditKeyExport, &userID, job.Chain, models.JSONMap{
			"wallet": wallet.PublicAddress, "job_id": job.ID, "action": job.Action,
		})
	}
	return signer, nil
}

// Run polls for jobs on cfg.PollInterval until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			jobs, err := w.queue.Claim(ctx, w.cfg.ClaimLimit)
			if err != nil {
				w.logger.Error("worker: claim jobs failed", zap.Error(err))
				continue
			}
			for _, j := range jobs {
				w.handle(ctx, j)
			}
		}
	}
}

// handle drives a single job to completion (spec §4.6 steps 2-5).
func (w *Worker) handle(ctx context.Context, job *models.TradeJob) {
	var err error
	switch job.Action {
	case models.ActionBuy:
		err = w.handleBuy(ctx, job)
	case models.ActionSell:
		err = w.handleSell(ctx, job)
	default:
		err = fmt.Errorf("worker: unknown job action %q", job.Action)
	}

	if err == nil {
		if fErr := w.queue.Complete(ctx, job.ID); fErr != nil {
			w.logger.Error("worker: complete job", zap.Int64("job_id", job.ID), zap.Error(fErr))
		}
		return
	}

	code := codeOf(err)
	w.logger.Warn("worker: job failed", zap.Int64("job_id", job.ID), zap.String("action", job.Action),
		zap.String("code", string(code)), zap.Error(err))
	if fErr := w.queue.Fail(ctx, job, err.Error(), code.Retryable()); fErr != nil {
		w.logger.Error("worker: fail job", zap.Int64("job_id", job.ID), zap.Error(fErr))
	}
}

// codeOf extracts the raptorerr.Code carried by err if it is, or wraps, a
// *raptorerr.Error; otherwise it classifies err's text (spec §7).
func codeOf(err error) raptorerr.Code {
	var classified *raptorerr.Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return raptorerr.Classify(err.Error())
}

// handleBuy executes a BUY job: quote -> build -> sign -> submit, opening a
// position on CONFIRMED (spec §4.6 step 3).
func (w *Worker) handleBuy(ctx context.Context, job *models.TradeJob) error {
	mint, _ := job.Payload[PayloadMint].(string)
	execID, ok := payloadInt64(job.Payload, PayloadExecutionID)
	if mint == "" || !ok {
		return fmt.Errorf("worker: buy job %d missing mint or execution_id", job.ID)
	}
	bondingCurve, _ := job.Payload[PayloadBondingCurve].(string)

	exec, err := w.store.GetExecution(ctx, execID)
	if err != nil {
		return fmt.Errorf("worker: load execution: %w", err)
	}
	st, err := w.store.GetStrategy(ctx, job.StrategyID)
	if err != nil {
		return fmt.Errorf("worker: load strategy: %w", err)
	}
	wallet, err := w.store.GetActiveWallet(ctx, job.UserID, job.Chain)
	if err != nil {
		return fmt.Errorf("worker: load wallet: %w", err)
	}
	signer, err := w.unlockWallet(ctx, wallet, job)
	if err != nil {
		return fmt.Errorf("worker: unlock wallet: %w", err)
	}

	lifecycle := ""
	if bondingCurve != "" {
		lifecycle = models.LifecyclePreGraduation
	}
	intent := router.Intent{
		Mint:           mint,
		Amount:         lamports(exec.AmountSOL),
		Side:           router.SideBuy,
		SlippageBps:    st.SlippageBps,
		UserPubkey:     signer.PublicKey(),
		BondingCurve:   bondingCurve,
		LifecycleState: lifecycle,
	}

	r := w.factory.Select(intent)
	if r == nil {
		return raptorerr.New(raptorerr.InvalidAccount, "no router claims this buy")
	}

	quote, err := r.Quote(ctx, intent)
	if err != nil {
		_ = w.store.UpdateExecution(ctx, execID, models.ExecutionFailed, nil, nil, nil, err.Error(), string(raptorerr.Classify(err.Error())), nil)
		return fmt.Errorf("worker: quote: %w", err)
	}
	tx, err := r.BuildTx(ctx, quote, intent)
	if err != nil {
		_ = w.store.UpdateExecution(ctx, execID, models.ExecutionFailed, nil, nil, nil, err.Error(), string(raptorerr.Classify(err.Error())), nil)
		return fmt.Errorf("worker: build tx: %w", err)
	}

	if err := w.store.UpdateExecution(ctx, execID, models.ExecutionSubmitted, nil, nil, nil, "", "", nil); err != nil {
		return fmt.Errorf("worker: mark submitted: %w", err)
	}
	if err := w.queue.Heartbeat(ctx, job.ID); err != nil {
		w.logger.Warn("worker: heartbeat failed", zap.Int64("job_id", job.ID), zap.Error(err))
	}

	confirmTimeout := w.cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = router.DefaultConfirmTimeout
	}
	result, err := r.Execute(ctx, tx, intent, signer, router.ExecuteOptions{
		UseAntiMEV:           w.cfg.UseAntiMEV,
		PriorityFeeLamports:  st.PriorityFeeLamports,
		ConfirmTimeout:       confirmTimeout,
		LastValidBlockHeight: quote.LastValidBlockHeight,
	})
	if err != nil {
		_ = w.store.UpdateExecution(ctx, execID, models.ExecutionFailed, nil, nil, nil, err.Error(), string(raptorerr.Classify(err.Error())), nil)
		return fmt.Errorf("worker: execute: %w", err)
	}
	if !result.Success {
		code := raptorerr.Code(result.ErrorCode)
		if code == "" {
			code = raptorerr.Classify(result.Error)
		}
		sig := result.Signature
		var sigPtr *string
		if sig != "" {
			sigPtr = &sig
		}
		_ = w.store.UpdateExecution(ctx, execID, models.ExecutionFailed, sigPtr, nil, nil, result.Error, string(code), nil)
		return raptorerr.New(code, result.Error)
	}

	tokensOut := result.ActualOutput
	if tokensOut == "" {
		tokensOut = quote.ExpectedOutput
	}

	entryPrice := 0.0
	if w.oracle != nil {
		if p, err := w.oracle.GetPrice(ctx, mint); err == nil {
			entryPrice = p.USD
		}
	}
	var pricePerToken *float64
	if entryPrice > 0 {
		pricePerToken = &entryPrice
	}

	sig := result.Signature
	if err := w.store.UpdateExecution(ctx, execID, models.ExecutionConfirmed, &sig, &tokensOut, pricePerToken, "", "", nil); err != nil {
		return fmt.Errorf("worker: mark confirmed: %w", err)
	}

	if err := w.openPosition(ctx, job, exec, st, mint, bondingCurve, sig, tokensOut, entryPrice); err != nil {
		return fmt.Errorf("worker: open position: %w", err)
	}
	return nil
}

// openPosition creates the position row and enqueues the BUY notification
// (spec §4.6 step 3: "compute tp_price and sl_price from entry price and
// strategy percents, store bonding_curve from the candidate").
func (w *Worker) openPosition(ctx context.Context, job *models.TradeJob, exec *models.Execution, st *models.Strategy, mint, bondingCurve, txSig, tokensOut string, entryPrice float64) error {
	lifecycle := models.LifecyclePostGraduation
	if bondingCurve != "" {
		lifecycle = models.LifecyclePreGraduation
	}

	tpPrice := entryPrice * (1 + st.TakeProfitPercent/100)
	slPrice := entryPrice * (1 - st.StopLossPercent/100)

	var trailActivationPrice *float64
	if st.TrailingEnabled {
		activation := entryPrice * (1 + st.TrailActivationPct/100)
		trailActivationPrice = &activation
	}

	pos := &models.Position{
		UUID:                 newUUID(),
		UserID:                job.UserID,
		StrategyID:            job.StrategyID,
		OpportunityRef:        job.OpportunityRef,
		Chain:                 job.Chain,
		TokenMint:             mint,
		EntryExecutionRef:     exec.ID,
		EntryTxSig:            txSig,
		EntryCostSOL:          exec.AmountSOL,
		EntryPrice:            entryPrice,
		SizeTokens:            tokensOut,
		TPPrice:               tpPrice,
		SLPrice:               slPrice,
		TrailActivationPrice:  trailActivationPrice,
		BondingCurve:          bondingCurve,
		LifecycleState:        lifecycle,
	}
	posID, err := w.store.CreatePosition(ctx, pos)
	if err != nil {
		return err
	}

	_, err = w.store.EnqueueNotification(ctx, &models.Notification{
		UserID: job.UserID,
		Type:   models.EventBuyConfirmed,
		Payload: models.JSONMap{
			"position_id": posID,
			"mint":        mint,
			"tx_sig":      txSig,
			"amount_sol":  exec.AmountSOL,
		},
		Status:      models.NotificationPending,
		MaxAttempts: 5,
	})
	return err
}

// handleSell executes a SELL job driven by a manual command or an exit
// trigger claim (spec §4.6 step 4). The position, trigger kind, and sell
// percent travel in the job payload, set by whatever claimed the trigger.
func (w *Worker) handleSell(ctx context.Context, job *models.TradeJob) error {
	mint, _ := job.Payload[PayloadMint].(string)
	execID, ok := payloadInt64(job.Payload, PayloadExecutionID)
	posID, posOK := payloadInt64(job.Payload, PayloadPositionID)
	trigger, _ := job.Payload[PayloadTrigger].(string)
	sellPercent, _ := payloadInt64(job.Payload, PayloadSellPercent)
	if mint == "" || !ok || !posOK {
		return fmt.Errorf("worker: sell job %d missing mint, execution_id, or position_id", job.ID)
	}
	if sellPercent <= 0 {
		sellPercent = 100
	}
	if trigger == "" {
		trigger = "MANUAL"
	}

	pos, err := w.store.GetPosition(ctx, posID)
	if err != nil {
		return fmt.Errorf("worker: load position: %w", err)
	}
	st, err := w.store.GetStrategy(ctx, job.StrategyID)
	if err != nil {
		return fmt.Errorf("worker: load strategy: %w", err)
	}
	wallet, err := w.store.GetActiveWallet(ctx, job.UserID, job.Chain)
	if err != nil {
		return fmt.Errorf("worker: load wallet: %w", err)
	}
	signer, err := w.unlockWallet(ctx, wallet, job)
	if err != nil {
		return fmt.Errorf("worker: unlock wallet: %w", err)
	}

	balance, err := w.chainClient.GetTokenBalanceForOwner(ctx, signer.PublicKey(), mint)
	if err != nil {
		return fmt.Errorf("worker: read on-chain balance: %w", err)
	}

	requested := percentOf(balance.Amount, sellPercent)
	rawAmount, err := router.ApplyDustRule(requested, balance.Amount)
	if err != nil {
		return fmt.Errorf("worker: apply dust rule: %w", err)
	}

	lifecycle := ""
	if pos.IsPreGraduation() {
		lifecycle = models.LifecyclePreGraduation
	}
	intent := router.Intent{
		Mint:           mint,
		Amount:         rawAmount,
		Side:           router.SideSell,
		SlippageBps:    st.SlippageBps,
		UserPubkey:     signer.PublicKey(),
		BondingCurve:   pos.BondingCurve,
		LifecycleState: lifecycle,
		PositionID:     posID,
	}

	r := w.factory.Select(intent)
	if r == nil {
		return raptorerr.New(raptorerr.InvalidAccount, "no router claims this sell")
	}

	if err := w.store.MarkPositionExecuting(ctx, posID); err != nil {
		if errors.Is(err, store.ErrTriggerConflict) {
			return nil // another worker already owns this exit
		}
		return fmt.Errorf("worker: mark position executing: %w", err)
	}

	quote, err := r.Quote(ctx, intent)
	if err != nil {
		_ = w.store.MarkTriggerFailed(ctx, posID, err.Error())
		_ = w.store.UpdateExecution(ctx, execID, models.ExecutionFailed, nil, nil, nil, err.Error(), string(raptorerr.Classify(err.Error())), nil)
		return fmt.Errorf("worker: quote: %w", err)
	}
	tx, err := r.BuildTx(ctx, quote, intent)
	if err != nil {
		_ = w.store.MarkTriggerFailed(ctx, posID, err.Error())
		_ = w.store.UpdateExecution(ctx, execID, models.ExecutionFailed, nil, nil, nil, err.Error(), string(raptorerr.Classify(err.Error())), nil)
		return fmt.Errorf("worker: build tx: %w", err)
	}

	if err := w.store.UpdateExecution(ctx, execID, models.ExecutionSubmitted, nil, nil, nil, "", "", nil); err != nil {
		return fmt.Errorf("worker: mark submitted: %w", err)
	}
	if err := w.queue.Heartbeat(ctx, job.ID); err != nil {
		w.logger.Warn("worker: heartbeat failed", zap.Int64("job_id", job.ID), zap.Error(err))
	}

	confirmTimeout := w.cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = router.DefaultConfirmTimeout
	}
	result, err := r.Execute(ctx, tx, intent, signer, router.ExecuteOptions{
		UseAntiMEV:           w.cfg.UseAntiMEV,
		PriorityFeeLamports:  st.PriorityFeeLamports,
		ConfirmTimeout:       confirmTimeout,
		LastValidBlockHeight: quote.LastValidBlockHeight,
	})
	if err != nil {
		_ = w.store.MarkTriggerFailed(ctx, posID, err.Error())
		_ = w.store.UpdateExecution(ctx, execID, models.ExecutionFailed, nil, nil, nil, err.Error(), string(raptorerr.Classify(err.Error())), nil)
		return fmt.Errorf("worker: execute: %w", err)
	}
	if !result.Success {
		code := raptorerr.Code(result.ErrorCode)
		if code == "" {
			code = raptorerr.Classify(result.Error)
		}
		sig := result.Signature
		var sigPtr *string
		if sig != "" {
			sigPtr = &sig
		}
		_ = w.store.MarkTriggerFailed(ctx, posID, result.Error)
		_ = w.store.UpdateExecution(ctx, execID, models.ExecutionFailed, sigPtr, nil, nil, result.Error, string(code), nil)
		return raptorerr.New(code, result.Error)
	}

	exitPrice := pos.CurrentPrice
	if w.oracle != nil {
		if p, err := w.oracle.GetPrice(ctx, mint); err == nil {
			exitPrice = p.USD
		}
	}

	proportionalCost := pos.EntryCostSOL * float64(sellPercent) / 100

	realizedPercent := 0.0
	if pos.EntryPrice != 0 {
		realizedPercent = (exitPrice/pos.EntryPrice - 1) * 100
	}
	realizedSOL := proportionalCost * realizedPercent / 100

	if err := w.store.UpdateExecution(ctx, execID, models.ExecutionConfirmed, &result.Signature, nil, nil, "", "", nil); err != nil {
		return fmt.Errorf("worker: mark confirmed: %w", err)
	}

	// A moon-bag exit (sellPercent < 100) only closes out the sold share; the
	// remainder keeps trading and must get its own MONITORING position row
	// before this one reaches COMPLETED, since COMPLETED -> MONITORING is not
	// a legal trigger_state edge (DESIGN.md "Moon-bag accounting").
	if remainderRaw := remainingTokens(balance.Amount, rawAmount); sellPercent < 100 && remainderRaw.Sign() > 0 {
		if err := w.openMoonBagRemainder(ctx, pos, sellPercent, remainderRaw.String()); err != nil {
			w.logger.Error("worker: open moon-bag remainder position", zap.Int64("position_id", posID), zap.Error(err))
		}
	}

	if err := w.store.MarkTriggerCompleted(ctx, posID, execID, result.Signature, exitPrice, trigger, realizedSOL, realizedPercent); err != nil {
		return fmt.Errorf("worker: mark trigger completed: %w", err)
	}

	_, err = w.store.EnqueueNotification(ctx, &models.Notification{
		UserID: job.UserID,
		Type:   models.EventSellConfirmed,
		Payload: models.JSONMap{
			"position_id":  posID,
			"mint":         mint,
			"tx_sig":       result.Signature,
			"trigger":      trigger,
			"realized_sol": realizedSOL,
		},
		Status:      models.NotificationPending,
		MaxAttempts: 5,
	})
	return err
}

// openMoonBagRemainder carries the held-back share of a TP exit forward as a
// new position row (DESIGN.md "Moon-bag accounting"): it copies entry_price,
// tp_price, sl_price, trail_activation_price, peak_price, opened_at, and
// bonding_curve from the original so max_hold_minutes keeps counting from the
// original entry rather than the split, reduces size_tokens/entry_cost_sol
// proportionally to the unsold share, points entry_execution_ref at the same
// entry execution (the moon bag has no execution of its own), and starts in
// trigger_state=MONITORING so the monitor picks it back up on its next
// watch-set refresh.
func (w *Worker) openMoonBagRemainder(ctx context.Context, original *models.Position, sellPercent int64, remainderRaw string) error {
	remainderPct := 100 - sellPercent
	remainder := &models.Position{
		UUID:                 newUUID(),
		UserID:               original.UserID,
		StrategyID:           original.StrategyID,
		OpportunityRef:       original.OpportunityRef,
		Chain:                original.Chain,
		TokenMint:            original.TokenMint,
		TokenSymbol:          original.TokenSymbol,
		TokenName:            original.TokenName,
		EntryExecutionRef:    original.EntryExecutionRef,
		EntryTxSig:           original.EntryTxSig,
		EntryCostSOL:         original.EntryCostSOL * float64(remainderPct) / 100,
		EntryPrice:           original.EntryPrice,
		SizeTokens:           remainderRaw,
		CurrentPrice:         original.CurrentPrice,
		PeakPrice:            original.PeakPrice,
		TPPrice:              original.TPPrice,
		SLPrice:              original.SLPrice,
		TrailActivationPrice: original.TrailActivationPrice,
		BondingCurve:         original.BondingCurve,
		EntryMarketCapSOL:    original.EntryMarketCapSOL,
		LifecycleState:       original.LifecycleState,
		OpenedAt:             original.OpenedAt,
	}
	_, err := w.store.CreatePosition(ctx, remainder)
	return err
}

// remainingTokens returns max(0, balance - sold) as a raw base-unit integer.
func remainingTokens(balanceRaw, soldRaw string) *big.Int {
	balance, ok := new(big.Int).SetString(balanceRaw, 10)
	if !ok {
		return big.NewInt(0)
	}
	sold, ok := new(big.Int).SetString(soldRaw, 10)
	if !ok {
		return big.NewInt(0)
	}
	rem := new(big.Int).Sub(balance, sold)
	if rem.Sign() < 0 {
		return big.NewInt(0)
	}
	return rem
}

// newUUID generates the position's external identifier.
func newUUID() string {
	return uuid.NewString()
}

// lamports converts whole SOL to its base-unit lamport string.
func lamports(sol float64) string {
	return new(big.Int).SetUint64(uint64(sol * 1e9)).String()
}

// percentOf returns floor(balance * percent / 100) as a raw-unit string.
func percentOf(balanceRaw string, percent int64) string {
	balance, ok := new(big.Int).SetString(balanceRaw, 10)
	if !ok {
		return "0"
	}
	out := new(big.Int).Mul(balance, big.NewInt(percent))
	out.Div(out, big.NewInt(100))
	return out.String()
}

// payloadInt64 reads an int64 out of a JSONMap value that may have round-tripped
// through JSON as float64, or been set directly as int64 before storage.
func payloadInt64(m models.JSONMap, key string) (int64, bool) {
	switch v := m[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
