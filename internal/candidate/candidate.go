// Package candidate implements the Candidate Consumer (spec §4.5): it drains
// newly discovered launch candidates, evaluates each activated AUTO strategy's
// filter predicates against them, and enqueues a BUY trade job for every user
// whose strategy admits the trade under the Budget Gate.
package candidate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"raptor/internal/budget"
	"raptor/internal/models"
	"raptor/internal/queue"
	"raptor/internal/store"
	"raptor/pkg/idempotency"
	"raptor/pkg/raptorerr"
)

// strategist is the slice of *store.Store the consumer depends on.
type strategist interface {
	ClaimNewCandidates(ctx context.Context, chain string, limit int) ([]*models.LaunchCandidate, error)
	ResolveCandidate(ctx context.Context, id int64, status string) error
	ListActivatedAutoStrategies(ctx context.Context, chain string) ([]*models.Strategy, error)
}

// enqueuer is the narrow view of the job queue the consumer needs.
type enqueuer interface {
	Enqueue(ctx context.Context, j *models.TradeJob) (int64, error)
}

// gate is the narrow view of the budget gate the consumer needs.
type gate interface {
	CheckBlacklist(ctx context.Context, chain, mint, deployer string) error
	Reserve(ctx context.Context, st *models.Strategy, idempotencyKey, mint, deployer, action, mode string, amountSOL float64, allowRetry bool) (*models.Execution, error)
}

// Config holds the consumer's polling knobs, all clamped by internal/config
// before reaching here.
type Config struct {
	Chain        string
	PollInterval time.Duration
	BatchSize    int
	MaxAge       time.Duration
}

// Consumer drains launch_candidates and fans each one out across every
// activated AUTO strategy on its chain.
type Consumer struct {
	store  strategist
	gate   gate
	queue  enqueuer
	cfg    Config
	logger *zap.Logger
}

// New builds a Consumer bound to one chain.
func New(st *store.Store, g *budget.Gate, q *queue.Queue, cfg Config, logger *zap.Logger) *Consumer {
	return &Consumer{store: st, gate: g, queue: q, cfg: cfg, logger: logger}
}

// Run polls on cfg.PollInterval until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.tick(ctx); err != nil {
				c.logger.Error("candidate consumer tick failed", zap.Error(err))
			}
		}
	}
}

func (c *Consumer) tick(ctx context.Context) error {
	candidates, err := c.store.ClaimNewCandidates(ctx, c.cfg.Chain, c.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("candidate: claim: %w", err)
	}
	for _, cand := range candidates {
		c.process(ctx, cand)
	}
	return nil
}

// process runs the 5-step algorithm for a single candidate. Errors evaluating
// one user's strategy are logged and skipped — they must not stop the
// candidate from being offered to the remaining users.
func (c *Consumer) process(ctx context.Context, cand *models.LaunchCandidate) {
	if cand.Expired(time.Now(), c.cfg.MaxAge) {
		if err := c.store.ResolveCandidate(ctx, cand.ID, models.CandidateExpired); err != nil {
			c.logger.Error("candidate: resolve expired", zap.Int64("candidate_id", cand.ID), zap.Error(err))
		}
		return
	}

	strategies, err := c.store.ListActivatedAutoStrategies(ctx, cand.Chain)
	if err != nil {
		c.logger.Error("candidate: list strategies", zap.Error(err))
		return
	}

	anyQueued := false
	recheckLater := false
	for _, st := range strategies {
		queued, recheck := c.evaluate(ctx, cand, st)
		anyQueued = anyQueued || queued
		recheckLater = recheckLater || recheck
	}

	if recheckLater && !anyQueued {
		// At least one user was denied on a transient cooldown and nobody else
		// queued a job: leave the candidate in 'new' so a later poll re-evaluates
		// it (spec §4.5 step 4's cooldown re-check case).
		return
	}

	status := models.CandidateRejected
	if anyQueued {
		status = models.CandidateAccepted
	}
	if err := c.store.ResolveCandidate(ctx, cand.ID, status); err != nil {
		c.logger.Error("candidate: resolve", zap.Int64("candidate_id", cand.ID), zap.String("status", status), zap.Error(err))
	}
}

// evaluate runs one user's strategy against the candidate, returning whether a
// job was queued and whether the denial reason was a cooldown (which should
// defer the candidate's resolution rather than rejecting it outright).
func (c *Consumer) evaluate(ctx context.Context, cand *models.LaunchCandidate, st *models.Strategy) (queued, recheckLater bool) {
	if !passesFilters(cand, st) {
		return false, false
	}

	if err := c.gate.CheckBlacklist(ctx, cand.Chain, cand.TokenMint, cand.Deployer); err != nil {
		return false, false
	}

	key := idempotency.BuyKey(st.UserID, st.ID, cand.TokenMint)
	exec, err := c.gate.Reserve(ctx, st, key, cand.TokenMint, cand.Deployer, models.ActionBuy, models.ModeAuto, st.MaxPerTradeSOL, false)
	if err != nil {
		var classified *raptorerr.Error
		if errors.As(err, &classified) && classified.Code == raptorerr.CooldownActive {
			return false, true
		}
		if !errors.As(err, &classified) {
			c.logger.Error("candidate: reserve budget", zap.Int64("user_id", st.UserID), zap.Error(err))
		}
		return false, false
	}

	job := &models.TradeJob{
		StrategyID:     st.ID,
		UserID:         st.UserID,
		Chain:          cand.Chain,
		Action:         models.ActionBuy,
		OpportunityRef: &cand.ID,
		Priority:       0,
		Payload: models.JSONMap{
			"mint":          cand.TokenMint,
			"execution_id":  exec.ID,
			"bonding_curve": cand.BondingCurve,
		},
		IdempotencyKey: key,
		Status:         models.JobPending,
		MaxAttempts:    3,
	}
	if _, err := c.queue.Enqueue(ctx, job); err != nil {
		c.logger.Error("candidate: enqueue job", zap.Int64("user_id", st.UserID), zap.Error(err))
		return false, false
	}
	return true, false
}

// passesFilters evaluates min_score, the launchpad allowlist, and the
// strategy's allow/deny lists against one candidate. deny_list always wins
// over allow_list; an empty allow_list means "no restriction," not "deny all."
func passesFilters(cand *models.LaunchCandidate, st *models.Strategy) bool {
	if cand.Score < st.MinScore {
		return false
	}

	if len(st.LaunchpadAllowlist) > 0 && !contains(st.LaunchpadAllowlist, cand.Source) {
		return false
	}

	if contains(st.DenyList, cand.TokenMint) || (cand.Deployer != "" && contains(st.DenyList, cand.Deployer)) {
		return false
	}

	if len(st.AllowList) > 0 {
		if !contains(st.AllowList, cand.TokenMint) && !(cand.Deployer != "" && contains(st.AllowList, cand.Deployer)) {
			return false
		}
	}

	return true
}

func contains(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
