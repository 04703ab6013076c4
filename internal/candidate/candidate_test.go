package candidate

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"raptor/internal/models"
	"raptor/pkg/raptorerr"
)

type fakeStrategist struct {
	candidates      []*models.LaunchCandidate
	strategies      []*models.Strategy
	resolvedID      int64
	resolvedStatus  string
}

func (f *fakeStrategist) ClaimNewCandidates(ctx context.Context, chain string, limit int) ([]*models.LaunchCandidate, error) {
	return f.candidates, nil
}
func (f *fakeStrategist) ResolveCandidate(ctx context.Context, id int64, status string) error {
	f.resolvedID = id
	f.resolvedStatus = status
	return nil
}
func (f *fakeStrategist) ListActivatedAutoStrategies(ctx context.Context, chain string) ([]*models.Strategy, error) {
	return f.strategies, nil
}

type fakeGate struct {
	blacklisted bool
	reserveErr  error
	reserveExec *models.Execution
}

func (f *fakeGate) CheckBlacklist(ctx context.Context, chain, mint, deployer string) error {
	if f.blacklisted {
		return raptorerr.New(raptorerr.TokenBlacklisted, "")
	}
	return nil
}
func (f *fakeGate) Reserve(ctx context.Context, st *models.Strategy, idempotencyKey, mint, deployer, action, mode string, amountSOL float64, allowRetry bool) (*models.Execution, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	return f.reserveExec, nil
}

type fakeEnqueuer struct {
	jobs []*models.TradeJob
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, j *models.TradeJob) (int64, error) {
	f.jobs = append(f.jobs, j)
	return int64(len(f.jobs)), nil
}

func newConsumer(st *fakeStrategist, g *fakeGate, q *fakeEnqueuer) *Consumer {
	return &Consumer{
		store:  st,
		gate:   g,
		queue:  q,
		cfg:    Config{Chain: "solana", PollInterval: time.Second, BatchSize: 10, MaxAge: 2 * time.Minute},
		logger: zap.NewNop(),
	}
}

func baseCandidate() *models.LaunchCandidate {
	return &models.LaunchCandidate{
		ID: 1, Chain: "solana", Source: "pumpfun", TokenMint: "MINT1",
		Score: 80, Deployer: "DEP1", Status: models.CandidateNew, FirstSeenAt: time.Now(),
	}
}

func baseStrategy() *models.Strategy {
	return &models.Strategy{ID: 10, UserID: 1, Chain: "solana", Kind: models.StrategyAuto, Enabled: true, AutoExecute: true, MinScore: 50}
}

func TestProcessExpiresStaleCandidate(t *testing.T) {
	cand := baseCandidate()
	cand.FirstSeenAt = time.Now().Add(-10 * time.Minute)

	st := &fakeStrategist{candidates: []*models.LaunchCandidate{cand}}
	g := &fakeGate{}
	q := &fakeEnqueuer{}
	c := newConsumer(st, g, q)

	c.process(context.Background(), cand)

	if st.resolvedStatus != models.CandidateExpired {
		t.Fatalf("expected expired, got %s", st.resolvedStatus)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("expected no jobs queued for an expired candidate")
	}
}

func TestProcessRejectsBelowMinScore(t *testing.T) {
	cand := baseCandidate()
	cand.Score = 10

	strat := baseStrategy()
	st := &fakeStrategist{strategies: []*models.Strategy{strat}}
	g := &fakeGate{reserveExec: &models.Execution{ID: 99}}
	q := &fakeEnqueuer{}
	c := newConsumer(st, g, q)

	c.process(context.Background(), cand)

	if st.resolvedStatus != models.CandidateRejected {
		t.Fatalf("expected rejected, got %s", st.resolvedStatus)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("expected no job queued for a below-threshold score")
	}
}

func TestProcessQueuesJobAndAcceptsCandidate(t *testing.T) {
	cand := baseCandidate()
	strat := baseStrategy()
	st := &fakeStrategist{strategies: []*models.Strategy{strat}}
	g := &fakeGate{reserveExec: &models.Execution{ID: 99}}
	q := &fakeEnqueuer{}
	c := newConsumer(st, g, q)

	c.process(context.Background(), cand)

	if st.resolvedStatus != models.CandidateAccepted {
		t.Fatalf("expected accepted, got %s", st.resolvedStatus)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected exactly one job queued, got %d", len(q.jobs))
	}
	if q.jobs[0].IdempotencyKey == "" {
		t.Fatalf("expected a derived idempotency key")
	}
}

func TestProcessSkipsBlacklistedMint(t *testing.T) {
	cand := baseCandidate()
	strat := baseStrategy()
	st := &fakeStrategist{strategies: []*models.Strategy{strat}}
	g := &fakeGate{blacklisted: true}
	q := &fakeEnqueuer{}
	c := newConsumer(st, g, q)

	c.process(context.Background(), cand)

	if st.resolvedStatus != models.CandidateRejected {
		t.Fatalf("expected rejected, got %s", st.resolvedStatus)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("expected no job queued for a blacklisted mint")
	}
}

func TestProcessDefersResolutionOnCooldownWithNoOtherQueuer(t *testing.T) {
	cand := baseCandidate()
	strat := baseStrategy()
	st := &fakeStrategist{strategies: []*models.Strategy{strat}}
	g := &fakeGate{reserveErr: raptorerr.New(raptorerr.CooldownActive, "")}
	q := &fakeEnqueuer{}
	c := newConsumer(st, g, q)

	c.process(context.Background(), cand)

	if st.resolvedStatus != "" {
		t.Fatalf("expected candidate to be left unresolved pending a later poll, got %s", st.resolvedStatus)
	}
}

func TestPassesFiltersDenyListWinsOverAllowList(t *testing.T) {
	cand := baseCandidate()
	strat := baseStrategy()
	strat.AllowList = []string{"MINT1"}
	strat.DenyList = []string{"MINT1"}

	if passesFilters(cand, strat) {
		t.Fatalf("expected deny_list to win over allow_list")
	}
}

func TestPassesFiltersLaunchpadAllowlist(t *testing.T) {
	cand := baseCandidate()
	strat := baseStrategy()
	strat.LaunchpadAllowlist = []string{"raydium"}

	if passesFilters(cand, strat) {
		t.Fatalf("expected rejection: candidate source not in launchpad allowlist")
	}

	strat.LaunchpadAllowlist = []string{"pumpfun"}
	if !passesFilters(cand, strat) {
		t.Fatalf("expected admission: candidate source in launchpad allowlist")
	}
}
