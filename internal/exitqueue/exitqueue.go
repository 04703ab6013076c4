// Package exitqueue implements the Exit Queue (spec §4.8): a bounded,
// in-process priority queue that turns a won trigger claim into a SELL
// trade job, gated by per-wallet concurrency and by backpressure against the
// Position Monitor once the queue backs up.
package exitqueue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"raptor/internal/budget"
	"raptor/internal/models"
	"raptor/internal/monitor"
	"raptor/internal/queue"
	"raptor/internal/store"
	"raptor/pkg/idempotency"
	"raptor/pkg/raptorerr"
)

// strategyLoader is the slice of *store.Store the queue depends on.
type strategyLoader interface {
	GetStrategy(ctx context.Context, id int64) (*models.Strategy, error)
	TriggerExitAtomically(ctx context.Context, positionID int64, trigger string, triggerPrice float64) error
}

// gate is the narrow view of the budget gate an exit reservation needs.
type gate interface {
	Reserve(ctx context.Context, st *models.Strategy, idempotencyKey, mint, deployer, action, mode string, amountSOL float64, allowRetry bool) (*models.Execution, error)
}

// enqueuer is the narrow view of the job queue the exit queue feeds.
type enqueuer interface {
	Enqueue(ctx context.Context, j *models.TradeJob) (int64, error)
}

// item is one entry in the internal priority heap: lower Priority dequeues
// first, matching the trade_jobs priority convention (SL < TP < TRAIL < MAXHOLD).
type item struct {
	trigger monitor.ExitTrigger
	seq     int64 // insertion order, breaks priority ties FIFO
	index   int
}

type triggerHeap []*item

func (h triggerHeap) Len() int { return len(h) }
func (h triggerHeap) Less(i, j int) bool {
	if h[i].trigger.Priority != h[j].trigger.Priority {
		return h[i].trigger.Priority < h[j].trigger.Priority
	}
	return h[i].seq < h[j].seq
}
func (h triggerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *triggerHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *triggerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Config tunes backpressure and per-wallet concurrency (spec §5/§4.8).
type Config struct {
	Workers           int
	HighWaterMark     int
	LowWaterMark      int
	PerWalletLimit    int
}

// Queue is the bounded in-process priority queue driving exit execution.
// Monitor workers call EnqueueExit; a fixed pool of internal workers drains
// it by calling the Budget Gate and the job Queue, the same producer path
// the Candidate Consumer uses for BUYs.
type Queue struct {
	store  strategyLoader
	gate   gate
	jobs   enqueuer
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	heap     triggerHeap
	seq      int64
	inFlight map[string]int // "{user_id}:{chain}" -> count of in-flight sells on that wallet
	closed   bool
	over     bool // hysteresis latch: true from crossing HighWaterMark until draining below LowWaterMark
}

// New builds a Queue. A non-positive cfg.Workers defaults to 4 and a
// non-positive PerWalletLimit to 1; HighWaterMark and LowWaterMark are used
// as given, since internal/config does not clamp them.
func New(st *store.Store, g *budget.Gate, q *queue.Queue, cfg Config, logger *zap.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PerWalletLimit <= 0 {
		cfg.PerWalletLimit = 1
	}
	eq := &Queue{
		store:    st,
		gate:     g,
		jobs:     q,
		cfg:      cfg,
		logger:   logger,
		inFlight: make(map[string]int),
	}
	eq.cond = sync.NewCond(&eq.mu)
	return eq
}

// Saturated reports whether the queue is over its high-water mark and has
// not yet drained below the low-water mark — the signal the Position
// Monitor checks before calling trigger_exit_atomically (spec §4.8:
// "the monitor must pause claiming new triggers ... until it drains below a
// low-water mark").
func (q *Queue) Saturated() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.saturatedLocked()
}

// saturatedLocked implements the high/low water mark hysteresis: crossing
// HighWaterMark latches q.over until depth falls to or below LowWaterMark,
// so the monitor doesn't flap resuming/pausing right at the high-water line.
func (q *Queue) saturatedLocked() bool {
	if q.cfg.HighWaterMark <= 0 {
		return false
	}
	depth := len(q.heap)
	if !q.over && depth >= q.cfg.HighWaterMark {
		q.over = true
	} else if q.over && depth <= q.cfg.LowWaterMark {
		q.over = false
	}
	return q.over
}

// EnqueueExit admits a won trigger claim into the priority queue (spec §4.7
// step 3's "enqueue an Exit Job"). The trigger has already won
// trigger_exit_atomically by the time this is called; EnqueueExit never
// fails on backpressure — callers are expected to have checked Saturated()
// first — it only fails if the queue has been shut down.
func (q *Queue) EnqueueExit(ctx context.Context, trigger monitor.ExitTrigger) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("exitqueue: closed")
	}
	q.seq++
	heap.Push(&q.heap, &item{trigger: trigger, seq: q.seq})
	q.cond.Signal()
	return nil
}

// EmergencyExit takes the user-initiated emergency-sell path (spec §4.8):
// it bypasses the monitor and calls trigger_exit_atomically directly with
// trigger=EMERGENCY, then admits the win at maximum priority ahead of
// everything else already queued.
func (q *Queue) EmergencyExit(ctx context.Context, p *models.Position) error {
	if err := q.store.TriggerExitAtomically(ctx, p.ID, models.TriggerKindEmergency, p.CurrentPrice); err != nil {
		if err == store.ErrTriggerConflict {
			return nil // another exit already won this position's claim
		}
		return fmt.Errorf("exitqueue: emergency trigger: %w", err)
	}
	key := idempotency.ExitKey(p.Chain, p.TokenMint, p.ID, models.TriggerKindEmergency, 100)
	return q.EnqueueExit(ctx, monitor.ExitTrigger{
		Position:       p,
		Trigger:        models.TriggerKindEmergency,
		TriggerPrice:   p.CurrentPrice,
		SellPercent:    100,
		Priority:       -1, // ahead of SL (priority 1), the next most urgent kind
		IdempotencyKey: key,
	})
}

// Run starts cfg.Workers dispatcher goroutines and blocks until ctx is
// canceled, then drains whatever remains queued before returning (spec §5:
// "the Exit Queue drains before the process exits").
func (q *Queue) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.dispatchLoop(ctx)
		}()
	}

	<-ctx.Done()
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	wg.Wait()
	return ctx.Err()
}

// dispatchLoop pops the highest-priority trigger whose wallet is under its
// concurrency cap, reserves an execution for it, and enqueues the SELL job.
// A trigger whose wallet is at capacity is held back (re-pushed) so other
// wallets' triggers keep flowing instead of head-of-line blocking.
func (q *Queue) dispatchLoop(ctx context.Context) {
	for {
		it, ok := q.waitNext(ctx)
		if !ok {
			return
		}
		q.dispatch(ctx, it.trigger)
		q.release(it.trigger)
	}
}

func (q *Queue) waitNext(ctx context.Context) (*item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed && len(q.heap) == 0 {
			return nil, false
		}
		if deferred := q.popRunnable(); deferred != nil {
			return deferred, true
		}
		if ctx.Err() != nil && len(q.heap) == 0 {
			return nil, false
		}
		q.cond.Wait()
	}
}

// popRunnable scans the heap for the highest-priority item whose wallet is
// below its concurrency cap, removing and returning it. Items held back by
// a saturated wallet stay in the heap for the next wake-up. Must hold q.mu.
func (q *Queue) popRunnable() *item {
	var held []*item
	var chosen *item
	for len(q.heap) > 0 {
		candidate := heap.Pop(&q.heap).(*item)
		key := walletKey(candidate.trigger.Position)
		if q.inFlight[key] < q.cfg.PerWalletLimit {
			q.inFlight[key]++
			chosen = candidate
			break
		}
		held = append(held, candidate)
	}
	for _, h := range held {
		heap.Push(&q.heap, h)
	}
	return chosen
}

func (q *Queue) release(trigger monitor.ExitTrigger) {
	q.mu.Lock()
	key := walletKey(trigger.Position)
	q.inFlight[key]--
	if q.inFlight[key] <= 0 {
		delete(q.inFlight, key)
	}
	q.cond.Broadcast()
	q.mu.Unlock()
}

func walletKey(p *models.Position) string {
	return fmt.Sprintf("%d:%s", p.UserID, p.Chain)
}

// dispatch reserves an execution for the exit and enqueues the SELL job the
// Execution Worker will drive to completion (spec §4.6 step 4).
func (q *Queue) dispatch(ctx context.Context, trigger monitor.ExitTrigger) {
	p := trigger.Position
	st, err := q.store.GetStrategy(ctx, p.StrategyID)
	if err != nil {
		q.logger.Error("exitqueue: load strategy", zap.Int64("position_id", p.ID), zap.Error(err))
		return
	}

	mode := models.ModeAuto
	if st.Kind == models.StrategyManual {
		mode = models.ModeManual
	}

	exec, err := q.gate.Reserve(ctx, st, trigger.IdempotencyKey, p.TokenMint, "", models.ActionSell, mode, 0, true)
	if err != nil {
		var classified *raptorerr.Error
		if !isAlreadyExecuted(err, &classified) {
			q.logger.Error("exitqueue: reserve exit execution", zap.Int64("position_id", p.ID), zap.Error(err))
		}
		return
	}

	job := &models.TradeJob{
		StrategyID:     p.StrategyID,
		UserID:         p.UserID,
		Chain:          p.Chain,
		Action:         models.ActionSell,
		OpportunityRef: p.OpportunityRef,
		Priority:       trigger.Priority,
		Payload: models.JSONMap{
			"mint":          p.TokenMint,
			"execution_id":  exec.ID,
			"position_id":   p.ID,
			"trigger":       trigger.Trigger,
			"sell_percent":  trigger.SellPercent,
			"bonding_curve": p.BondingCurve,
		},
		IdempotencyKey: trigger.IdempotencyKey,
		Status:         models.JobPending,
		MaxAttempts:    5,
	}
	if _, err := q.jobs.Enqueue(ctx, job); err != nil {
		q.logger.Error("exitqueue: enqueue sell job", zap.Int64("position_id", p.ID), zap.Error(err))
	}
}

func isAlreadyExecuted(err error, target **raptorerr.Error) bool {
	if e, ok := err.(*raptorerr.Error); ok {
		*target = e
		return e.Code == raptorerr.BudgetExceeded && e.Message == "already executed"
	}
	return false
}
