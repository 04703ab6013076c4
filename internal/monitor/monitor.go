// Package monitor implements the Position Monitor (spec §4.7): a hybrid
// poll + WebSocket-hint price loop that evaluates TP/SL/trailing/max-hold
// triggers on every open position and atomically claims the exit for
// whichever trigger fires first.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"raptor/internal/chain"
	"raptor/internal/models"
	"raptor/internal/priceoracle"
	"raptor/internal/store"
	"raptor/pkg/idempotency"
)

// positionStore is the slice of *store.Store the monitor depends on.
type positionStore interface {
	ListMonitoredPositions(ctx context.Context, chain string) ([]*models.Position, error)
	UpdatePositionPrice(ctx context.Context, id int64, price float64, trailingStop *float64) error
	TriggerExitAtomically(ctx context.Context, positionID int64, trigger string, triggerPrice float64) error
	GetStrategy(ctx context.Context, id int64) (*models.Strategy, error)
}

// priceGetter is the slice of *priceoracle.Oracle the monitor depends on.
type priceGetter interface {
	GetPrices(ctx context.Context, mints []string) map[string]priceoracle.Price
}

// subscriber is the slice of *chain.SubscriptionManager the monitor depends on.
type subscriber interface {
	Subscribe(mint, account string) error
	Unsubscribe(mint string) error
	Hints() <-chan chain.ActivityHint
}

// exitEnqueuer is the narrow view of the Exit Queue the monitor feeds.
type exitEnqueuer interface {
	EnqueueExit(ctx context.Context, job ExitTrigger) error
	// Saturated reports whether the Exit Queue is over its high-water mark
	// (spec §4.8): while true the monitor must not claim new triggers.
	Saturated() bool
}

// ExitTrigger is everything the Exit Queue needs to drive a sell from a won
// trigger claim, without it having to re-derive anything from the position.
type ExitTrigger struct {
	Position       *models.Position
	Trigger        string
	TriggerPrice   float64
	SellPercent    int
	Priority       int
	IdempotencyKey string
}

// Config tunes the monitor's poll cadence and watch-set refresh rate.
type Config struct {
	Chain            string
	PollInterval     time.Duration
	RefreshEveryN    int // refresh the watch-set every N poll cycles
}

// watched is per-process state the monitor tracks about one open position,
// separate from the store row so trailing-stop arithmetic and the mint
// reference count don't need a round trip for every tick.
type watched struct {
	position *models.Position
	strategy *models.Strategy
}

// Monitor owns the in-process watch-set, the price cache (via priceoracle),
// and the subscription manager's reference counts. Multiple Monitor workers
// may run concurrently against the same chain; TriggerExitAtomically is the
// only cross-worker synchronization point.
type Monitor struct {
	store  positionStore
	oracle priceGetter
	subs   subscriber
	exits  exitEnqueuer
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	watchSet map[int64]*watched // position id -> watched
	mintRefs map[string]int     // mint -> count of watched positions on it, local mirror of subs' ref count
}

// New builds a Monitor bound to one chain. subs may be nil to run poll-only
// (no activity-hint fast path); passing a typed nil *chain.SubscriptionManager
// here rather than storing it directly avoids the classic Go pitfall where a
// nil concrete pointer boxed into a non-nil interface would make every
// m.subs != nil check downstream pass anyway.
func New(st *store.Store, oracle *priceoracle.Oracle, subs *chain.SubscriptionManager, exits exitEnqueuer, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.RefreshEveryN <= 0 {
		cfg.RefreshEveryN = 10
	}
	m := &Monitor{
		store:    st,
		oracle:   oracle,
		exits:    exits,
		cfg:      cfg,
		logger:   logger,
		watchSet: make(map[int64]*watched),
		mintRefs: make(map[string]int),
	}
	if subs != nil {
		m.subs = subs
	}
	return m
}

// Run drives the poll loop and the activity-hint listener concurrently until
// ctx is canceled. Both feed the same reevaluation path so a position is
// priced either on its fixed cadence or immediately on chain log activity,
// whichever comes first.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.refreshWatchSet(ctx); err != nil {
		m.logger.Error("monitor: initial watch-set refresh failed", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.pollLoop(ctx)
	}()

	if m.subs != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.hintLoop(ctx)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

func (m *Monitor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	cycles := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycles++
			if cycles%m.cfg.RefreshEveryN == 0 {
				if err := m.refreshWatchSet(ctx); err != nil {
					m.logger.Error("monitor: watch-set refresh failed", zap.Error(err))
				}
			}
			m.evaluateAll(ctx, m.watchedMints())
		}
	}
}

func (m *Monitor) hintLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case hint, ok := <-m.subs.Hints():
			if !ok {
				return
			}
			m.evaluateAll(ctx, []string{hint.Mint})
		}
	}
}

// refreshWatchSet reloads every MONITORING position on this chain (spec §4.7:
// "the monitor refreshes its set of watched positions periodically ... to
// pick up newly opened positions and release closed ones"), adding and
// removing token-scoped subscriptions by reference count as positions enter
// and leave the set.
func (m *Monitor) refreshWatchSet(ctx context.Context) error {
	positions, err := m.store.ListMonitoredPositions(ctx, m.cfg.Chain)
	if err != nil {
		return err
	}

	fresh := make(map[int64]*models.Position, len(positions))
	for _, p := range positions {
		fresh[p.ID] = p
	}

	m.mu.Lock()
	var toAdd, toRemove []*models.Position
	for id, p := range fresh {
		if _, ok := m.watchSet[id]; !ok {
			toAdd = append(toAdd, p)
		}
	}
	for id, w := range m.watchSet {
		if _, ok := fresh[id]; !ok {
			toRemove = append(toRemove, w.position)
		}
	}
	m.mu.Unlock()

	for _, p := range toAdd {
		st, err := m.store.GetStrategy(ctx, p.StrategyID)
		if err != nil {
			m.logger.Error("monitor: load strategy for position", zap.Int64("position_id", p.ID), zap.Error(err))
			continue
		}
		m.addToWatchSet(p, st)
	}
	for _, p := range toRemove {
		m.removeFromWatchSet(p.ID, p.TokenMint)
	}
	return nil
}

func (m *Monitor) addToWatchSet(p *models.Position, st *models.Strategy) {
	m.mu.Lock()
	m.watchSet[p.ID] = &watched{position: p, strategy: st}
	m.mintRefs[p.TokenMint]++
	firstRef := m.mintRefs[p.TokenMint] == 1
	m.mu.Unlock()

	if firstRef && m.subs != nil {
		account := p.BondingCurve
		if account == "" {
			account = p.TokenMint
		}
		if err := m.subs.Subscribe(p.TokenMint, account); err != nil {
			m.logger.Warn("monitor: subscribe failed", zap.String("mint", p.TokenMint), zap.Error(err))
		}
	}
}

func (m *Monitor) removeFromWatchSet(positionID int64, mint string) {
	m.mu.Lock()
	delete(m.watchSet, positionID)
	m.mintRefs[mint]--
	lastRef := m.mintRefs[mint] <= 0
	if lastRef {
		delete(m.mintRefs, mint)
	}
	m.mu.Unlock()

	if lastRef && m.subs != nil {
		if err := m.subs.Unsubscribe(mint); err != nil {
			m.logger.Warn("monitor: unsubscribe failed", zap.String("mint", mint), zap.Error(err))
		}
	}
}

func (m *Monitor) watchedMints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	mints := make([]string, 0, len(m.mintRefs))
	for mint := range m.mintRefs {
		mints = append(mints, mint)
	}
	return mints
}

func (m *Monitor) positionsForMint(mint string) []*watched {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*watched
	for _, w := range m.watchSet {
		if w.position.TokenMint == mint {
			out = append(out, w)
		}
	}
	return out
}

// evaluateAll fetches a fresh price for every mint in mints (deduplicated and
// batched by the oracle) and reevaluates every position holding it.
func (m *Monitor) evaluateAll(ctx context.Context, mints []string) {
	if len(mints) == 0 {
		return
	}
	prices := m.oracle.GetPrices(ctx, mints)
	for mint, price := range prices {
		for _, w := range m.positionsForMint(mint) {
			m.evaluate(ctx, w, price.USD)
		}
	}
}

// evaluate runs the full per-position reevaluation: peak update, trigger
// detection in TP/SL/TRAIL/MAXHOLD order, and the atomic exit claim (spec
// §4.7 steps 1-3).
func (m *Monitor) evaluate(ctx context.Context, w *watched, price float64) {
	p := w.position

	if price > p.PeakPrice {
		p.PeakPrice = price
	}

	var trailingStop *float64
	if w.strategy.TrailingEnabled && p.TrailActivationPrice != nil && p.PeakPrice >= *p.TrailActivationPrice {
		stop := p.PeakPrice * (1 - w.strategy.TrailDistancePct/100)
		trailingStop = &stop
	}
	if err := m.store.UpdatePositionPrice(ctx, p.ID, price, trailingStop); err != nil {
		m.logger.Error("monitor: update price", zap.Int64("position_id", p.ID), zap.Error(err))
		return
	}
	p.CurrentPrice = price

	trigger := EvaluateTrigger(p, w.strategy, price, time.Now())
	if trigger == "" {
		return
	}

	if m.exits.Saturated() {
		// Backpressure (spec §4.8): skip claiming this trigger: the next
		// price tick (poll or hint) will re-evaluate and re-attempt once the
		// Exit Queue has drained below its low-water mark.
		return
	}

	if err := m.store.TriggerExitAtomically(ctx, p.ID, trigger, price); err != nil {
		if err == store.ErrTriggerConflict {
			// Another worker's evaluation of the same tick already won the
			// claim; this is expected contention (spec §4.7 step 3), drop silently.
			return
		}
		m.logger.Error("monitor: trigger exit", zap.Int64("position_id", p.ID), zap.Error(err))
		return
	}

	sellPercent := 100
	if trigger == models.TriggerKindTP && w.strategy.MoonBagPercent > 0 {
		sellPercent = 100 - int(w.strategy.MoonBagPercent)
	}

	job := ExitTrigger{
		Position:       p,
		Trigger:        trigger,
		TriggerPrice:   price,
		SellPercent:    sellPercent,
		Priority:       priorityFor(trigger),
		IdempotencyKey: idempotency.ExitKey(p.Chain, p.TokenMint, p.ID, trigger, sellPercent),
	}
	if err := m.exits.EnqueueExit(ctx, job); err != nil {
		m.logger.Error("monitor: enqueue exit", zap.Int64("position_id", p.ID), zap.Error(err))
		return
	}

	m.removeFromWatchSet(p.ID, p.TokenMint)
}

// priorityFor orders exit urgency SL > TP > TRAIL > MAXHOLD, lower number
// meaning higher priority, matching the Exit Queue's priority convention.
func priorityFor(trigger string) int {
	switch trigger {
	case models.TriggerKindEmergency:
		return 0
	case models.TriggerKindSL:
		return 1
	case models.TriggerKindTP:
		return 2
	case models.TriggerKindTrail:
		return 3
	case models.TriggerKindMaxHold:
		return 4
	default:
		return 5
	}
}
