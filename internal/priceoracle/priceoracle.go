// Package priceoracle fetches token prices from the swap aggregator's price
// API on a fixed poll interval, rate-limited and deduplicated so N positions
// holding the same mint share one HTTP call per tick.
package priceoracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"raptor/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Price is a point-in-time quote for one mint.
type Price struct {
	Mint      string
	USD       float64
	FetchedAt time.Time
}

type cacheEntry struct {
	price   Price
	expires time.Time
}

// Oracle serves GetPrice backed by an aggregator HTTP endpoint, a TTL-bounded
// cache, a token-bucket rate limiter, and in-flight call collapsing so a burst
// of positions on the same mint never fans out into duplicate requests.
type Oracle struct {
	httpClient *http.Client
	baseURL    string
	limiter    *ratelimit.RateLimiter
	logger     *zap.Logger

	cacheTTL time.Duration
	cacheMax int

	mu    sync.Mutex
	cache map[string]cacheEntry
	order []string // insertion order for size-bounded eviction, oldest first

	inflightMu sync.Mutex
	inflight   map[string]*inflightCall
}

type inflightCall struct {
	done chan struct{}
	res  Price
	err  error
}

// Config tunes the oracle. RatePerSecond/Burst size the aggregator request
// budget; CacheTTL/CacheMax bound memory and staleness.
type Config struct {
	BaseURL       string
	RatePerSecond float64
	Burst         float64
	CacheTTL      time.Duration
	CacheMax      int
}

// New builds an Oracle. A zero CacheTTL disables the cache entirely, so every
// call fetches; a zero CacheMax leaves the cache size unbounded.
func New(cfg Config, logger *zap.Logger) *Oracle {
	rate := cfg.RatePerSecond
	if rate <= 0 {
		rate = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = rate
	}
	return &Oracle{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    cfg.BaseURL,
		limiter:    ratelimit.NewRateLimiter(rate, burst),
		logger:     logger,
		cacheTTL:   cfg.CacheTTL,
		cacheMax:   cfg.CacheMax,
		cache:      make(map[string]cacheEntry),
		inflight:   make(map[string]*inflightCall),
	}
}

// GetPrice returns mint's current USD price, serving from cache when fresh
// and collapsing concurrent callers for the same mint into a single fetch.
func (o *Oracle) GetPrice(ctx context.Context, mint string) (Price, error) {
	if p, ok := o.cached(mint); ok {
		return p, nil
	}

	call, leader := o.joinInflight(mint)
	if leader {
		call.res, call.err = o.fetch(ctx, mint)
		o.store(mint, call.res)
		close(call.done)
		o.leaveInflight(mint)
		return call.res, call.err
	}

	select {
	case <-call.done:
		return call.res, call.err
	case <-ctx.Done():
		return Price{}, ctx.Err()
	}
}

// GetPrices fetches a batch of mints, deduplicating repeats within the batch
// the same way GetPrice deduplicates concurrent callers. Used by the position
// monitor's poll tick to price an entire watch-set without one HTTP call per
// position.
func (o *Oracle) GetPrices(ctx context.Context, mints []string) map[string]Price {
	seen := make(map[string]bool, len(mints))
	out := make(map[string]Price, len(mints))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, mint := range mints {
		if seen[mint] {
			continue
		}
		seen[mint] = true
		wg.Add(1)
		go func(mint string) {
			defer wg.Done()
			p, err := o.GetPrice(ctx, mint)
			if err != nil {
				if o.logger != nil {
					o.logger.Warn("price fetch failed", zap.String("mint", mint), zap.Error(err))
				}
				return
			}
			mu.Lock()
			out[mint] = p
			mu.Unlock()
		}(mint)
	}

	wg.Wait()
	return out
}

func (o *Oracle) cached(mint string) (Price, bool) {
	if o.cacheTTL <= 0 {
		return Price{}, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.cache[mint]
	if !ok || time.Now().After(entry.expires) {
		return Price{}, false
	}
	return entry.price, true
}

func (o *Oracle) store(mint string, p Price) {
	if p.Mint == "" || o.cacheTTL <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.cache[mint]; !exists {
		o.order = append(o.order, mint)
	}
	o.cache[mint] = cacheEntry{price: p, expires: time.Now().Add(o.cacheTTL)}

	if o.cacheMax > 0 {
		for len(o.order) > o.cacheMax {
			oldest := o.order[0]
			o.order = o.order[1:]
			delete(o.cache, oldest)
		}
	}
}

func (o *Oracle) joinInflight(mint string) (*inflightCall, bool) {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()

	if call, ok := o.inflight[mint]; ok {
		return call, false
	}
	call := &inflightCall{done: make(chan struct{})}
	o.inflight[mint] = call
	return call, true
}

func (o *Oracle) leaveInflight(mint string) {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()
	delete(o.inflight, mint)
}

type priceResponse struct {
	Data map[string]struct {
		Price float64 `json:"price,string"`
	} `json:"data"`
}

func (o *Oracle) fetch(ctx context.Context, mint string) (Price, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return Price{}, fmt.Errorf("priceoracle: rate limit wait: %w", err)
	}

	url := fmt.Sprintf("%s/price?ids=%s", o.baseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Price{}, fmt.Errorf("priceoracle: build request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Price{}, fmt.Errorf("priceoracle: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Price{}, fmt.Errorf("priceoracle: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Price{}, fmt.Errorf("priceoracle: price API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed priceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Price{}, fmt.Errorf("priceoracle: parse response: %w", err)
	}

	entry, ok := parsed.Data[mint]
	if !ok {
		return Price{}, fmt.Errorf("priceoracle: no price data for mint %s", mint)
	}

	return Price{Mint: mint, USD: entry.Price, FetchedAt: time.Now()}, nil
}
