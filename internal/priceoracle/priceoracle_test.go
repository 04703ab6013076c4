package priceoracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		mint := r.URL.Query().Get("ids")
		fmt.Fprintf(w, `{"data":{%q:{"price":"1.5"}}}`, mint)
	}))
}

func TestGetPriceFetchesAndCaches(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	defer srv.Close()

	o := New(Config{BaseURL: srv.URL, RatePerSecond: 50, Burst: 50, CacheTTL: time.Minute, CacheMax: 10}, nil)

	p, err := o.GetPrice(context.Background(), "MINT1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.USD != 1.5 {
		t.Errorf("expected price 1.5, got %f", p.USD)
	}

	if _, err := o.GetPrice(context.Background(), "MINT1"); err != nil {
		t.Fatalf("unexpected error on cached fetch: %v", err)
	}

	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("expected 1 HTTP call (second served from cache), got %d", got)
	}
}

func TestGetPriceDeduplicatesConcurrentCallers(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	defer srv.Close()

	o := New(Config{BaseURL: srv.URL, RatePerSecond: 50, Burst: 50}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.GetPrice(context.Background(), "MINT1"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("expected exactly 1 HTTP call across 20 concurrent callers, got %d", got)
	}
}

func TestGetPricesDedupesWithinBatch(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	defer srv.Close()

	o := New(Config{BaseURL: srv.URL, RatePerSecond: 50, Burst: 50}, nil)

	mints := []string{"MINT1", "MINT2", "MINT1", "MINT1", "MINT2"}
	out := o.GetPrices(context.Background(), mints)

	if len(out) != 2 {
		t.Errorf("expected 2 distinct mints priced, got %d", len(out))
	}
	if got := atomic.LoadInt64(&hits); got != 2 {
		t.Errorf("expected 2 HTTP calls for 2 distinct mints, got %d", got)
	}
}

func TestCacheEvictsOldestPastMax(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	defer srv.Close()

	o := New(Config{BaseURL: srv.URL, RatePerSecond: 50, Burst: 50, CacheTTL: time.Minute, CacheMax: 2}, nil)

	o.GetPrice(context.Background(), "MINT1")
	o.GetPrice(context.Background(), "MINT2")
	o.GetPrice(context.Background(), "MINT3") // evicts MINT1

	atomic.StoreInt64(&hits, 0)
	o.GetPrice(context.Background(), "MINT1") // must re-fetch, evicted
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("expected MINT1 to have been evicted and re-fetched, got %d hits", got)
	}
}
