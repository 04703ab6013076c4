// Package health is the readiness/liveness/metrics HTTP surface every cmd/
// entrypoint exposes, grounded on the teacher's cmd/server/main.go router
// wiring (gorilla/mux, a plain "/health" 200-OK handler, and a promhttp
// metrics endpoint mounted alongside it).
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// checker is the slice of *store.Store a health surface depends on. Kept
// narrow so components that don't own a store (none currently, but future
// read-only tools might) aren't forced to depend on it.
type checker interface {
	Healthy(ctx context.Context) error
}

// Server is a small HTTP server exposing /healthz, /readyz, and /metrics.
// It never serves application traffic; each cmd/ role runs one alongside its
// main loop purely for the orchestrator's liveness/readiness probes.
type Server struct {
	srv    *http.Server
	store  checker
	logger *zap.Logger
}

// New builds a Server bound to addr (e.g. ":9090"). store may be nil for a
// component that doesn't hold a database handle, in which case /readyz
// always reports ready.
func New(addr string, store checker, logger *zap.Logger) *Server {
	h := &Server{store: store, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.liveness).Methods("GET")
	r.HandleFunc("/readyz", h.readiness).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	h.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return h
}

// Run starts serving until ctx is canceled, then shuts down gracefully.
func (h *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return h.srv.Shutdown(shutdownCtx)
	}
}

func (h *Server) liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// readiness fails (503) when the store can't be reached, so an orchestrator
// stops routing work to a component that can't do its job (spec §5: a
// component with no store connectivity cannot claim jobs or monitor positions).
func (h *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Healthy(ctx); err != nil {
		h.logger.Warn("health: store not ready", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
