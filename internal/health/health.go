// Package health serves the worker's operational endpoints: liveness,
// readiness and Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/untoldecay/shelfbot/internal/metrics"
)

// Pinger is anything whose connectivity gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

const checkTimeout = 2 * time.Second

// Server exposes /healthz, /readyz and /metrics.
type Server struct {
	httpServer *http.Server
	checks     map[string]Pinger
	log        zerolog.Logger
}

// NewServer builds the server. checks maps component names (db, queue) to
// their pingers.
func NewServer(addr string, checks map[string]Pinger, log zerolog.Logger) *Server {
	s := &Server{
		checks: checks,
		log:    log.With().Str("component", "health").Logger(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleLiveness)
	mux.HandleFunc("/readyz", s.handleReadiness)
	mux.Handle("/metrics", metrics.Handler())
	s.httpServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	components := make(map[string]string, len(s.checks))
	status := http.StatusOK
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}
	writeJSON(w, status, map[string]any{
		"ok":         status == http.StatusOK,
		"components": components,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("health server shutdown failed")
		}
		return ctx.Err()
	}
}
