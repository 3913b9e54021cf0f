// Package health serves the liveness endpoint, a JSON status view and
// Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/pipeline"
)

const livenessBody = "Bot is running!"

type Server struct {
	server  *http.Server
	mode    string
	started time.Time

	mu   sync.RWMutex
	last *pipeline.Outcome
}

func NewServer(addr, mode string) *Server {
	s := &Server{mode: mode, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger.InfoCF("health", "Liveness server listening", map[string]any{
		"addr": ln.Addr().String(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.WarnCF("health", "Liveness server shutdown failed", map[string]any{
				"error": err.Error(),
			})
			return err
		}
		logger.InfoC("health", "Liveness server stopped")
		return nil
	}
}

// Report records the most recent cycle outcome for /healthz.
func (s *Server) Report(_ context.Context, o pipeline.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &o
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(livenessBody))
}

type outcomeView struct {
	RequestID string    `json:"request_id,omitempty"`
	Status    string    `json:"status"`
	Kind      string    `json:"kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Checks    int       `json:"checks,omitempty"`
	MediaRef  string    `json:"media,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

type statusView struct {
	Status    string       `json:"status"`
	Mode      string       `json:"mode"`
	Uptime    string       `json:"uptime"`
	LastCycle *outcomeView `json:"last_cycle,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	view := statusView{
		Status: "ok",
		Mode:   s.mode,
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}

	s.mu.RLock()
	if s.last != nil {
		o := s.last
		view.LastCycle = &outcomeView{
			RequestID: o.RequestID,
			Status:    string(o.Status),
			Checks:    o.Checks,
			MediaRef:  o.MediaRef,
			StartedAt: o.StartedAt,
			Duration:  o.Duration.String(),
		}
		if o.Err != nil {
			view.LastCycle.Kind = o.Kind().String()
			view.LastCycle.Error = o.Err.Error()
		}
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		logger.WarnCF("health", "Failed to write status", map[string]any{"error": err.Error()})
	}
}
