// Package health provides HTTP health check endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fd1az/chainprobe/internal/logger"
)

// Status represents the health check response.
type Status struct {
	Status    string           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Version   string           `json:"version,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Check represents an individual health check.
type Check struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

const checkTimeout = 2 * time.Second

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) (bool, string)

// Registry accepts named checks. Modules register against it at startup.
type Registry interface {
	RegisterCheck(name string, check CheckFunc)
}

// Server provides health check HTTP endpoints.
type Server struct {
	port    int
	version string
	log     logger.LoggerInterface
	checks  map[string]CheckFunc
	mu      sync.RWMutex
	server  *http.Server
}

// NewServer creates a new health check server.
func NewServer(port int, version string, log logger.LoggerInterface) *Server {
	return &Server{
		port:    port,
		version: version,
		log:     log,
		checks:  make(map[string]CheckFunc),
	}
}

// RegisterCheck registers a health check function.
func (s *Server) RegisterCheck(name string, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// Handler returns the HTTP handler serving /health, /ready and /live.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	return mux
}

// Start binds the port and serves in the background. Bind errors are
// returned; serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("health listen: %w", err)
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(context.Background(), "health server stopped", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the health check server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Evaluate runs every registered check concurrently, each bounded by
// checkTimeout, and reports whether all passed. A check that overruns is
// reported unhealthy.
func (s *Server) Evaluate(ctx context.Context) (map[string]Check, bool) {
	s.mu.RLock()
	checks := make(map[string]CheckFunc, len(s.checks))
	maps.Copy(checks, s.checks)
	s.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]Check, len(checks))
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, check := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, checkTimeout)
			defer cancel()

			done := make(chan Check, 1)
			go func() {
				healthy, msg := check(cctx)
				done <- Check{Healthy: healthy, Message: msg}
			}()

			var c Check
			select {
			case c = <-done:
			case <-cctx.Done():
				c = Check{Message: "check timed out"}
			}

			mu.Lock()
			results[name] = c
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	allHealthy := true
	for _, c := range results {
		allHealthy = allHealthy && c.Healthy
	}
	return results, allHealthy
}

// handleHealth returns full health status with all checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, allHealthy := s.Evaluate(ctx)

	status := Status{
		Status:    "ok",
		Checks:    checks,
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if !allHealthy {
		status.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}

// handleReady returns whether every subsystem is up.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := s.Evaluate(ctx); !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// handleLive returns whether the service is alive (simple liveness probe).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("alive"))
}
