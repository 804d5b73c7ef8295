// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

// Package observability exposes ledger metrics and health probes over HTTP.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the ledger is ready to serve operations.
type ReadinessChecker func() bool

// StatusReporter returns the number of players per authority state.
type StatusReporter func(ctx context.Context) (map[string]int, error)

// Option configures a Server.
type Option func(*Server)

// WithStatus serves r at /status.
func WithStatus(r StatusReporter) Option {
	return func(s *Server) { s.status = r }
}

// Server serves /metrics, /healthz/liveness, /healthz/readiness, and
// optionally /status.
type Server struct {
	addr     string
	ready    ReadinessChecker
	status   StatusReporter
	registry *prometheus.Registry

	running atomic.Bool
	ln      net.Listener
	srv     *http.Server
}

// NewServer creates a server that will listen on addr ("host:port"; port 0
// picks a free port). Metrics go to a private registry.
func NewServer(addr string, ready ReadinessChecker, opts ...Option) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	RegisterMetrics(reg)

	s := &Server{addr: addr, ready: ready, registry: reg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry backing /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns the HTTP routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)
	if s.status != nil {
		mux.HandleFunc("/status", s.handleStatus)
	}
	return mux
}

// Start listens and serves in the background. Serve failures are sent on the
// returned channel, which is closed once the server has stopped.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_RUNNING").Errorf("observability server already running")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.ln, s.srv = ln, srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server failed", "addr", ln.Addr().String(), "error", err)
			errCh <- err
		}
	}()
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("OBSERVABILITY_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		writeProbe(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeProbe(w, http.StatusOK, "ok")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.status(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		slog.WarnContext(r.Context(), "status report failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "status unavailable"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"players": counts})
}

func writeProbe(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body + "\n"))
}
