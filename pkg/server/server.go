package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/security/auth"
	"mercator-hq/arbiter/pkg/server/middleware"
	"mercator-hq/arbiter/pkg/telemetry/health"
)

// readinessTimeout bounds each readiness check.
const readinessTimeout = 2 * time.Second

// Server is the HTTP API server.
type Server struct {
	config  *config.ServerConfig
	deps    Deps
	logger  *slog.Logger
	health  *health.Checker
	auth    *auth.APIKeyValidator
	handler http.Handler

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// Deps are the components the API serves. Decider and Audit are required.
type Deps struct {
	Decider Decider
	Audit   AuditReader

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler

	// MetricsPath defaults to config.DefaultMetricsPath.
	MetricsPath string

	// Recorder receives per-route request metrics when non-nil.
	Recorder middleware.Recorder

	// Tracer opens a span per request when non-nil.
	Tracer trace.Tracer

	// Checks are added to the built-in readiness checks (audit_store,
	// policies).
	Checks map[string]health.CheckFunc

	// TLSConfig switches the listener to HTTPS when non-nil.
	TLSConfig *tls.Config

	Logger *slog.Logger
}

// New creates a server. It does not listen until Start.
func New(cfg *config.ServerConfig, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if deps.Decider == nil || deps.Audit == nil {
		return nil, errors.New("server requires a decider and an audit reader")
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = config.DefaultMetricsPath
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
		health: health.New(readinessTimeout),
	}
	if cfg.Auth.Enabled {
		v, err := auth.NewAPIKeyValidator(cfg.Auth.Keys)
		if err != nil {
			return nil, fmt.Errorf("invalid auth config: %w", err)
		}
		s.auth = v
	}
	s.registerChecks()
	s.handler = s.setupRoutes()
	return s, nil
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.addr = ln.Addr()
	if s.deps.TLSConfig != nil {
		ln = tls.NewListener(ln, s.deps.TLSConfig)
	}
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	srv := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting api server", "address", ln.Addr().String(), "tls", s.deps.TLSConfig != nil)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully shuts down the server, waiting at most
// ShutdownTimeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		srv := s.httpServer
		running := s.isRunning
		s.mu.Unlock()
		if !running || srv == nil {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())
		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		s.logger.Info("api server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the listening address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, middleware.Trace(s.deps.Tracer, pattern,
			middleware.Instrument(s.deps.Recorder, pattern, h)))
	}
	protect := func(h http.HandlerFunc) http.Handler {
		if s.auth == nil {
			return h
		}
		return auth.Middleware(s.auth, denyUnauthorized, s.logger)(h)
	}

	handle("POST /v1/decisions", protect(s.handleDecide))
	handle("GET /v1/audit", protect(s.handleAuditList))
	handle("GET /v1/audit/verify", protect(s.handleAuditVerify))
	handle("GET /v1/policies", protect(s.handlePolicies))
	handle("GET /health", http.HandlerFunc(s.handleHealth))
	handle("GET /ready", s.health.ReadinessHandler())
	if s.deps.Metrics != nil {
		mux.Handle("GET "+s.deps.MetricsPath, s.deps.Metrics)
	}

	return middleware.Chain(mux,
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.MaxBytes(s.config.MaxBodyBytes),
	)
}

func (s *Server) registerChecks() {
	s.health.RegisterCheck("audit_store", func(ctx context.Context) error {
		_, err := s.deps.Audit.Count(ctx)
		return err
	})
	s.health.RegisterCheck("policies", func(context.Context) error {
		if len(s.deps.Decider.Policies()) == 0 {
			return errors.New("no policies registered")
		}
		return nil
	})
	for name, check := range s.deps.Checks {
		s.health.RegisterCheck(name, check)
	}
}
