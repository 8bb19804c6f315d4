package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/remedy/pkg/observability"
	"github.com/rhuss/remedy/pkg/transport"
)

// Server wraps an http.Server with the repair adapter and the operational
// endpoints (liveness, readiness, metrics), and manages the full lifecycle
// including startup and graceful shutdown.
type Server struct {
	httpServer   *http.Server
	adapter      *Adapter
	config       ServerConfig
	logger       *slog.Logger
	sandboxCheck HealthChecker
	oracleCheck  HealthChecker
	httpMW       []func(http.Handler) http.Handler
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30 * time.Second,
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithReadTimeout bounds how long reading a request may take. Streaming
// responses are unaffected; the timeout covers the inbound side only.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ReadTimeout = d }
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithHealthChecks wires the sandbox runtime and fix oracle into the
// readiness endpoint. The repair store is probed automatically when one
// is configured.
func WithHealthChecks(sandbox, oracle HealthChecker) ServerOption {
	return func(s *Server) {
		s.sandboxCheck = sandbox
		s.oracleCheck = oracle
	}
}

// WithHTTPMiddleware wraps the whole endpoint surface, operational
// endpoints included, with plain HTTP middleware. Used for concerns
// like authentication that must see every request before routing.
// The first middleware given becomes the outermost.
func WithHTTPMiddleware(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.httpMW = append(s.httpMW, mw...) }
}

// NewServer creates a new transport server with the given creator and options.
// The RepairStore is optional (pass nil for stateless-only deployments).
// Default middleware (recovery, request ID, logging) is applied automatically,
// and every request is counted by the HTTP metrics middleware.
func NewServer(creator transport.RepairCreator, store transport.RepairStore, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	adapterCfg := Config{
		Addr:            s.config.Addr,
		MaxBodySize:     s.config.MaxBodySize,
		ShutdownTimeout: int(s.config.ShutdownTimeout.Seconds()),
	}

	defaultMW := []transport.Middleware{
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	}

	s.adapter = NewAdapter(creator, store, adapterCfg, defaultMW...)

	var storageCheck HealthChecker
	if store != nil {
		storageCheck = store
	}

	mux := http.NewServeMux()
	mux.Handle("/", s.adapter.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.Handle("GET /readyz", NewReadyzHandler(s.sandboxCheck, s.oracleCheck, storageCheck))
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	for i := len(s.httpMW) - 1; i >= 0; i-- {
		handler = s.httpMW[i](handler)
	}

	s.httpServer = &http.Server{
		Addr:        s.config.Addr,
		Handler:     observability.MetricsMiddleware(handler),
		ReadTimeout: s.config.ReadTimeout,
	}

	return s
}

// Handler returns the complete endpoint surface as configured, the
// adapter routes plus the operational endpoints with all middleware
// applied. Used to serve through an external listener or httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the server and blocks until a shutdown signal
// (SIGINT or SIGTERM) is received. It then gracefully shuts down,
// waiting for in-flight requests to complete within the configured timeout.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return s.listenAndServeWithContext(ctx)
}

func (s *Server) listenAndServeWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server starting", slog.String("addr", s.config.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

// ServeOn starts the server on the given listener. Used for testing.
func (s *Server) ServeOn(ln net.Listener) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
