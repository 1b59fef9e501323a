// Package server runs the mathres HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saitejavellanki/mathres/internal/api"
	"github.com/saitejavellanki/mathres/internal/config"
	"github.com/saitejavellanki/mathres/internal/home"
	"github.com/saitejavellanki/mathres/internal/server/endpoints"
	"github.com/saitejavellanki/mathres/internal/svcctx"
)

// Server is the main mathres HTTP server. It owns the services built from
// configuration and rebuilds them when the config file changes.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services atomic.Pointer[svcctx.Services]

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	ready     chan struct{}
	readyOnce sync.Once
	addr      atomic.Value // string

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the mathres home directory (default SQLite location)
	Home *home.Dir
	// Services, when set, are used as-is instead of being built on Start
	Services *svcctx.Services
	// Host and Port override server.host and server.port when set
	Host string
	Port string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil && cfg.Services == nil {
		return nil, errors.New("server: config manager or services required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
		ready:     make(chan struct{}),
	}
	if cfg.Services != nil {
		s.services.Store(cfg.Services)
	}

	var serverCfg config.ServerCfg
	if cfg.ConfigManager != nil {
		serverCfg = cfg.ConfigManager.Get().Server
	} else {
		serverCfg = cfg.Services.Config.Server
	}
	if cfg.Host != "" {
		serverCfg.Host = cfg.Host
	}
	if cfg.Port != "" {
		serverCfg.Port = cfg.Port
	}

	s.endpointRegistry = api.NewRegistry(endpoints.All()...)

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, endpoints.Prefix, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(serverCfg.Host, serverCfg.Port),
		Handler:      withCORS(serverCfg.CORSOrigins, s.withServices(mux)),
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Endpoints returns the endpoint registry.
func (s *Server) Endpoints() *api.Registry {
	return s.endpointRegistry
}

// Services returns the active services, or nil before Start.
func (s *Server) Services() *svcctx.Services {
	return s.services.Load()
}

// Start builds services, listens, and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()
	defer s.setNotRunning()

	if s.services.Load() == nil {
		svc, err := svcctx.Build(ctx, s.configMgr.Get(), s.home, s.logger)
		if err != nil {
			return fmt.Errorf("failed to build services: %w", err)
		}
		s.services.Store(svc)
	}
	defer func() {
		if err := s.services.Load().Close(); err != nil {
			s.logger.Error("closing services", "error", err)
		}
	}()

	if s.configMgr != nil {
		s.configMgr.OnChange(func(c *config.Config) {
			s.services.Store(s.services.Load().Reload(ctx, c))
			s.logger.Info("services reloaded from config")
		})
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.addr.Store(ln.Addr().String())
	s.readyOnce.Do(func() { close(s.ready) })

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String(), "prefix", endpoints.Prefix)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown drains in-flight requests.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address once ready, else the configured one.
func (s *Server) Addr() string {
	if a, ok := s.addr.Load().(string); ok {
		return a
	}
	return s.httpServer.Addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc := s.services.Load(); svc != nil {
			ctx = svcctx.WithServices(ctx, svc)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the pipeline runner is available.
// Returns 503 Service Unavailable otherwise.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcctx.RunnerFrom(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"server not fully initialized: no usable LLM provider"}` + "\n"))
			return
		}
		next(w, r)
	}
}
