package svcctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saitejavellanki/mathres/internal/backend"
	"github.com/saitejavellanki/mathres/internal/config"
	"github.com/saitejavellanki/mathres/internal/extract"
	"github.com/saitejavellanki/mathres/internal/home"
	"github.com/saitejavellanki/mathres/internal/llmcall"
	"github.com/saitejavellanki/mathres/internal/pipeline"
	"github.com/saitejavellanki/mathres/internal/prompts"
	"github.com/saitejavellanki/mathres/internal/providers"
	"github.com/saitejavellanki/mathres/internal/queue"
	"github.com/saitejavellanki/mathres/internal/store"
)

// ErrNoRunner is returned when no configured LLM provider is usable.
var ErrNoRunner = errors.New("pipeline unavailable: no usable LLM provider")

// Build constructs every service described by cfg. The store and queue are
// opened here and released by Close.
func Build(ctx context.Context, cfg *config.Config, h *home.Dir, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := providers.NewRegistryFromConfig(ctx, cfg.ToProviderRegistryConfig())
	registry.SetLogger(logger)

	s := &Services{
		Config:   cfg,
		Registry: registry,
		Home:     h,
		Logger:   logger,
	}

	if cfg.Store.Driver != "none" && cfg.Store.Driver != "" {
		st, err := OpenStore(ctx, cfg.Store, h)
		if err != nil {
			return nil, err
		}
		s.Store = st
		s.Recorder = llmcall.NewRecorder(st, logger)
		logger.Info("local store ready", "driver", cfg.Store.Driver)
	}

	if cfg.Queue.RedisURL != "" {
		q, err := queue.New(cfg.Queue.RedisURL, cfg.Queue.Key)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Queue = q
		logger.Info("job queue configured", "key", q.Key())
	}

	s.wire(ctx, cfg)
	return s, nil
}

// Reload returns a copy of s rebuilt for cfg. The registry is reloaded in
// place; the store and queue are kept since they hold open connections.
func (s *Services) Reload(ctx context.Context, cfg *config.Config) *Services {
	s.Registry.Reload(ctx, cfg.ToProviderRegistryConfig())
	next := &Services{
		Config:   cfg,
		Registry: s.Registry,
		Store:    s.Store,
		Queue:    s.Queue,
		Recorder: s.Recorder,
		Home:     s.Home,
		Logger:   s.Logger,
	}
	next.wire(ctx, cfg)
	return next
}

// wire builds the config-derived pieces: backend client, extractor, runner.
func (s *Services) wire(ctx context.Context, cfg *config.Config) {
	s.Backend = backend.New(backend.Config{
		BaseURL:    cfg.Backend.BaseURL,
		Timeout:    cfg.Backend.Timeout,
		MaxRetries: cfg.Backend.MaxRetries,
		RetryDelay: cfg.Backend.RetryDelay,
		Logger:     s.Logger,
	})
	s.Extractor = &extract.Extractor{
		Repair:   cfg.Extract.Repair,
		Validate: cfg.Extract.Validate,
		Logger:   s.Logger,
	}

	runner, err := s.buildRunner(cfg)
	if err != nil {
		s.Logger.Warn("pipeline runner not available", "error", err)
		return
	}
	s.Runner = runner
}

func (s *Services) buildRunner(cfg *config.Config) (*pipeline.Runner, error) {
	restructureLLM, err := s.Registry.GetLLM(cfg.RestructureProviderName())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoRunner, err)
	}
	markingLLM, err := s.Registry.GetLLM(cfg.MarkingProviderName())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoRunner, err)
	}

	var overrides prompts.OverrideSource
	if src, ok := s.Store.(prompts.OverrideSource); ok {
		overrides = src
	}

	return pipeline.NewRunner(pipeline.Config{
		Source:            s.Backend,
		Remote:            s.Backend,
		Store:             s.Store,
		Target:            cfg.Persist.Target,
		RestructureClient: restructureLLM,
		MarkingClient:     markingLLM,
		Prompts:           prompts.NewResolver(overrides, s.Logger),
		Extractor:         s.Extractor,
		Recorder:          s.Recorder,
		Logger:            s.Logger,
	})
}

// RequireRunner returns the runner or ErrNoRunner.
func (s *Services) RequireRunner() (*pipeline.Runner, error) {
	if s.Runner == nil {
		return nil, ErrNoRunner
	}
	return s.Runner, nil
}

// Close flushes recorded LLM calls and releases the store and queue
// connections.
func (s *Services) Close() error {
	s.Recorder.Close()
	var errs []error
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if c, ok := s.Queue.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenStore opens the configured SQL store. An empty sqlite DSN uses the
// database file under the home directory.
func OpenStore(ctx context.Context, cfg config.StoreCfg, h *home.Dir) (*store.SQLStore, error) {
	dsn := cfg.DSN
	if dsn == "" && cfg.Driver == store.DriverSQLite && h != nil {
		if err := h.EnsureExists(); err != nil {
			return nil, err
		}
		dsn = h.DatabasePath()
	}
	st, err := store.Open(ctx, cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return st, nil
}
