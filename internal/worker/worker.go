// Package worker consumes restructure jobs from the queue and runs the
// pipeline for each one.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saitejavellanki/mathres/internal/pipeline"
	"github.com/saitejavellanki/mathres/internal/queue"
)

// JobSource is the consumer side of the queue. *queue.Queue implements it.
type JobSource interface {
	Pop(ctx context.Context, timeout time.Duration) (queue.Job, error)
}

// Runner executes one pipeline run. *pipeline.Runner implements it.
type Runner interface {
	Run(ctx context.Context, subjectID, scriptID string) (*pipeline.Outcome, error)
}

// Config configures a Pool.
type Config struct {
	Source      JobSource
	Runner      Runner
	Concurrency int           // Default 1
	PopTimeout  time.Duration // Default 5s
	// ErrorBackoff is the pause after a queue error. Default 1s.
	ErrorBackoff time.Duration
	Logger       *slog.Logger
}

// Stats counts processed jobs.
type Stats struct {
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Pool runs Concurrency workers that pull jobs until the context ends.
type Pool struct {
	cfg       Config
	logger    *slog.Logger
	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a worker pool.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Source == nil || cfg.Runner == nil {
		return nil, errors.New("worker: source and runner are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 5 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{cfg: cfg, logger: logger}, nil
}

// Run blocks until ctx is cancelled. A failed pipeline run is logged and
// counted; it does not stop the pool.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool started", "concurrency", p.cfg.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.cfg.Concurrency {
		logger := p.logger.With("worker", i)
		g.Go(func() error { return p.loop(gctx, logger) })
	}
	err := g.Wait()

	stats := p.Stats()
	p.logger.Info("worker pool stopped", "succeeded", stats.Succeeded, "failed", stats.Failed)
	return err
}

// Stats returns the job counters.
func (p *Pool) Stats() Stats {
	return Stats{Succeeded: p.succeeded.Load(), Failed: p.failed.Load()}
}

func (p *Pool) loop(ctx context.Context, logger *slog.Logger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		job, err := p.cfg.Source.Pop(ctx, p.cfg.PopTimeout)
		switch {
		case errors.Is(err, queue.ErrEmpty):
			continue
		case ctx.Err() != nil:
			return nil
		case err != nil:
			logger.Error("queue pop failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.cfg.ErrorBackoff):
			}
			continue
		}

		p.process(ctx, job, logger)
	}
}

func (p *Pool) process(ctx context.Context, job queue.Job, logger *slog.Logger) {
	logger = logger.With("job_id", job.JobID, "subject_id", job.SubjectID, "script_id", job.ScriptID)
	logger.Info("job started", "queued_for", time.Since(job.EnqueuedAt).Round(time.Millisecond))

	out, err := p.cfg.Runner.Run(ctx, job.SubjectID, job.ScriptID)
	if err != nil {
		p.failed.Add(1)
		logger.Error("job failed", "error", fmt.Sprint(err))
		return
	}
	p.succeeded.Add(1)
	logger.Info("job finished", "run_id", out.RunID, "message", out.Message)
}
