package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/saitejavellanki/mathres/internal/svcctx"
	"github.com/saitejavellanki/mathres/internal/worker"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume restructure jobs from the Redis queue",
	Long: `Pull jobs pushed by POST /mathres/restructure/{subject_id}/{script_id}/enqueue
and run the pipeline for each one.

Requires queue.redis_url. Concurrency defaults to defaults.max_workers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, h, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := mgr.Get()
		if cfg.Queue.RedisURL == "" {
			return errors.New("queue.redis_url is not configured")
		}
		logger := newLogger(os.Stdout, cfg)

		svcs, err := svcctx.Build(cmd.Context(), cfg, h, logger)
		if err != nil {
			return err
		}
		defer svcs.Close()

		runner, err := svcs.RequireRunner()
		if err != nil {
			return err
		}
		source, ok := svcs.Queue.(worker.JobSource)
		if !ok {
			return errors.New("configured queue cannot be consumed")
		}

		concurrency := cfg.Defaults.MaxWorkers
		if workerConcurrency > 0 {
			concurrency = workerConcurrency
		}
		pool, err := worker.NewPool(worker.Config{
			Source:      source,
			Runner:      runner,
			Concurrency: concurrency,
			PopTimeout:  cfg.Queue.PopTimeout,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		logger.Info("worker started", "queue", svcs.Queue.Key(), "concurrency", concurrency)
		err = pool.Run(cmd.Context())
		stats := pool.Stats()
		logger.Info("worker stopped", "succeeded", stats.Succeeded, "failed", stats.Failed)
		return err
	},
}

func init() {
	workerCmd.Flags().IntVarP(&workerConcurrency, "concurrency", "c", 0, "Number of concurrent jobs (default: defaults.max_workers)")
	rootCmd.AddCommand(workerCmd)
}
