package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"research-assistant/internal/infra/worker"
)

func newWorkerCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Immediate() {
				return errors.New("worker needs queue.mode=deferred and a redis.url")
			}
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return runWorkers(cmd.Context(), a)
		},
	}
}

// runWorkers blocks until ctx is done, then waits for in-flight jobs.
func runWorkers(ctx context.Context, a *app) error {
	pool := worker.NewPool(a.cfg.Queue.Workers, a.log)
	pool.Start(ctx)
	defer pool.Stop()

	proc := worker.NewJobProcessor(a.queue, a.jobs, a.locker, worker.ProcessorOptions{
		DequeueWait:    a.cfg.Queue.DequeueWait,
		DefaultTimeout: a.cfg.Queue.JobTimeout,
		LockTTLSlack:   a.cfg.Queue.LockTTLSlack,
	}, a.log)
	if err := proc.Start(ctx, pool); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info().Msg("worker stopping")
	return nil
}
