package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"research-assistant/internal/infra/api"
	"research-assistant/internal/infra/metrics"
	"research-assistant/internal/infra/scheduler"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the job API. In deferred mode jobs are queued in Redis for a
separate "worker" process unless --with-worker embeds one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := api.NewServer(a.jobs, a.limiter, api.Options{
				MaxUploadBytes:  cfg.Server.MaxUploadMB << 20,
				SubmitPerMinute: cfg.RateLimit.SubmitPerMinute,
				ReadTimeout:     cfg.Server.ReadTimeout,
			}, logger)
			httpSrv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      cfg.Server.WriteTimeout,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info().Str("addr", httpSrv.Addr).Msg("http server listening")
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info().Msg("shutdown requested")
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpSrv.Shutdown(sctx)
			})
			if a.queue != nil {
				depth := scheduler.NewScheduler("queue_depth", 15*time.Second, func(ctx context.Context) error {
					n, err := a.queue.Len(ctx)
					if err != nil {
						return err
					}
					metrics.SetQueueDepth(n)
					return nil
				}, logger)
				depth.Start(gctx)
				defer depth.Stop()
			}
			if withWorker {
				if a.queue == nil {
					logger.Info().Msg("immediate mode; --with-worker ignored")
				} else {
					g.Go(func() error { return runWorkers(gctx, a) })
				}
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also consume the job queue in this process")
	return cmd
}
