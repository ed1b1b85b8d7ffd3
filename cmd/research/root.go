package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"research-assistant/internal/config"
	"research-assistant/internal/infra/logging"
	"research-assistant/internal/infra/metrics"
)

var (
	version = "dev"
	commit  = "none"
)

type rootOptions struct {
	configPath string
	dev        bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Agentic research assistant",
		Long: `research turns a prompt (plus optional image and context text) into a
Markdown and PDF report backed by Wikipedia sources.

Run "serve" for the HTTP API, "worker" to consume queued jobs, or "run" for a
single local job.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file (environment only when empty)")
	cmd.PersistentFlags().BoolVar(&opts.dev, "dev", false, "developer mode: console logs, unredacted secrets")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newWorkerCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

// load reads configuration and sets up the process-wide logger and metrics.
func (o *rootOptions) load(overrides ...func(*config.Config)) (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.LoadConfig(o.configPath, o.dev, overrides...)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return cfg, o.setup(cfg), nil
}

func (o *rootOptions) setup(cfg *config.Config) *zerolog.Logger {
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().
		Str("version", version).
		Str("queue_mode", cfg.Queue.Mode).
		Str("status_backend", cfg.Status.Backend).
		Str("storage_backend", cfg.Storage.Backend).
		Bool("dev", cfg.Runtime.Dev).
		Msg("configuration loaded")
	return logger
}
