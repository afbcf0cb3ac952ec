package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/siteqa/siteqa/config"
	"github.com/siteqa/siteqa/queue"
	"github.com/siteqa/siteqa/server"
)

// NewServeCommand returns the `siteqa serve` subcommand.
func NewServeCommand(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the siteqa API server",
		Long: `Run the REST API server.

Exposes ingestion, query, and batch query endpoints plus Prometheus
metrics. Ingestion jobs run on a NATS JetStream work queue when nats.url
is configured, otherwise on an in-process queue.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), cfg, slog.Default())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	handler := queue.NewIngestHandler(app.Pipeline, app.Notifier, logger)

	var jobs server.JobQueue
	if cfg.NATS.URL != "" {
		js, err := queue.NewJetStream(ctx, cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.Consumer, handler, logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		if err := js.Start(ctx); err != nil {
			return err
		}
		defer js.Stop()
		jobs = js
	} else {
		local := queue.NewLocal(handler, 0, logger)
		if err := local.Start(ctx); err != nil {
			return err
		}
		defer local.Stop()
		jobs = local
	}

	srv := server.New(cfg.Server.Addr, app.Engine, jobs, app.Notifier, app.Registry, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}

	logger.Info("siteqa shutdown complete")
	return nil
}
