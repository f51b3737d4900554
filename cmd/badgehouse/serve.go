package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/config"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/events"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/logging"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/metrics"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/render"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/server"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/service"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/storage"
)

// shutdownTimeout bounds the drain of in-flight requests.
const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the badge HTTP API",
		Long: `Run the badge HTTP API.

Configuration is read from flags, BADGEHOUSE_* environment variables and an
optional config file. BADGEHOUSE_API_KEY is required.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	flags := cmd.Flags()
	flags.String("config", "", "Path to a config file (yaml, json or toml)")
	flags.Int("port", 8080, "HTTP server port")
	flags.Bool("debug", false, "Echo provided and expected API keys in auth errors (never in production)")
	flags.String("api-key", "", "Shared secret expected in the X-API-KEY header")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, text)")
	flags.String("render-url", "https://img.shields.io", "Base URL of the badge rendering service")
	flags.String("storage-type", string(config.StorageTypeFilesystem), "Storage backend (filesystem, gcs, minio, redis)")
	flags.String("storage-root", "./badges", "Badge directory of the filesystem backend")
	flags.String("events-type", string(config.EventsTypeNone), "Badge change events (none, inmemory, redis, pubsub)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.ModeServer, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting badgehouse",
		"version", version,
		"commit", commit,
		"port", cfg.Port,
		"storage", string(cfg.Storage.Type),
		"events", string(cfg.Events.Type),
		"render_url", cfg.Render.URL,
	)
	if cfg.Debug {
		logger.Warn("debug mode is enabled; auth errors echo the API key")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, err := storage.New(ctx, cfg.Storage, storage.Options{Observer: m, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	renderer, err := render.NewClient(render.Config{
		BaseURL:  cfg.Render.URL,
		Timeout:  cfg.Render.Timeout,
		Retries:  cfg.Render.Retries,
		Observer: m,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create render client: %w", err)
	}

	publisher, err := events.New(ctx, cfg.Events, events.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	badges, err := service.New(service.Config{
		Renderer:    renderer,
		Storage:     store,
		Publisher:   publisher,
		Concurrency: cfg.Render.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create badge service: %w", err)
	}

	srv, err := server.New(server.Config{
		Port:    cfg.Port,
		Logger:  logger,
		Badges:  badges,
		APIKey:  cfg.APIKey,
		Debug:   cfg.Debug,
		Metrics: m,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil {
		return err
	}

	logger.Info("badgehouse stopped")
	return nil
}
