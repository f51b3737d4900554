package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/config"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/events"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/logging"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "badgehouse-watcher",
	Short: "Badgehouse Watcher - Badge change event consumer",
	Long: `Badgehouse Watcher subscribes to badge change events published by the
badgehouse server and logs each one, e.g. to drive CDN purges.

Events are read from a Redis Streams consumer group or a Pub/Sub subscription,
selected with BADGEHOUSE_EVENTS_TYPE.`,
	Args:         cobra.NoArgs,
	RunE:         run,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Badgehouse Watcher %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.Flags()
	flags.String("config", "", "Path to a config file (yaml, json or toml)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "json", "Log format (json, text)")
	flags.String("events-type", "", "Badge change events (redis, pubsub)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.ModeWatcher, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	consumer, err := os.Hostname()
	if err != nil || consumer == "" {
		consumer = "badgehouse-watcher"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subscriber, err := events.New(ctx, cfg.Events, events.Options{
		ConsumerName:      consumer,
		CreateIfNotExists: true,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create event subscriber: %w", err)
	}
	defer subscriber.Close()

	logger.Info("starting badgehouse watcher",
		"version", version,
		"events", string(cfg.Events.Type),
		"consumer", consumer,
	)

	err = subscriber.Subscribe(ctx, logEvent(logger))
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("subscription failed: %w", err)
	}

	logger.Info("badgehouse watcher stopped")
	return nil
}

// logEvent logs every badge change.
func logEvent(logger *slog.Logger) events.Handler {
	return func(ctx context.Context, e *events.Event) error {
		logger.Info("badge changed",
			"event_id", e.ID,
			"action", string(e.Action),
			"name", e.Name,
			"key", e.Key,
			"location", e.Location,
			"time", e.Time,
		)
		return nil
	}
}
