package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/client"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/config"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/local"
)

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Publish local Go coverage as a badge",
		Long: `Merge every *.out coverage profile in a directory, compute the statement
coverage and store it as a percentage badge on a badgehouse server.

Example:
  go test ./... -coverprofile=coverage/unit.out
  badgehouse push --coverage-dir coverage --name myproject-coverage`,
		Args: cobra.NoArgs,
		RunE: runPush,
	}

	flags := cmd.Flags()
	flags.String("config", "", "Path to a config file (yaml, json or toml)")
	flags.String("server", "http://localhost:8080", "Base URL of the badgehouse server")
	flags.String("api-key", "", "Shared secret sent in the X-API-KEY header")
	flags.String("coverage-dir", ".coverage", "Directory containing coverage files (*.out)")
	flags.String("name", "", "Badge name")
	flags.String("label", local.DefaultLabel, "Badge label")
	flags.String("format", "text", "Output format (text, markdown)")
	flags.String("merged-output", "", "Write the merged coverage profile to this file")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.ModePush, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	c, err := client.New(cfg.Server, cfg.APIKey)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	coverageDir, _ := flags.GetString("coverage-dir")
	name, _ := flags.GetString("name")
	label, _ := flags.GetString("label")
	outputFormat, _ := flags.GetString("format")
	mergedOutput, _ := flags.GetString("merged-output")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := local.NewRunner(local.Config{
		CoveragePath: coverageDir,
		Name:         name,
		Label:        label,
		Format:       outputFormat,
		MergedOutput: mergedOutput,
	}, c, local.WithOutput(cmd.OutOrStdout()))

	return runner.Run(ctx)
}
