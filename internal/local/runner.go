// Package local implements the push workflow: merge local coverage profiles
// and publish the result as a badge.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/coverage"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/format"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/service"
)

// DefaultLabel labels pushed badges when Config.Label is empty.
const DefaultLabel = service.DefaultProfileLabel

// Config holds configuration for a push.
type Config struct {
	// CoveragePath is the directory containing coverage files (*.out)
	CoveragePath string
	// Name is the badge name on the server
	Name string
	// Label is the text on the left side of the badge
	Label string
	// Format is the output format (text, markdown)
	Format string
	// MergedOutput, when set, receives the merged profile
	MergedOutput string
}

// Pusher stores a badge on a server.
type Pusher interface {
	UpdateBadge(ctx context.Context, name string, req badge.Request) (*service.UpdateResult, error)
	BadgeURL(name string) string
}

// Runner handles the push workflow.
type Runner struct {
	config Config
	pusher Pusher
	out    io.Writer
}

// Option is a functional option for configuring Runner.
type Option func(*Runner)

// WithOutput sets where progress and the formatted result are written.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		r.out = w
	}
}

// NewRunner creates a new Runner with the given configuration.
func NewRunner(config Config, pusher Pusher, opts ...Option) *Runner {
	if config.Label == "" {
		config.Label = DefaultLabel
	}
	if config.Format == "" {
		config.Format = "text"
	}

	r := &Runner{
		config: config,
		pusher: pusher,
		out:    os.Stdout,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run merges the coverage files, pushes the coverage badge and prints the
// result.
func (r *Runner) Run(ctx context.Context) error {
	if r.config.Name == "" {
		return fmt.Errorf("badge name is required")
	}

	formatter, err := format.New(r.config.Format)
	if err != nil {
		return fmt.Errorf("failed to create formatter: %w", err)
	}

	profiles, err := r.readAndMergeCoverageFiles()
	if err != nil {
		return err // Error message already formatted
	}

	if r.config.MergedOutput != "" {
		if err := r.writeMerged(profiles); err != nil {
			return err
		}
	}

	summary, err := coverage.Summarize(profiles)
	if err != nil {
		return fmt.Errorf("failed to summarize coverage: %w", err)
	}

	req := badge.Request{
		Label: r.config.Label,
		Value: badge.Percentage(coverage.Round(summary.Percent)),
	}
	if _, err := r.pusher.UpdateBadge(ctx, r.config.Name, req); err != nil {
		return fmt.Errorf("failed to push badge %s: %w", r.config.Name, err)
	}

	result := &format.Result{
		Name:     r.config.Name,
		Label:    r.config.Label,
		BadgeURL: r.pusher.BadgeURL(r.config.Name),
		Summary:  summary,
	}
	if err := formatter.Format(result, r.out); err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	return nil
}

// readAndMergeCoverageFiles reads all *.out files from the coverage directory
// and merges them into a single set of profiles.
// Returns a user-friendly error if the directory doesn't exist or no files are found.
func (r *Runner) readAndMergeCoverageFiles() ([]*coverage.Profile, error) {
	dirInfo, err := os.Stat(r.config.CoveragePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("coverage directory not found: %s\n\nRun tests with coverage first:\n  go test ./... -coverprofile=%s/coverage.out",
				r.config.CoveragePath, r.config.CoveragePath)
		}
		return nil, fmt.Errorf("failed to access coverage directory: %w", err)
	}

	if !dirInfo.IsDir() {
		return nil, fmt.Errorf("coverage path is not a directory: %s", r.config.CoveragePath)
	}

	coverageFiles, err := filepath.Glob(filepath.Join(r.config.CoveragePath, "*.out"))
	if err != nil {
		return nil, fmt.Errorf("failed to list coverage directory: %w", err)
	}
	sort.Strings(coverageFiles)

	if len(coverageFiles) == 0 {
		return nil, fmt.Errorf("no coverage files (*.out) found in directory: %s\n\nRun tests with coverage first:\n  go test ./... -coverprofile=%s/coverage.out",
			r.config.CoveragePath, r.config.CoveragePath)
	}

	fmt.Fprintf(r.out, "Found %d coverage file(s) to merge\n", len(coverageFiles))

	var allProfiles []*coverage.Profile
	for _, file := range coverageFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read coverage file %s: %w", file, err)
		}

		profiles, err := coverage.ParseProfiles(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse coverage file %s: %w", file, err)
		}

		allProfiles = append(allProfiles, profiles...)
	}

	mergedProfiles, err := coverage.MergeProfiles(allProfiles)
	if err != nil {
		return nil, fmt.Errorf("failed to merge coverage profiles: %w", err)
	}

	return mergedProfiles, nil
}

func (r *Runner) writeMerged(profiles []*coverage.Profile) error {
	data, err := coverage.SerializeProfiles(profiles)
	if err != nil {
		return fmt.Errorf("failed to serialize merged profile: %w", err)
	}
	if err := os.WriteFile(r.config.MergedOutput, data, 0o644); err != nil {
		return fmt.Errorf("failed to write merged profile: %w", err)
	}
	return nil
}
