package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pgmill/pgmill/internal/archive"
	"github.com/pgmill/pgmill/internal/config"
	"github.com/pgmill/pgmill/internal/errors"
	"github.com/pgmill/pgmill/internal/logfields"
	"github.com/pgmill/pgmill/internal/matrix"
	"github.com/pgmill/pgmill/internal/meta"
	"github.com/pgmill/pgmill/internal/metrics"
	"github.com/pgmill/pgmill/internal/report"
)

// Exit codes for the build command.
const (
	exitSuccess   = 0
	exitFailed    = 1   // no target succeeded, or packaging failed
	exitDefect    = 2   // configuration or metadata defect
	exitCancelled = 130 // interrupted before any target finished
)

// buildOptions carries the build command's flag values into runBuild.
type buildOptions struct {
	source      string
	metadata    string
	output      string
	metricsFile string
}

const (
	timeRounding    = 10 * time.Millisecond
	stderrTailLines = 5 // lines of a failed step's stderr shown inline
)

// runBuild executes the full matrix build and returns the process exit
// code. Partial failures still exit zero when an artifact was packaged;
// the report makes the failed targets visible.
func runBuild(ctx context.Context, cfg *config.Config, opts buildOptions) int {
	dist, err := loadMetadata(cfg, opts.source, opts.metadata)
	if err != nil {
		slog.Error("Failed to load distribution metadata", logfields.Error(err))
		return exitDefect
	}

	var (
		recorder metrics.Recorder
		registry *prometheus.Registry
	)
	if opts.metricsFile != "" {
		registry = prometheus.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
	}

	driver := matrix.NewDriver(matrix.Options{
		SandboxBase: cfg.Build.SandboxDir,
		Concurrency: cfg.Build.Concurrency,
		StepTimeout: cfg.Build.StepTimeout.Std(),
		Recorder:    recorder,
	})

	rep, staged, err := driver.BuildAll(ctx, opts.source, dist, cfg.Targets)
	defer cleanupStaging(staged)
	writeMetricsFile(opts.metricsFile, registry)
	if err != nil {
		slog.Error("Build aborted", logfields.Distribution(dist.ID()), logfields.Error(err))
		if errors.IsCategory(err, errors.CategoryConfig) || errors.IsCategory(err, errors.CategoryMetadata) {
			return exitDefect
		}
		return exitFailed
	}

	renderReport(os.Stdout, rep)

	if rep.Status == report.AggregateCancelled {
		return exitCancelled
	}
	if len(rep.SuccessfulTargets()) == 0 {
		return exitFailed
	}

	outputDir := opts.output
	if outputDir == "" {
		outputDir = cfg.Output.Directory
	}
	packager := archive.NewPackager(outputDir, cfg.ArchiveFormat())
	artifact, err := packager.Package(rep, staged)
	if err != nil {
		slog.Error("Packaging failed", logfields.Distribution(dist.ID()), logfields.Error(err))
		return exitFailed
	}

	fmt.Printf("\nPackaged %s\n  sha256 %s\n", artifact.Path, artifact.Checksum)
	return exitSuccess
}

// loadMetadata resolves the metadata path in order of precedence: the
// --metadata flag, the configuration file, then META.yaml next to the
// source tree.
func loadMetadata(cfg *config.Config, source, metadataPath string) (*meta.Distribution, error) {
	path := metadataPath
	if path == "" {
		path = cfg.Metadata
	}
	if path == "" {
		path = filepath.Join(source, "META.yaml")
	}
	return meta.Load(path)
}

// writeMetricsFile dumps the run's gathered metrics in Prometheus text
// exposition format. No-op when metrics were not requested.
func writeMetricsFile(path string, registry *prometheus.Registry) {
	if registry == nil {
		return
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		slog.Warn("Failed to write metrics file", logfields.Path(path), logfields.Error(err))
	}
}

// cleanupStaging removes the per-target staging directories once packaging
// is done with them.
func cleanupStaging(staged map[string]string) {
	for key, dir := range staged {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("Failed to remove staging directory",
				logfields.Target(key), logfields.Path(dir), logfields.Error(err))
		}
	}
}

// renderReport prints a human-readable per-target summary to w.
func renderReport(w io.Writer, r *report.BuildReport) {
	fmt.Fprintf(w, "%s (%s pipeline): %s in %s\n", r.Distribution, r.Pipeline, r.Status, r.Duration.Round(timeRounding))

	keys := make([]string, 0, len(r.Targets))
	for key := range r.Targets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		outcome := r.Targets[key]
		fmt.Fprintf(w, "  %-24s %s (%s)\n", key, outcome.Status, outcome.Duration.Round(timeRounding))
		for _, step := range outcome.Steps {
			switch step.Status {
			case report.StepSuccess:
				fmt.Fprintf(w, "    ok   %s\n", step.Name)
			case report.StepNotRun:
				fmt.Fprintf(w, "    --   %s\n", step.Name)
			default:
				fmt.Fprintf(w, "    FAIL %s (%s, exit %d)\n", step.Name, step.Status, step.ExitCode)
				if step.Stderr != "" {
					fmt.Fprintf(w, "%s\n", indent(lastLines(step.Stderr, stderrTailLines), "         "))
				}
			}
		}
	}

	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}

// lastLines returns the trailing n lines of s without a trailing newline.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
