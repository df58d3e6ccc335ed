package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/pgmill/pgmill/internal/config"
	"github.com/pgmill/pgmill/internal/meta"
	"github.com/pgmill/pgmill/internal/pipeline"
	"github.com/pgmill/pgmill/internal/version"
	"github.com/pgmill/pgmill/internal/watch"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"pgmill.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Source      string `arg:"" optional:"" help:"Path to the unpacked source tree" default:"."`
		Metadata    string `short:"m" help:"Distribution metadata path (defaults to META.yaml in the source tree)"`
		Output      string `short:"o" help:"Output directory for the packaged artifact"`
		MetricsFile string `help:"Write Prometheus metrics for the run to this file"`
	} `cmd:"" help:"Build the distribution against every configured Postgres target"`

	Detect struct {
		Metadata string `arg:"" help:"Distribution metadata path"`
	} `cmd:"" help:"Show which build pipeline the metadata selects"`

	Watch struct {
		Source      string `arg:"" optional:"" help:"Path to the unpacked source tree" default:"."`
		Metadata    string `short:"m" help:"Distribution metadata path (defaults to META.yaml in the source tree)"`
		Output      string `short:"o" help:"Output directory for the packaged artifact"`
		MetricsFile string `help:"Write Prometheus metrics for each run to this file"`
	} `cmd:"" help:"Rebuild whenever the source tree changes"`

	Version struct{} `cmd:"" help:"Show version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	// Set up logging
	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	config.LoadEnvFile()

	switch ctx.Command() {
	case "build", "build <source>":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(2)
		}
		os.Exit(runBuild(signalContext(), cfg, buildOptions{
			source:      CLI.Build.Source,
			metadata:    CLI.Build.Metadata,
			output:      CLI.Build.Output,
			metricsFile: CLI.Build.MetricsFile,
		}))

	case "detect <metadata>":
		if err := runDetect(CLI.Detect.Metadata); err != nil {
			slog.Error("Pipeline detection failed", "error", err)
			os.Exit(2)
		}

	case "watch", "watch <source>":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(2)
		}
		if err := runWatch(signalContext(), cfg, buildOptions{
			source:      CLI.Watch.Source,
			metadata:    CLI.Watch.Metadata,
			output:      CLI.Watch.Output,
			metricsFile: CLI.Watch.MetricsFile,
		}); err != nil && err != context.Canceled {
			slog.Error("Watch mode failed", "error", err)
			os.Exit(1)
		}

	case "version":
		fmt.Printf("pgmill %s (built %s, commit %s)\n", version.Version, version.BuildTime, version.GitCommit)

	default:
		_ = ctx.PrintUsage(false)
		os.Exit(2)
	}
}

// signalContext returns a context cancelled by SIGINT/SIGTERM so in-flight
// build steps are killed and sandboxes released before exit.
func signalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// runDetect loads metadata and prints the selected pipeline and its steps.
func runDetect(metadataPath string) error {
	dist, err := meta.Load(metadataPath)
	if err != nil {
		return err
	}
	pipe, err := pipeline.Select(dist)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s pipeline\n", dist.ID(), pipe.ID())
	for _, step := range pipe.Steps {
		fmt.Printf("  %-12s %s", step.Name, step.Command)
		for _, arg := range step.Args {
			fmt.Printf(" %s", arg)
		}
		fmt.Println()
	}
	return nil
}

// runWatch rebuilds on every settled change to the source tree.
func runWatch(ctx context.Context, cfg *config.Config, opts buildOptions) error {
	w, err := watch.New(opts.source)
	if err != nil {
		return err
	}

	// One eager build before settling in to watch.
	runBuild(ctx, cfg, opts)

	return w.Run(ctx, func(ctx context.Context) {
		runBuild(ctx, cfg, opts)
	})
}
