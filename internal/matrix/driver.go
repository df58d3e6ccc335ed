// Package matrix drives one full build across the externally supplied set
// of target database installations: pipeline selection once per
// distribution, then an independent sandboxed build per target, aggregated
// into a single build report.
package matrix

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pgmill/pgmill/internal/errors"
	"github.com/pgmill/pgmill/internal/logfields"
	"github.com/pgmill/pgmill/internal/meta"
	"github.com/pgmill/pgmill/internal/metrics"
	"github.com/pgmill/pgmill/internal/pgconfig"
	"github.com/pgmill/pgmill/internal/pipeline"
	"github.com/pgmill/pgmill/internal/report"
	"github.com/pgmill/pgmill/internal/runner"
	"github.com/pgmill/pgmill/internal/sandbox"
)

// DefaultConcurrency bounds simultaneous in-flight target builds when the
// configuration does not say otherwise.
const DefaultConcurrency = 2

// Options configures a Driver.
type Options struct {
	SandboxBase string        // base directory for sandboxes; os.TempDir when empty
	StagingBase string        // base directory for harvested artifacts; os.TempDir when empty
	Concurrency int           // max simultaneous target builds; DefaultConcurrency when <= 0
	StepTimeout time.Duration // per-step wall-clock limit
	Recorder    metrics.Recorder
}

// Driver iterates the full build over every target, one sandbox per
// attempt, and aggregates one outcome per target. One target's failure
// never aborts the rest: partial-platform failures are expected,
// actionable information.
type Driver struct {
	sandboxBase string
	stagingBase string
	concurrency int
	runner      *runner.Runner
	recorder    metrics.Recorder
}

// NewDriver creates a matrix driver.
func NewDriver(opts Options) *Driver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.StagingBase == "" {
		opts.StagingBase = os.TempDir()
	}
	return &Driver{
		sandboxBase: opts.SandboxBase,
		stagingBase: opts.StagingBase,
		concurrency: opts.Concurrency,
		runner:      runner.New(opts.StepTimeout),
		recorder:    opts.Recorder,
	}
}

// BuildAll resolves the pipeline once, builds every target, and returns the
// aggregate report plus a map from target key to the staging directory
// holding that target's harvested artifacts (successful targets only).
//
// The returned error is non-nil only for process-wide defects: metadata
// that selects no pipeline, or an invalid target list. Per-target failures
// live in the report.
func (d *Driver) BuildAll(ctx context.Context, sourcePath string, dist *meta.Distribution, targets []Target) (*report.BuildReport, map[string]string, error) {
	pipe, err := pipeline.Select(dist)
	if err != nil {
		return nil, nil, err
	}

	if len(targets) == 0 {
		return nil, nil, errors.New(errors.CategoryConfig, errors.SeverityFatal, "no build targets supplied")
	}
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.Key()]; dup {
			return nil, nil, errors.New(errors.CategoryConfig, errors.SeverityFatal, "duplicate build target").
				WithContext("target", t.Key())
		}
		seen[t.Key()] = struct{}{}
	}

	buildID := uuid.New().String()
	slog.Info("Starting build matrix",
		logfields.BuildID(buildID),
		logfields.Distribution(dist.ID()),
		logfields.Pipeline(pipe.ID()),
		slog.Int("targets", len(targets)),
		slog.Int("concurrency", d.concurrency))
	d.recorder.SetBuildConcurrency(d.concurrency)

	start := time.Now()
	var (
		mu       sync.Mutex
		outcomes = make(map[string]report.TargetOutcome, len(targets))
		staged   = make(map[string]string)
		wg       sync.WaitGroup
		sem      = make(chan struct{}, d.concurrency)
	)

	for _, target := range targets {
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome, stagingDir := d.buildTarget(ctx, sourcePath, pipe, target)

			mu.Lock()
			outcomes[target.Key()] = outcome
			if stagingDir != "" {
				staged[target.Key()] = stagingDir
			}
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	r := report.Assemble(dist.ID(), pipe.ID(), outcomes)
	r.Duration = time.Since(start)
	d.recorder.ObserveMatrixDuration(r.Duration)

	slog.Info("Build matrix finished",
		logfields.BuildID(buildID),
		logfields.Distribution(dist.ID()),
		logfields.Status(string(r.Status)),
		logfields.DurationMS(float64(r.Duration.Milliseconds())))
	return r, staged, nil
}

// buildTarget runs one target's build: sandbox acquisition, optional
// pg_config probe, pipeline execution, artifact harvest, sandbox release.
// The returned staging directory is non-empty only on success.
func (d *Driver) buildTarget(ctx context.Context, sourcePath string, pipe *pipeline.Pipeline, target Target) (report.TargetOutcome, string) {
	key := target.Key()

	if ctx.Err() != nil {
		return report.TargetOutcome{Status: report.TargetCancelled}, ""
	}

	sb, err := sandbox.Acquire(sourcePath, d.sandboxBase)
	if err != nil {
		slog.Error("Sandbox acquisition failed", logfields.Target(key), logfields.Error(err))
		d.recorder.IncTargetOutcome(string(report.TargetFailed))
		return report.TargetOutcome{
			Status:     report.TargetFailed,
			FailedStep: "sandbox",
			Warnings:   []string{err.Error()},
		}, ""
	}

	outcome, stagingDir := d.runInSandbox(ctx, sb, pipe, target)

	// Release on every path; cleanup trouble becomes warnings, never a
	// different outcome.
	outcome.Warnings = append(outcome.Warnings, sb.Release()...)

	d.recorder.ObserveTargetDuration(key, outcome.Duration)
	d.recorder.IncTargetOutcome(string(outcome.Status))
	for _, s := range outcome.Steps {
		d.recorder.ObserveStepDuration(s.Name, s.Duration)
		d.recorder.IncStepResult(s.Name, string(s.Status))
	}

	slog.Info("Target build finished",
		logfields.Target(key),
		logfields.Status(string(outcome.Status)))
	return outcome, stagingDir
}

func (d *Driver) runInSandbox(ctx context.Context, sb *sandbox.Sandbox, pipe *pipeline.Pipeline, target Target) (report.TargetOutcome, string) {
	var cfg *pgconfig.PgConfig
	if target.PgConfig != "" {
		var err error
		cfg, err = pgconfig.New(ctx, target.PgConfig)
		if err != nil {
			return report.TargetOutcome{
				Status:     report.TargetFailed,
				FailedStep: "pg_config",
				Warnings:   []string{err.Error()},
			}, ""
		}
	}

	outcome := d.runner.Run(ctx, pipe, sb, target.Env(cfg))
	if !outcome.Succeeded() || len(pipe.Artifacts) == 0 {
		return outcome, ""
	}

	// Harvest declared artifacts before the sandbox goes away.
	stagingDir, err := d.harvest(sb, pipe.Artifacts, target)
	if err != nil {
		// The distribution declared outputs the build did not produce.
		outcome.Status = report.TargetFailed
		outcome.FailedStep = "collect-artifacts"
		outcome.Warnings = append(outcome.Warnings, err.Error())
		return outcome, ""
	}
	return outcome, stagingDir
}

// harvest copies the pipeline's declared artifact paths out of the sandbox
// into a per-target staging directory that outlives sandbox release.
func (d *Driver) harvest(sb *sandbox.Sandbox, artifacts []string, target Target) (string, error) {
	stagingDir := filepath.Join(d.stagingBase, "pgmill-stage-"+sb.ID())
	for _, rel := range artifacts {
		if err := stageArtifact(sb.Path(), rel, stagingDir); err != nil {
			_ = os.RemoveAll(stagingDir)
			return "", err
		}
	}
	slog.Debug("Harvested artifacts",
		logfields.Target(target.Key()),
		logfields.Path(stagingDir),
		slog.Int("count", len(artifacts)))
	return stagingDir, nil
}

// stageArtifact copies one declared artifact (file or directory) from the
// sandbox into the staging tree, preserving its relative path.
func stageArtifact(sandboxRoot, rel, stagingRoot string) error {
	src := filepath.Join(sandboxRoot, rel)
	dst := filepath.Join(stagingRoot, filepath.FromSlash(strings.TrimSuffix(rel, "/")))

	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrap(err, errors.CategoryPackaging, errors.SeverityError, "declared artifact missing").
			WithContext("artifact", rel)
	}

	if info.IsDir() {
		return os.CopyFS(dst, os.DirFS(src))
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
