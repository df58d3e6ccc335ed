// Package runner executes one pipeline's steps in order inside a sandbox,
// capturing per-step exit status and output and enforcing stop-on-failure
// semantics.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pgmill/pgmill/internal/logfields"
	"github.com/pgmill/pgmill/internal/pipeline"
	"github.com/pgmill/pgmill/internal/report"
	"github.com/pgmill/pgmill/internal/sandbox"
)

// DefaultStepTimeout bounds a single step's wall-clock time when the
// configuration does not say otherwise.
const DefaultStepTimeout = 15 * time.Minute

// Runner executes pipelines. Stateless apart from its timeout; safe for
// concurrent use by independent target builds.
type Runner struct {
	stepTimeout time.Duration
}

// New returns a Runner with the given per-step timeout. Zero or negative
// means DefaultStepTimeout.
func New(stepTimeout time.Duration) *Runner {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &Runner{stepTimeout: stepTimeout}
}

// Run executes every step of the pipeline in strict order inside the
// sandbox, with targetEnv merged over the process environment. Execution
// stops at the first step that does not exit cleanly; the remaining steps
// are recorded as NotRun. Cancellation kills the in-flight process group
// and yields a Cancelled outcome.
func (r *Runner) Run(ctx context.Context, p *pipeline.Pipeline, sb *sandbox.Sandbox, targetEnv []string) report.TargetOutcome {
	outcome := report.TargetOutcome{Status: report.TargetSuccess}
	env := append(os.Environ(), targetEnv...)
	start := time.Now()

	for i, step := range p.Steps {
		if ctx.Err() != nil {
			// Cancelled between steps: no process ran, so no step outcome
			// is recorded for this or any later step.
			outcome.Status = report.TargetCancelled
			break
		}

		stepOutcome := r.runStep(ctx, step, sb.Path(), env)
		outcome.Steps = append(outcome.Steps, stepOutcome)

		slog.Debug("Step finished",
			logfields.Step(step.Name),
			logfields.Status(string(stepOutcome.Status)),
			logfields.DurationMS(float64(stepOutcome.Duration.Milliseconds())))

		switch stepOutcome.Status {
		case report.StepSuccess:
			continue
		case report.StepCancelled:
			outcome.Status = report.TargetCancelled
		default:
			outcome.Status = report.TargetFailed
			outcome.FailedStep = step.Name
			// Later steps are meaningless after this one failed; skipping
			// them keeps the true failure point visible.
			for _, skipped := range p.Steps[i+1:] {
				outcome.Steps = append(outcome.Steps, report.StepOutcome{
					Name:     skipped.Name,
					Status:   report.StepNotRun,
					ExitCode: -1,
				})
			}
		}
		break
	}

	outcome.Duration = time.Since(start)
	return outcome
}

// runStep executes a single step as an external process rooted at the
// sandbox directory plus the step's directory offset.
func (r *Runner) runStep(ctx context.Context, step pipeline.Step, sandboxDir string, env []string) report.StepOutcome {
	outcome := report.StepOutcome{Name: step.Name, ExitCode: -1}

	if missing := missingEnv(step.RequiredEnv, env); len(missing) > 0 {
		outcome.Status = report.StepFailed
		outcome.Stderr = fmt.Sprintf("required environment variables not set: %s", strings.Join(missing, ", "))
		return outcome
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(step.Command, step.Args...)
	cmd.Dir = filepath.Join(sandboxDir, step.Dir)
	cmd.Env = env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Own process group so timeouts and cancellation kill children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		outcome.Status = report.StepFailed
		outcome.Stderr = err.Error()
		outcome.Duration = time.Since(start)
		return outcome
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(r.stepTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		outcome.Status, outcome.ExitCode = classifyExit(err)
	case <-timer.C:
		killGroup(cmd)
		<-done
		outcome.Status = report.StepTimedOut
	case <-ctx.Done():
		killGroup(cmd)
		<-done
		outcome.Status = report.StepCancelled
	}

	outcome.Duration = time.Since(start)
	outcome.Stdout = stdout.String()
	outcome.Stderr = stderr.String()
	return outcome
}

// classifyExit maps a Wait error onto a step status and exit code.
func classifyExit(err error) (report.StepStatus, int) {
	if err == nil {
		return report.StepSuccess, 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return report.StepSignaled, -1
		}
		return report.StepFailed, exitErr.ExitCode()
	}
	return report.StepFailed, -1
}

// killGroup terminates the process and all of its children.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative pid addresses the whole process group.
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// missingEnv returns the names in required that have no entry in env.
func missingEnv(required, env []string) []string {
	var missing []string
	for _, name := range required {
		prefix := name + "="
		found := false
		for _, kv := range env {
			if strings.HasPrefix(kv, prefix) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, name)
		}
	}
	return missing
}
