// Package report defines the typed outcome model the build engine exposes:
// per-step results, per-target results, and the aggregate build report.
// Assembly is a pure merge; rendering and exit-code mapping belong to the
// CLI layer.
package report

import (
	"time"
)

// StepStatus classifies how one step invocation ended.
type StepStatus string

const (
	StepSuccess   StepStatus = "success"
	StepFailed    StepStatus = "failed"    // non-zero exit
	StepSignaled  StepStatus = "signaled"  // terminated by a signal
	StepTimedOut  StepStatus = "timed_out" // exceeded the per-step wall-clock limit
	StepCancelled StepStatus = "cancelled" // external cancellation mid-step
	StepNotRun    StepStatus = "not_run"   // skipped after an earlier failure
)

// TargetStatus is the terminal status of one target build.
type TargetStatus string

const (
	TargetSuccess   TargetStatus = "success"
	TargetFailed    TargetStatus = "failed"
	TargetCancelled TargetStatus = "cancelled"
)

// AggregateStatus summarizes a whole build report.
type AggregateStatus string

const (
	AggregateSuccess        AggregateStatus = "success"
	AggregatePartialFailure AggregateStatus = "partial_failure"
	AggregateFailed         AggregateStatus = "failed"
	AggregateCancelled      AggregateStatus = "cancelled" // every target was cancelled
)

// StepOutcome is the captured result of one completed process invocation.
// Immutable once produced. Output is attached verbatim; filtering and
// truncation are reporting concerns, not the engine's.
type StepOutcome struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	ExitCode int           `json:"exit_code"` // -1 when no exit code applies
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TargetOutcome is the result of building one target: the ordered step
// outcomes plus the terminal status derived from the stop-on-failure
// policy.
type TargetOutcome struct {
	Status     TargetStatus  `json:"status"`
	Steps      []StepOutcome `json:"steps"`
	FailedStep string        `json:"failed_step,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"` // cleanup problems; never affect Status
	Duration   time.Duration `json:"duration"`
}

// Succeeded reports whether every declared step ran and exited cleanly.
func (o *TargetOutcome) Succeeded() bool { return o.Status == TargetSuccess }

// BuildReport is the sole value the engine exposes across its boundary:
// one outcome per target, keyed by target identity (order-insensitive),
// plus the resolved pipeline and distribution identities.
type BuildReport struct {
	Distribution string                   `json:"distribution"`
	Pipeline     string                   `json:"pipeline"`
	Status       AggregateStatus          `json:"status"`
	Targets      map[string]TargetOutcome `json:"targets"`
	Warnings     []string                 `json:"warnings,omitempty"`
	Duration     time.Duration            `json:"duration"`
}

// Assemble merges target outcomes into a build report. Pure function: no
// I/O, no failure mode beyond its inputs. The aggregate status is Success
// iff every target succeeded, PartialFailure when some did, Cancelled when
// every target was cancelled, and Failed otherwise. An empty outcome set
// aggregates to Failed: a build that attempted nothing succeeded at
// nothing.
func Assemble(distribution, pipeline string, outcomes map[string]TargetOutcome) *BuildReport {
	r := &BuildReport{
		Distribution: distribution,
		Pipeline:     pipeline,
		Targets:      make(map[string]TargetOutcome, len(outcomes)),
	}

	succeeded, cancelled := 0, 0
	for key, outcome := range outcomes {
		r.Targets[key] = outcome
		if outcome.Succeeded() {
			succeeded++
		}
		if outcome.Status == TargetCancelled {
			cancelled++
		}
		for _, w := range outcome.Warnings {
			r.Warnings = append(r.Warnings, key+": "+w)
		}
	}

	switch {
	case len(outcomes) == 0:
		r.Status = AggregateFailed
	case succeeded == len(outcomes):
		r.Status = AggregateSuccess
	case succeeded > 0:
		r.Status = AggregatePartialFailure
	case cancelled == len(outcomes):
		r.Status = AggregateCancelled
	default:
		r.Status = AggregateFailed
	}
	return r
}

// SuccessfulTargets returns the keys of all targets with a Success outcome,
// in no particular order.
func (r *BuildReport) SuccessfulTargets() []string {
	var keys []string
	for key, outcome := range r.Targets {
		if outcome.Succeeded() {
			keys = append(keys, key)
		}
	}
	return keys
}
