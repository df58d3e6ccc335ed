// Package metrics provides observability hooks for the build engine.
// Components receive a Recorder by injection; the default NoopRecorder
// keeps metrics collection optional with zero overhead.
package metrics

import "time"

// Recorder defines observability hooks for matrix and step metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveStepDuration(step string, d time.Duration)
	ObserveTargetDuration(target string, d time.Duration)
	ObserveMatrixDuration(d time.Duration)
	IncStepResult(step, result string)
	IncTargetOutcome(outcome string) // outcome: success|failed|cancelled
	SetBuildConcurrency(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration)   {}
func (NoopRecorder) ObserveTargetDuration(string, time.Duration) {}
func (NoopRecorder) ObserveMatrixDuration(time.Duration)         {}
func (NoopRecorder) IncStepResult(string, string)                {}
func (NoopRecorder) IncTargetOutcome(string)                     {}
func (NoopRecorder) SetBuildConcurrency(int)                     {}
