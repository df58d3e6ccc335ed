package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func success() TargetOutcome {
	return TargetOutcome{
		Status: TargetSuccess,
		Steps: []StepOutcome{
			{Name: "build", Status: StepSuccess},
			{Name: "install", Status: StepSuccess},
		},
	}
}

func failure() TargetOutcome {
	return TargetOutcome{
		Status:     TargetFailed,
		FailedStep: "build",
		Steps: []StepOutcome{
			{Name: "build", Status: StepFailed, ExitCode: 2},
			{Name: "install", Status: StepNotRun, ExitCode: -1},
		},
	}
}

func TestAssemble_AllSuccess(t *testing.T) {
	r := Assemble("pair-0.1.7", "pgxs", map[string]TargetOutcome{
		"linux-amd64/16": success(),
		"linux-amd64/17": success(),
	})

	assert.Equal(t, AggregateSuccess, r.Status)
	assert.Equal(t, "pair-0.1.7", r.Distribution)
	assert.Equal(t, "pgxs", r.Pipeline)
	assert.Len(t, r.Targets, 2)
	assert.ElementsMatch(t, []string{"linux-amd64/16", "linux-amd64/17"}, r.SuccessfulTargets())
}

func TestAssemble_PartialFailure(t *testing.T) {
	r := Assemble("pair-0.1.7", "pgxs", map[string]TargetOutcome{
		"linux-amd64/16": success(),
		"linux-amd64/17": failure(),
	})

	assert.Equal(t, AggregatePartialFailure, r.Status)
	assert.Equal(t, []string{"linux-amd64/16"}, r.SuccessfulTargets())
}

func TestAssemble_AllFailed(t *testing.T) {
	r := Assemble("pair-0.1.7", "pgxs", map[string]TargetOutcome{
		"linux-amd64/17": failure(),
	})

	assert.Equal(t, AggregateFailed, r.Status)
	assert.Empty(t, r.SuccessfulTargets())
}

func TestAssemble_NoOutcomes(t *testing.T) {
	r := Assemble("pair-0.1.7", "pgxs", nil)

	assert.Equal(t, AggregateFailed, r.Status)
	assert.Empty(t, r.Targets)
}

func TestAssemble_AllCancelled(t *testing.T) {
	r := Assemble("pair-0.1.7", "pgxs", map[string]TargetOutcome{
		"linux-amd64/16": {Status: TargetCancelled},
		"linux-amd64/17": {Status: TargetCancelled},
	})

	assert.Equal(t, AggregateCancelled, r.Status)
}

func TestAssemble_CancelledMixedWithFailureIsFailed(t *testing.T) {
	r := Assemble("pair-0.1.7", "pgxs", map[string]TargetOutcome{
		"linux-amd64/16": failure(),
		"linux-amd64/17": {Status: TargetCancelled},
	})

	assert.Equal(t, AggregateFailed, r.Status)
}

func TestAssemble_CancelledCountsAsNotSucceeded(t *testing.T) {
	r := Assemble("pair-0.1.7", "pgxs", map[string]TargetOutcome{
		"linux-amd64/16": success(),
		"linux-amd64/17": {Status: TargetCancelled},
	})

	assert.Equal(t, AggregatePartialFailure, r.Status)
}

func TestAssemble_CollectsWarnings(t *testing.T) {
	out := success()
	out.Warnings = []string{"sandbox cleanup failed: permission denied"}
	r := Assemble("pair-0.1.7", "pgxs", map[string]TargetOutcome{"linux-amd64/17": out})

	// Cleanup warnings surface on the report but never change the outcome.
	assert.Equal(t, AggregateSuccess, r.Status)
	assert.Equal(t, []string{"linux-amd64/17: sandbox cleanup failed: permission denied"}, r.Warnings)
}

func TestAssemble_OrderInsensitive(t *testing.T) {
	a := map[string]TargetOutcome{"A": success(), "B": failure()}
	b := map[string]TargetOutcome{"B": failure(), "A": success()}

	ra := Assemble("d", "pgxs", a)
	rb := Assemble("d", "pgxs", b)

	assert.Equal(t, ra.Status, rb.Status)
	assert.Equal(t, ra.Targets, rb.Targets)
}

func TestStepOutcome_DurationPreserved(t *testing.T) {
	out := TargetOutcome{
		Status: TargetSuccess,
		Steps:  []StepOutcome{{Name: "build", Status: StepSuccess, Duration: 42 * time.Millisecond}},
	}
	r := Assemble("d", "pgxs", map[string]TargetOutcome{"t": out})
	assert.Equal(t, 42*time.Millisecond, r.Targets["t"].Steps[0].Duration)
}
