package engine

import (
	"context"

	"github.com/loopline/loopline/internal/model"
)

// Outcome is the tagged result of executing one step. How the work happened
// is external to this engine; only the outcome matters here.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// StepResult carries a step's outcome back into the engine.
type StepResult struct {
	Outcome    Outcome
	Detail     string
	DurationMs int64
}

// StepRunner performs the work of a single step. Implementations wrap an
// operator, an automation harness, or nothing at all.
type StepRunner interface {
	RunStep(ctx context.Context, phase model.Phase, skillID string) StepResult
}

// NopRunner reports instant success for every step. The playback controller
// defaults to it for dry-run visualization.
type NopRunner struct{}

func (NopRunner) RunStep(ctx context.Context, phase model.Phase, skillID string) StepResult {
	return StepResult{Outcome: OutcomeSucceeded}
}
