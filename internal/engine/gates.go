package engine

import (
	"fmt"

	"github.com/loopline/loopline/internal/model"
)

type gateDecision int

const (
	decisionWait gateDecision = iota
	decisionClear
	decisionReject
)

// Predicate decides a conditional gate from runtime state. It must be pure:
// no side effects, re-evaluated on every completePhase retry.
type Predicate func(gate model.Gate, def *model.LoopDefinition, st *model.ExecutionState) bool

// CheckFunc is the pass/fail check a step runner supplies for an automated
// gate. The string is a human-readable detail recorded in the log.
type CheckFunc func() (bool, string)

// gateEvaluator decides one gate kind. Evaluators are registered per
// approval type when the engine is constructed.
type gateEvaluator interface {
	Evaluate(gate model.Gate, def *model.LoopDefinition, st *model.ExecutionState) (gateDecision, string)
}

// humanEvaluator waits for an explicit decision unless the run is fully
// autonomous, in which case it clears immediately (still logged, and
// published as a distinct notification event).
type humanEvaluator struct{}

func (humanEvaluator) Evaluate(gate model.Gate, def *model.LoopDefinition, st *model.ExecutionState) (gateDecision, string) {
	if st.Autonomy == model.AutonomyAutonomous {
		return decisionClear, "auto-cleared under autonomous policy"
	}
	return decisionWait, fmt.Sprintf("waiting for approval of gate %q", gate.ID)
}

// conditionalEvaluator runs the gate's predicate. Without a registered
// predicate it falls back to the built-in one: the gated phase must have
// executed at least one non-skipped step.
type conditionalEvaluator struct {
	predicates map[string]Predicate
}

func (ev conditionalEvaluator) Evaluate(gate model.Gate, def *model.LoopDefinition, st *model.ExecutionState) (gateDecision, string) {
	pred, ok := ev.predicates[gate.ID]
	if !ok {
		pred = PhaseExecutedPredicate
	}
	if pred(gate, def, st) {
		return decisionClear, "condition satisfied"
	}
	return decisionWait, fmt.Sprintf("condition for gate %q not yet satisfied", gate.ID)
}

// automatedEvaluator runs the supplied check. Pass clears, fail rejects
// terminally. Without a check the gate waits; the step runner has not
// reported yet.
type automatedEvaluator struct {
	checks map[string]CheckFunc
}

func (ev automatedEvaluator) Evaluate(gate model.Gate, def *model.LoopDefinition, st *model.ExecutionState) (gateDecision, string) {
	check, ok := ev.checks[gate.ID]
	if !ok {
		return decisionWait, fmt.Sprintf("no check registered for gate %q", gate.ID)
	}
	pass, detail := check()
	if pass {
		if detail == "" {
			detail = "check passed"
		}
		return decisionClear, detail
	}
	if detail == "" {
		detail = "check failed"
	}
	return decisionReject, detail
}

// PhaseExecutedPredicate is the built-in conditional: true once the phase
// the gate follows has at least one completed (not skipped) step.
func PhaseExecutedPredicate(gate model.Gate, def *model.LoopDefinition, st *model.ExecutionState) bool {
	idx := def.PhaseIndex(gate.AfterPhase)
	if idx < 0 {
		return false
	}
	for si := range def.Phases[idx].SkillIDs {
		if st.Steps[model.StepKey{Phase: idx, Step: si}] == model.StepCompleted {
			return true
		}
	}
	return false
}
