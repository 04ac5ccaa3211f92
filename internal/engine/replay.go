package engine

import (
	"fmt"

	"github.com/loopline/loopline/internal/model"
)

// Replay folds an event log back into execution state. The log is the
// authoritative record: replaying it against the same definition yields a
// state equivalent to the one that produced it.
func Replay(def *model.LoopDefinition, runID string, autonomy model.Autonomy, log []model.LogEvent) (*model.ExecutionState, error) {
	st := model.NewExecutionState(def, runID, autonomy)

	lastSeq := 0
	for _, ev := range log {
		if ev.Seq <= lastSeq {
			return nil, fmt.Errorf("event %q out of order: seq %d after %d", ev.ID, ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq
		if err := applyEvent(def, st, ev); err != nil {
			return nil, err
		}
		st.Log = append(st.Log, ev)
	}
	st.NextSeq = lastSeq + 1
	return st, nil
}

func applyEvent(def *model.LoopDefinition, st *model.ExecutionState, ev model.LogEvent) error {
	switch ev.Category {
	case model.CategorySkill:
		key := model.StepKey{Phase: ev.PhaseIndex, Step: ev.StepIndex}
		if _, ok := st.Steps[key]; !ok {
			return fmt.Errorf("event %q references unknown step %d/%d", ev.ID, ev.PhaseIndex, ev.StepIndex)
		}
		switch ev.Action {
		case model.ActionCompleted:
			st.Steps[key] = model.StepCompleted
		case model.ActionSkipped:
			st.Steps[key] = model.StepSkipped
		case model.ActionFailed:
			st.Steps[key] = model.StepFailed
		default:
			return fmt.Errorf("event %q: action %q not valid for skill events", ev.ID, ev.Action)
		}

	case model.CategoryGate:
		if _, ok := st.Gates[ev.GateID]; !ok {
			return fmt.Errorf("event %q references unknown gate %q", ev.ID, ev.GateID)
		}
		switch ev.Action {
		case model.ActionCleared:
			st.Gates[ev.GateID] = model.GateCleared
		case model.ActionRejected:
			st.Gates[ev.GateID] = model.GateRejected
		default:
			return fmt.Errorf("event %q: action %q not valid for gate events", ev.ID, ev.Action)
		}

	case model.CategoryPhase:
		switch ev.Action {
		case model.ActionCompleted:
			st.PhaseDone[ev.PhaseIndex] = true
		case model.ActionAdvanced:
			if ev.PhaseIndex+1 >= len(def.Phases) {
				return fmt.Errorf("event %q advances past the final phase", ev.ID)
			}
			st.CurrentPhaseIndex = ev.PhaseIndex + 1
			st.RunStatus = model.RunActive
		default:
			return fmt.Errorf("event %q: action %q not valid for phase events", ev.ID, ev.Action)
		}

	case model.CategoryRun:
		switch ev.Action {
		case model.ActionBlocked:
			st.RunStatus = model.RunBlocked
		case model.ActionCompleted:
			st.RunStatus = model.RunCompleted
		case model.ActionFailed:
			st.RunStatus = model.RunFailed
		default:
			return fmt.Errorf("event %q: action %q not valid for run events", ev.ID, ev.Action)
		}

	default:
		return fmt.Errorf("event %q has unknown category %q", ev.ID, ev.Category)
	}
	return nil
}
