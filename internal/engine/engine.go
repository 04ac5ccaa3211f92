// Package engine advances a validated loop definition through its phases,
// steps, and gates. Every mutation goes through one serialized entry point
// per engine instance, appends to the run's event log, and returns a
// read-only snapshot.
package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/loopline/loopline/internal/events"
	"github.com/loopline/loopline/internal/model"
)

// Engine owns the execution state of exactly one run. Instances are
// independent; many may run in one process without shared state.
type Engine struct {
	mu         sync.Mutex
	def        *model.LoopDefinition
	state      *model.ExecutionState
	autonomy   model.Autonomy
	bus        *events.Bus
	logger     *log.Logger
	evaluators map[model.Approval]gateEvaluator
	predicates map[string]Predicate
	checks     map[string]CheckFunc
}

// New creates an engine for a definition that already passed validation.
// An empty autonomy falls back to the definition's default.
func New(def *model.LoopDefinition, autonomy model.Autonomy) (*Engine, error) {
	if len(def.Phases) == 0 {
		return nil, fmt.Errorf("definition %q has no phases; validate before starting", def.ID)
	}
	if autonomy == "" {
		autonomy = def.Defaults.Autonomy
	}
	if !model.ValidAutonomy(autonomy) {
		return nil, fmt.Errorf("invalid autonomy %q", autonomy)
	}

	runID, err := model.GenerateID(model.IDTypeRun)
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	e := &Engine{
		def:        def,
		state:      model.NewExecutionState(def, runID, autonomy),
		autonomy:   autonomy,
		predicates: make(map[string]Predicate),
		checks:     make(map[string]CheckFunc),
	}
	e.evaluators = map[model.Approval]gateEvaluator{
		model.ApprovalHuman:       humanEvaluator{},
		model.ApprovalConditional: conditionalEvaluator{predicates: e.predicates},
		model.ApprovalAutomated:   automatedEvaluator{checks: e.checks},
	}
	return e, nil
}

// SetBus attaches a notification bus. The bus is best-effort; the run log
// remains the authoritative record.
func (e *Engine) SetBus(bus *events.Bus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bus = bus
}

func (e *Engine) SetLogger(logger *log.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

// SetGatePredicate overrides the built-in condition for a conditional gate.
func (e *Engine) SetGatePredicate(gateID string, pred Predicate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.predicates[gateID] = pred
}

// SetGateCheck registers the pass/fail check for an automated gate. Until a
// check is registered the gate waits.
func (e *Engine) SetGateCheck(gateID string, check CheckFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checks[gateID] = check
}

func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.RunID
}

func (e *Engine) Definition() *model.LoopDefinition {
	return e.def
}

// Snapshot returns the current read-only view without mutating anything.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Snapshot(nil)
}

// CompleteStep marks a pending or active step completed. If this resolves
// the current phase, gate evaluation and phase advancement follow in the
// same atomic call.
func (e *Engine) CompleteStep(phaseIdx, stepIdx int) (model.Snapshot, error) {
	return e.CompleteStepTimed(phaseIdx, stepIdx, 0)
}

// CompleteStepTimed is CompleteStep with a recorded duration.
func (e *Engine) CompleteStepTimed(phaseIdx, stepIdx int, durationMs int64) (model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "complete_step"

	if err := e.guardRun(op); err != nil {
		return e.state.Snapshot(nil), err
	}
	skillID, err := e.stepAt(op, phaseIdx, stepIdx)
	if err != nil {
		return e.state.Snapshot(nil), err
	}
	key := model.StepKey{Phase: phaseIdx, Step: stepIdx}
	if err := model.ValidateStepTransition(e.state.Steps[key], model.StepCompleted); err != nil {
		return e.state.Snapshot(nil), transitionErr(op, "step %q: %v", skillID, err)
	}

	e.state.Steps[key] = model.StepCompleted
	appended := e.appendEvent(nil, model.LogEvent{
		Category:   model.CategorySkill,
		Action:     model.ActionCompleted,
		PhaseTag:   e.def.Phases[phaseIdx].Tag,
		PhaseIndex: phaseIdx,
		StepIndex:  stepIdx,
		SkillID:    skillID,
		DurationMs: durationMs,
	})
	e.publish(events.EventStepCompleted, map[string]any{"skill_id": skillID})

	appended = e.maybeCompleteCurrentPhase(appended)
	return e.state.Snapshot(appended), nil
}

// SkipStep marks a step skipped. Only steps of optional phases, or skills
// the definition lists as individually skippable, may be skipped.
func (e *Engine) SkipStep(phaseIdx, stepIdx int) (model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "skip_step"

	if err := e.guardRun(op); err != nil {
		return e.state.Snapshot(nil), err
	}
	skillID, err := e.stepAt(op, phaseIdx, stepIdx)
	if err != nil {
		return e.state.Snapshot(nil), err
	}
	phase := e.def.Phases[phaseIdx]
	if phase.Required && !phase.SkillSkippable(skillID) {
		return e.state.Snapshot(nil), transitionErr(op, "step %q of required phase %q is not skippable", skillID, phase.Tag)
	}
	key := model.StepKey{Phase: phaseIdx, Step: stepIdx}
	if err := model.ValidateStepTransition(e.state.Steps[key], model.StepSkipped); err != nil {
		return e.state.Snapshot(nil), transitionErr(op, "step %q: %v", skillID, err)
	}

	e.state.Steps[key] = model.StepSkipped
	appended := e.appendEvent(nil, model.LogEvent{
		Category:   model.CategorySkill,
		Action:     model.ActionSkipped,
		PhaseTag:   phase.Tag,
		PhaseIndex: phaseIdx,
		StepIndex:  stepIdx,
		SkillID:    skillID,
	})
	e.publish(events.EventStepSkipped, map[string]any{"skill_id": skillID})

	appended = e.maybeCompleteCurrentPhase(appended)
	return e.state.Snapshot(appended), nil
}

// FailStep records a step failure reported by the step runner. A failed
// step fails the run.
func (e *Engine) FailStep(phaseIdx, stepIdx int, reason string) (model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "fail_step"

	if err := e.guardRun(op); err != nil {
		return e.state.Snapshot(nil), err
	}
	skillID, err := e.stepAt(op, phaseIdx, stepIdx)
	if err != nil {
		return e.state.Snapshot(nil), err
	}
	key := model.StepKey{Phase: phaseIdx, Step: stepIdx}
	if err := model.ValidateStepTransition(e.state.Steps[key], model.StepFailed); err != nil {
		return e.state.Snapshot(nil), transitionErr(op, "step %q: %v", skillID, err)
	}

	e.state.Steps[key] = model.StepFailed
	appended := e.appendEvent(nil, model.LogEvent{
		Category:   model.CategorySkill,
		Action:     model.ActionFailed,
		PhaseTag:   e.def.Phases[phaseIdx].Tag,
		PhaseIndex: phaseIdx,
		StepIndex:  stepIdx,
		SkillID:    skillID,
		Message:    reason,
	})
	e.publish(events.EventStepFailed, map[string]any{"skill_id": skillID, "reason": reason})

	appended = e.failRunLocked(appended, fmt.Sprintf("step %q failed", skillID))
	return e.state.Snapshot(appended), nil
}

// SkipPhase skips every unresolved step of an optional phase in one batch,
// so phase completion still implies all steps resolved.
func (e *Engine) SkipPhase(phaseIdx int) (model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "skip_phase"

	if err := e.guardRun(op); err != nil {
		return e.state.Snapshot(nil), err
	}
	if phaseIdx < 0 || phaseIdx >= len(e.def.Phases) {
		return e.state.Snapshot(nil), transitionErr(op, "phase index %d out of range", phaseIdx)
	}
	phase := e.def.Phases[phaseIdx]
	if phase.Required {
		return e.state.Snapshot(nil), transitionErr(op, "phase %q is required", phase.Tag)
	}

	var appended []model.LogEvent
	for si, skillID := range phase.SkillIDs {
		key := model.StepKey{Phase: phaseIdx, Step: si}
		if model.IsStepTerminal(e.state.Steps[key]) {
			continue
		}
		e.state.Steps[key] = model.StepSkipped
		appended = e.appendEvent(appended, model.LogEvent{
			Category:   model.CategorySkill,
			Action:     model.ActionSkipped,
			PhaseTag:   phase.Tag,
			PhaseIndex: phaseIdx,
			StepIndex:  si,
			SkillID:    skillID,
			Message:    "phase skipped",
		})
		e.publish(events.EventStepSkipped, map[string]any{"skill_id": skillID})
	}

	appended = e.maybeCompleteCurrentPhase(appended)
	return e.state.Snapshot(appended), nil
}

// CompletePhase marks the current phase done once every step is resolved,
// then evaluates the boundary gate and advances when nothing blocks.
// Retrying against a pending conditional gate re-evaluates the condition.
func (e *Engine) CompletePhase(phaseIdx int) (model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "complete_phase"

	if err := e.guardRun(op); err != nil {
		return e.state.Snapshot(nil), err
	}
	appended, err := e.completePhaseLocked(phaseIdx, nil)
	if err != nil {
		return e.state.Snapshot(nil), err
	}
	return e.state.Snapshot(appended), nil
}

// AdvancePhase moves the run forward across an already-cleared boundary.
func (e *Engine) AdvancePhase() (model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "advance_phase"

	if err := e.guardRun(op); err != nil {
		return e.state.Snapshot(nil), err
	}
	cur := e.state.CurrentPhaseIndex
	phase := e.def.Phases[cur]
	if !e.state.PhaseDone[cur] {
		return e.state.Snapshot(nil), transitionErr(op, "phase %q is not complete", phase.Tag)
	}
	if gate := e.def.GateAfter(phase.Tag); gate != nil {
		switch e.state.Gates[gate.ID] {
		case model.GatePending:
			return e.state.Snapshot(nil), transitionErr(op, "gate %q is pending", gate.ID)
		case model.GateRejected:
			if gate.Required {
				return e.state.Snapshot(nil), transitionErr(op, "required gate %q is rejected", gate.ID)
			}
		}
	}

	appended := e.advanceLocked(nil)
	return e.state.Snapshot(appended), nil
}

// ApproveGate records an explicit approval. If the gate was blocking the
// current phase boundary the run advances in the same call.
func (e *Engine) ApproveGate(gateID string) (model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "approve_gate"

	if err := e.guardRun(op); err != nil {
		return e.state.Snapshot(nil), err
	}
	gate := e.def.GateByID(gateID)
	if gate == nil {
		return e.state.Snapshot(nil), transitionErr(op, "unknown gate %q", gateID)
	}
	if err := model.ValidateGateTransition(e.state.Gates[gate.ID], model.GateCleared); err != nil {
		return e.state.Snapshot(nil), transitionErr(op, "gate %q: %v", gateID, err)
	}

	e.state.Gates[gate.ID] = model.GateCleared
	appended := e.appendEvent(nil, model.LogEvent{
		Category:   model.CategoryGate,
		Action:     model.ActionCleared,
		PhaseTag:   gate.AfterPhase,
		PhaseIndex: e.def.PhaseIndex(gate.AfterPhase),
		GateID:     gate.ID,
		Message:    "approved",
	})
	e.publish(events.EventGateCleared, map[string]any{"gate_id": gate.ID})

	cur := e.state.CurrentPhaseIndex
	if e.state.PhaseDone[cur] && e.def.Phases[cur].Tag == gate.AfterPhase {
		appended = e.advanceLocked(appended)
	}
	return e.state.Snapshot(appended), nil
}

// RejectGate records an explicit rejection. Rejecting a required gate
// blocks the run (or fails it for automated gates); the decision stands
// until reset.
func (e *Engine) RejectGate(gateID, reason string) (model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "reject_gate"

	if err := e.guardRun(op); err != nil {
		return e.state.Snapshot(nil), err
	}
	gate := e.def.GateByID(gateID)
	if gate == nil {
		return e.state.Snapshot(nil), transitionErr(op, "unknown gate %q", gateID)
	}
	if err := model.ValidateGateTransition(e.state.Gates[gate.ID], model.GateRejected); err != nil {
		return e.state.Snapshot(nil), transitionErr(op, "gate %q: %v", gateID, err)
	}

	e.state.Gates[gate.ID] = model.GateRejected
	appended := e.appendEvent(nil, model.LogEvent{
		Category:   model.CategoryGate,
		Action:     model.ActionRejected,
		PhaseTag:   gate.AfterPhase,
		PhaseIndex: e.def.PhaseIndex(gate.AfterPhase),
		GateID:     gate.ID,
		Message:    reason,
	})
	e.publish(events.EventGateRejected, map[string]any{"gate_id": gate.ID, "reason": reason})

	if gate.Required {
		if gate.Approval == model.ApprovalAutomated {
			appended = e.failRunLocked(appended, fmt.Sprintf("required gate %q rejected", gate.ID))
		} else if e.state.RunStatus == model.RunActive {
			e.state.RunStatus = model.RunBlocked
			appended = e.appendEvent(appended, model.LogEvent{
				Category:   model.CategoryRun,
				Action:     model.ActionBlocked,
				PhaseTag:   gate.AfterPhase,
				PhaseIndex: e.def.PhaseIndex(gate.AfterPhase),
				GateID:     gate.ID,
				Message:    fmt.Sprintf("blocked on rejected gate %q", gate.ID),
			})
			e.publish(events.EventRunBlocked, map[string]any{"gate_id": gate.ID})
		}
	}
	return e.state.Snapshot(appended), nil
}

// Reset discards the execution state and starts the run over. Legal from
// any status, idempotent, and never corrupting: the old state is simply
// replaced.
func (e *Engine) Reset() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = model.NewExecutionState(e.def, e.state.RunID, e.autonomy)
	if e.logger != nil {
		e.logger.Printf("run %s reset", e.state.RunID)
	}
	return e.state.Snapshot(nil)
}

// --- internals (all called with e.mu held) ---

func (e *Engine) guardRun(op string) error {
	if model.IsRunTerminal(e.state.RunStatus) {
		return transitionErr(op, "run is %s", e.state.RunStatus)
	}
	return nil
}

func (e *Engine) stepAt(op string, phaseIdx, stepIdx int) (string, error) {
	if phaseIdx < 0 || phaseIdx >= len(e.def.Phases) {
		return "", transitionErr(op, "phase index %d out of range", phaseIdx)
	}
	phase := e.def.Phases[phaseIdx]
	if stepIdx < 0 || stepIdx >= len(phase.SkillIDs) {
		return "", transitionErr(op, "step index %d out of range for phase %q", stepIdx, phase.Tag)
	}
	return phase.SkillIDs[stepIdx], nil
}

func (e *Engine) appendEvent(list []model.LogEvent, ev model.LogEvent) []model.LogEvent {
	id, err := model.GenerateID(model.IDTypeEvent)
	if err != nil {
		// crypto/rand failure; fall back to a sequence-derived id rather
		// than dropping the audit entry
		id = fmt.Sprintf("evt_%010d_%08x", time.Now().Unix(), e.state.NextSeq)
	}
	ev.ID = id
	return append(list, e.state.Append(ev))
}

func (e *Engine) publish(eventType events.EventType, data map[string]any) {
	if e.bus == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["run_id"] = e.state.RunID
	e.bus.Publish(eventType, data)
}

// maybeCompleteCurrentPhase runs the completion chain when a step
// resolution finished the current phase of an active run.
func (e *Engine) maybeCompleteCurrentPhase(appended []model.LogEvent) []model.LogEvent {
	cur := e.state.CurrentPhaseIndex
	if e.state.RunStatus != model.RunActive || !e.state.PhaseResolved(e.def, cur) {
		return appended
	}
	appended, _ = e.completePhaseLocked(cur, appended)
	return appended
}

func (e *Engine) completePhaseLocked(phaseIdx int, appended []model.LogEvent) ([]model.LogEvent, error) {
	const op = "complete_phase"
	cur := e.state.CurrentPhaseIndex
	if phaseIdx != cur {
		return appended, transitionErr(op, "phase %d is not the current phase (%d)", phaseIdx, cur)
	}
	phase := e.def.Phases[phaseIdx]
	if !e.state.PhaseResolved(e.def, phaseIdx) {
		return appended, transitionErr(op, "phase %q has unresolved steps", phase.Tag)
	}

	if !e.state.PhaseDone[phaseIdx] {
		e.state.PhaseDone[phaseIdx] = true
		appended = e.appendEvent(appended, model.LogEvent{
			Category:   model.CategoryPhase,
			Action:     model.ActionCompleted,
			PhaseTag:   phase.Tag,
			PhaseIndex: phaseIdx,
		})
		e.publish(events.EventPhaseCompleted, map[string]any{"phase": string(phase.Tag)})
	}

	gate := e.def.GateAfter(phase.Tag)
	if gate != nil && e.state.Gates[gate.ID] == model.GatePending {
		appended = e.evaluateGateLocked(*gate, appended)
	}
	if model.IsRunTerminal(e.state.RunStatus) {
		return appended, nil
	}

	if e.canAdvanceLocked(gate) {
		appended = e.advanceLocked(appended)
	} else if gate != nil && e.state.Gates[gate.ID] == model.GatePending && e.state.RunStatus == model.RunActive {
		e.state.RunStatus = model.RunBlocked
		appended = e.appendEvent(appended, model.LogEvent{
			Category:   model.CategoryRun,
			Action:     model.ActionBlocked,
			PhaseTag:   phase.Tag,
			PhaseIndex: phaseIdx,
			GateID:     gate.ID,
			Message:    fmt.Sprintf("blocked on gate %q", gate.ID),
		})
		e.publish(events.EventRunBlocked, map[string]any{"gate_id": gate.ID})
	}
	return appended, nil
}

func (e *Engine) evaluateGateLocked(gate model.Gate, appended []model.LogEvent) []model.LogEvent {
	evaluator, ok := e.evaluators[gate.Approval]
	if !ok {
		return appended
	}
	decision, detail := evaluator.Evaluate(gate, e.def, e.state)
	idx := e.def.PhaseIndex(gate.AfterPhase)

	switch decision {
	case decisionClear:
		e.state.Gates[gate.ID] = model.GateCleared
		appended = e.appendEvent(appended, model.LogEvent{
			Category:   model.CategoryGate,
			Action:     model.ActionCleared,
			PhaseTag:   gate.AfterPhase,
			PhaseIndex: idx,
			GateID:     gate.ID,
			Message:    detail,
		})
		if gate.Approval == model.ApprovalHuman {
			// notification-class: an autonomous run cleared a human gate
			e.publish(events.EventGateAutoCleared, map[string]any{"gate_id": gate.ID})
		} else {
			e.publish(events.EventGateCleared, map[string]any{"gate_id": gate.ID})
		}

	case decisionReject:
		e.state.Gates[gate.ID] = model.GateRejected
		appended = e.appendEvent(appended, model.LogEvent{
			Category:   model.CategoryGate,
			Action:     model.ActionRejected,
			PhaseTag:   gate.AfterPhase,
			PhaseIndex: idx,
			GateID:     gate.ID,
			Message:    detail,
		})
		e.publish(events.EventGateRejected, map[string]any{"gate_id": gate.ID, "reason": detail})
		if gate.Required {
			appended = e.failRunLocked(appended, fmt.Sprintf("required gate %q rejected", gate.ID))
		}

	case decisionWait:
		if e.logger != nil {
			e.logger.Printf("run %s gate %s waiting: %s", e.state.RunID, gate.ID, detail)
		}
	}
	return appended
}

// canAdvanceLocked reports whether the boundary after the current phase
// permits advancing: no gate, a cleared gate, or an optional rejected gate.
func (e *Engine) canAdvanceLocked(gate *model.Gate) bool {
	if gate == nil {
		return true
	}
	switch e.state.Gates[gate.ID] {
	case model.GateCleared:
		return true
	case model.GateRejected:
		return !gate.Required
	}
	return false
}

func (e *Engine) advanceLocked(appended []model.LogEvent) []model.LogEvent {
	cur := e.state.CurrentPhaseIndex
	phase := e.def.Phases[cur]

	if phase.Tag == model.PhaseComplete {
		e.state.RunStatus = model.RunCompleted
		appended = e.appendEvent(appended, model.LogEvent{
			Category:   model.CategoryRun,
			Action:     model.ActionCompleted,
			PhaseTag:   phase.Tag,
			PhaseIndex: cur,
		})
		e.publish(events.EventRunCompleted, nil)
		return appended
	}

	e.state.CurrentPhaseIndex = cur + 1
	if e.state.RunStatus == model.RunBlocked {
		e.state.RunStatus = model.RunActive
	}
	appended = e.appendEvent(appended, model.LogEvent{
		Category:   model.CategoryPhase,
		Action:     model.ActionAdvanced,
		PhaseTag:   phase.Tag,
		PhaseIndex: cur,
		Message:    fmt.Sprintf("advanced to %q", e.def.Phases[cur+1].Tag),
	})
	e.publish(events.EventPhaseAdvanced, map[string]any{"phase": string(e.def.Phases[cur+1].Tag)})

	// Steps may have been completed ahead of the current phase; if the new
	// phase is already fully resolved the chain continues.
	if e.state.PhaseResolved(e.def, e.state.CurrentPhaseIndex) {
		appended, _ = e.completePhaseLocked(e.state.CurrentPhaseIndex, appended)
	}
	return appended
}

func (e *Engine) failRunLocked(appended []model.LogEvent, reason string) []model.LogEvent {
	if model.IsRunTerminal(e.state.RunStatus) {
		return appended
	}
	e.state.RunStatus = model.RunFailed
	appended = e.appendEvent(appended, model.LogEvent{
		Category:   model.CategoryRun,
		Action:     model.ActionFailed,
		PhaseTag:   e.def.Phases[e.state.CurrentPhaseIndex].Tag,
		PhaseIndex: e.state.CurrentPhaseIndex,
		Message:    reason,
	})
	e.publish(events.EventRunFailed, map[string]any{"reason": reason})
	return appended
}
