package model

// StepKey addresses one skill occurrence within a run.
type StepKey struct {
	Phase int
	Step  int
}

// ExecutionState is the mutable record of a single loop run. It is owned by
// exactly one engine instance and mutated only through that engine's
// serialized entry points. Once RunStatus is terminal the state is never
// mutated again; reset replaces it with a fresh one.
type ExecutionState struct {
	RunID             string
	LoopID            string
	Autonomy          Autonomy
	CurrentPhaseIndex int
	Steps             map[StepKey]StepStatus
	Gates             map[string]GateStatus
	// PhaseDone marks phases whose completion event has been recorded, so a
	// completePhase retry against a pending gate does not double-log.
	PhaseDone map[int]bool
	RunStatus RunStatus
	Log       []LogEvent
	NextSeq   int
}

// NewExecutionState builds the initial state for a validated definition:
// every step pending, every gate pending, run active at phase 0.
func NewExecutionState(def *LoopDefinition, runID string, autonomy Autonomy) *ExecutionState {
	st := &ExecutionState{
		RunID:     runID,
		LoopID:    def.ID,
		Autonomy:  autonomy,
		RunStatus: RunActive,
		Steps:     make(map[StepKey]StepStatus, def.TotalSteps()),
		Gates:     make(map[string]GateStatus, len(def.Gates)),
		PhaseDone: make(map[int]bool, len(def.Phases)),
		NextSeq:   1,
	}
	for pi, phase := range def.Phases {
		for si := range phase.SkillIDs {
			st.Steps[StepKey{Phase: pi, Step: si}] = StepPending
		}
	}
	for _, g := range def.Gates {
		st.Gates[g.ID] = GatePending
	}
	return st
}

// Append records an event, stamping its logical sequence number.
func (s *ExecutionState) Append(ev LogEvent) LogEvent {
	ev.Seq = s.NextSeq
	s.NextSeq++
	s.Log = append(s.Log, ev)
	return ev
}

// PhaseResolved reports whether every step of the phase is completed or
// skipped. A failed step means the phase can never resolve.
func (s *ExecutionState) PhaseResolved(def *LoopDefinition, phaseIdx int) bool {
	if phaseIdx < 0 || phaseIdx >= len(def.Phases) {
		return false
	}
	for si := range def.Phases[phaseIdx].SkillIDs {
		st := s.Steps[StepKey{Phase: phaseIdx, Step: si}]
		if st != StepCompleted && st != StepSkipped {
			return false
		}
	}
	return true
}

// Snapshot is the read-only view returned by every engine mutator.
// NewEvents holds only the entries appended by the call that produced it.
type Snapshot struct {
	RunID             string
	LoopID            string
	Autonomy          Autonomy
	RunStatus         RunStatus
	CurrentPhaseIndex int
	Steps             map[StepKey]StepStatus
	Gates             map[string]GateStatus
	Events            []LogEvent
	NewEvents         []LogEvent
}

// Snapshot copies the state into an independent read-only view.
func (s *ExecutionState) Snapshot(newEvents []LogEvent) Snapshot {
	steps := make(map[StepKey]StepStatus, len(s.Steps))
	for k, v := range s.Steps {
		steps[k] = v
	}
	gates := make(map[string]GateStatus, len(s.Gates))
	for k, v := range s.Gates {
		gates[k] = v
	}
	events := make([]LogEvent, len(s.Log))
	copy(events, s.Log)
	var appended []LogEvent
	if len(newEvents) > 0 {
		appended = make([]LogEvent, len(newEvents))
		copy(appended, newEvents)
	}
	return Snapshot{
		RunID:             s.RunID,
		LoopID:            s.LoopID,
		Autonomy:          s.Autonomy,
		RunStatus:         s.RunStatus,
		CurrentPhaseIndex: s.CurrentPhaseIndex,
		Steps:             steps,
		Gates:             gates,
		Events:            events,
		NewEvents:         appended,
	}
}
