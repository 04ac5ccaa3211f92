package model

import "fmt"

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

type GateStatus string

const (
	GatePending  GateStatus = "pending"
	GateCleared  GateStatus = "cleared"
	GateRejected GateStatus = "rejected"
)

type RunStatus string

const (
	RunActive    RunStatus = "active"
	RunBlocked   RunStatus = "blocked"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Mode distinguishes a loop starting from nothing from one applied to an
// existing codebase. The engine records it but does not branch on it.
type Mode string

const (
	ModeGreenfield Mode = "greenfield"
	ModeBrownfield Mode = "brownfield"
)

// Autonomy governs whether human gates wait for an explicit decision.
type Autonomy string

const (
	AutonomySupervised     Autonomy = "supervised"
	AutonomySemiAutonomous Autonomy = "semi_autonomous"
	AutonomyAutonomous     Autonomy = "autonomous"
)

// Approval is the gate kind: who or what clears it.
type Approval string

const (
	ApprovalHuman       Approval = "human"
	ApprovalConditional Approval = "conditional"
	ApprovalAutomated   Approval = "automated"
)

var terminalStepStatuses = map[StepStatus]bool{
	StepCompleted: true,
	StepSkipped:   true,
	StepFailed:    true,
}

var terminalGateStatuses = map[GateStatus]bool{
	GateCleared:  true,
	GateRejected: true,
}

var terminalRunStatuses = map[RunStatus]bool{
	RunCompleted: true,
	RunFailed:    true,
}

var validStepTransitions = map[StepStatus]map[StepStatus]bool{
	StepPending: {
		StepActive:    true,
		StepCompleted: true,
		StepSkipped:   true,
		StepFailed:    true,
	},
	StepActive: {
		StepCompleted: true,
		StepSkipped:   true,
		StepFailed:    true,
	},
}

var validGateTransitions = map[GateStatus]map[GateStatus]bool{
	GatePending: {
		GateCleared:  true,
		GateRejected: true,
	},
}

// blocked → active happens when the blocking gate is approved;
// there is no transition back below the current phase.
var validRunTransitions = map[RunStatus]map[RunStatus]bool{
	RunActive: {
		RunBlocked:   true,
		RunCompleted: true,
		RunFailed:    true,
	},
	RunBlocked: {
		RunActive: true,
		RunFailed: true,
	},
}

func IsStepTerminal(s StepStatus) bool {
	return terminalStepStatuses[s]
}

func IsGateTerminal(s GateStatus) bool {
	return terminalGateStatuses[s]
}

func IsRunTerminal(s RunStatus) bool {
	return terminalRunStatuses[s]
}

func ValidateStepTransition(from, to StepStatus) error {
	if IsStepTerminal(from) {
		return fmt.Errorf("cannot transition from terminal step status %q", from)
	}
	allowed, ok := validStepTransitions[from]
	if !ok {
		return fmt.Errorf("unknown step status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid step transition: %q → %q", from, to)
	}
	return nil
}

func ValidateGateTransition(from, to GateStatus) error {
	if IsGateTerminal(from) {
		return fmt.Errorf("cannot transition from terminal gate status %q", from)
	}
	allowed, ok := validGateTransitions[from]
	if !ok {
		return fmt.Errorf("unknown gate status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid gate transition: %q → %q", from, to)
	}
	return nil
}

func ValidateRunTransition(from, to RunStatus) error {
	if IsRunTerminal(from) {
		return fmt.Errorf("cannot transition from terminal run status %q", from)
	}
	allowed, ok := validRunTransitions[from]
	if !ok {
		return fmt.Errorf("unknown run status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid run transition: %q → %q", from, to)
	}
	return nil
}

func ValidMode(m Mode) bool {
	return m == ModeGreenfield || m == ModeBrownfield
}

func ValidAutonomy(a Autonomy) bool {
	return a == AutonomySupervised || a == AutonomySemiAutonomous || a == AutonomyAutonomous
}

func ValidApproval(a Approval) bool {
	return a == ApprovalHuman || a == ApprovalConditional || a == ApprovalAutomated
}
