package model

// EventCategory groups log events by the kind of state they touched.
type EventCategory string

const (
	CategorySkill EventCategory = "skill"
	CategoryGate  EventCategory = "gate"
	CategoryPhase EventCategory = "phase"
	CategoryRun   EventCategory = "run"
)

// EventAction names the transition the event records. Together with the
// category it is sufficient to replay the event against a fresh state.
type EventAction string

const (
	ActionCompleted EventAction = "completed"
	ActionSkipped   EventAction = "skipped"
	ActionFailed    EventAction = "failed"
	ActionCleared   EventAction = "cleared"
	ActionRejected  EventAction = "rejected"
	ActionAdvanced  EventAction = "advanced"
	ActionBlocked   EventAction = "blocked"
)

// LogEvent is one entry in a run's append-only log. Seq is a per-run logical
// clock and the sole ordering guarantee; wall-clock time is never consulted.
type LogEvent struct {
	ID         string        `yaml:"id" json:"id"`
	Seq        int           `yaml:"seq" json:"seq"`
	Category   EventCategory `yaml:"category" json:"category"`
	Action     EventAction   `yaml:"action" json:"action"`
	PhaseTag   PhaseTag      `yaml:"phase" json:"phase"`
	PhaseIndex int           `yaml:"phase_index" json:"phase_index"`
	StepIndex  int           `yaml:"step_index,omitempty" json:"step_index,omitempty"`
	SkillID    string        `yaml:"skill_id,omitempty" json:"skill_id,omitempty"`
	GateID     string        `yaml:"gate_id,omitempty" json:"gate_id,omitempty"`
	Message    string        `yaml:"message,omitempty" json:"message,omitempty"`
	DurationMs int64         `yaml:"duration_ms,omitempty" json:"duration_ms,omitempty"`
}
