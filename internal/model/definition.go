// Package model defines the data structures for loop definitions, execution
// state, and the append-only event log.
package model

// LoopDefinition is the author-supplied, immutable description of one loop.
// Presentation-only sections (ui, skill_ui, metadata) are accepted and carried
// verbatim; the engine never interprets them.
type LoopDefinition struct {
	SchemaVersion int            `yaml:"schema_version"`
	FileType      string         `yaml:"file_type"`
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	Version       string         `yaml:"version"`
	Description   string         `yaml:"description"`
	Phases        []Phase        `yaml:"phases"`
	Gates         []Gate         `yaml:"gates"`
	Defaults      Defaults       `yaml:"defaults"`
	UI            map[string]any `yaml:"ui,omitempty"`
	SkillUI       map[string]any `yaml:"skill_ui,omitempty"`
	Metadata      map[string]any `yaml:"metadata,omitempty"`
}

// Phase is one canonically-ordered stage of a loop.
type Phase struct {
	Tag      PhaseTag `yaml:"tag"`
	SkillIDs []string `yaml:"skills"`
	Required bool     `yaml:"required"`
	// Skippable lists skill ids that may be skipped individually even when
	// the phase itself is required.
	Skippable []string `yaml:"skippable,omitempty"`
}

// SkillSkippable reports whether the named skill may be skipped on its own.
func (p Phase) SkillSkippable(skillID string) bool {
	for _, s := range p.Skippable {
		if s == skillID {
			return true
		}
	}
	return false
}

// Gate is a checkpoint placed after a phase. The next phase may not begin
// until the gate clears (or the gate is optional and rejected).
type Gate struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	AfterPhase   PhaseTag `yaml:"after_phase"`
	Required     bool     `yaml:"required"`
	Approval     Approval `yaml:"approval"`
	Deliverables []string `yaml:"deliverables,omitempty"`
}

type Defaults struct {
	Mode     Mode     `yaml:"mode"`
	Autonomy Autonomy `yaml:"autonomy"`
}

// PhaseIndex returns the index of the phase with the given tag, or -1.
func (d *LoopDefinition) PhaseIndex(tag PhaseTag) int {
	for i, p := range d.Phases {
		if p.Tag == tag {
			return i
		}
	}
	return -1
}

// GateAfter returns the gate declared after the given phase tag, or nil.
// Definitions hold at most one gate per phase boundary; validation rejects
// duplicates.
func (d *LoopDefinition) GateAfter(tag PhaseTag) *Gate {
	for i := range d.Gates {
		if d.Gates[i].AfterPhase == tag {
			return &d.Gates[i]
		}
	}
	return nil
}

// GateByID returns the gate with the given id, or nil.
func (d *LoopDefinition) GateByID(id string) *Gate {
	for i := range d.Gates {
		if d.Gates[i].ID == id {
			return &d.Gates[i]
		}
	}
	return nil
}

// TotalSteps counts every skill across every phase.
func (d *LoopDefinition) TotalSteps() int {
	n := 0
	for _, p := range d.Phases {
		n += len(p.SkillIDs)
	}
	return n
}
