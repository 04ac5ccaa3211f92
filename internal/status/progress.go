// Package status derives human-facing progress views from engine snapshots.
// Everything here is a pure projection: recomputing from the same snapshot
// always yields the same report, and nothing feeds back into the engine.
package status

import (
	"github.com/loopline/loopline/internal/model"
)

// Progress summarizes how far a run has come.
type Progress struct {
	Completed int     `json:"completed"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// PhaseProgress is the per-phase breakdown shown in reports.
type PhaseProgress struct {
	Tag      model.PhaseTag `json:"tag"`
	Index    int            `json:"index"`
	Current  bool           `json:"current"`
	Progress Progress       `json:"progress"`
	Steps    []StepReport   `json:"steps"`
}

// StepReport is one step's line in a report.
type StepReport struct {
	SkillID string           `json:"skill_id"`
	Status  model.StepStatus `json:"status"`
}

// GateReport is one gate's line in a report.
type GateReport struct {
	ID         string           `json:"id"`
	AfterPhase model.PhaseTag   `json:"after_phase"`
	Required   bool             `json:"required"`
	Approval   model.Approval   `json:"approval"`
	Status     model.GateStatus `json:"status"`
}

// Report is the full projection of one snapshot.
type Report struct {
	RunID     string          `json:"run_id"`
	LoopID    string          `json:"loop_id"`
	RunStatus model.RunStatus `json:"run_status"`
	Autonomy  model.Autonomy  `json:"autonomy"`
	Overall   Progress        `json:"overall"`
	Phases    []PhaseProgress `json:"phases"`
	Gates     []GateReport    `json:"gates"`
	Events    int             `json:"events"`
}

// Overall computes run-wide progress. Skipped steps count toward the
// denominator and the resolved numerator, so a fully-skipped optional phase
// still reads as progress.
func Overall(def *model.LoopDefinition, snap model.Snapshot) Progress {
	var p Progress
	for pi, phase := range def.Phases {
		for si := range phase.SkillIDs {
			tally(&p, snap.Steps[model.StepKey{Phase: pi, Step: si}])
		}
	}
	finish(&p)
	return p
}

// Build projects a snapshot into a full report.
func Build(def *model.LoopDefinition, snap model.Snapshot) Report {
	r := Report{
		RunID:     snap.RunID,
		LoopID:    snap.LoopID,
		RunStatus: snap.RunStatus,
		Autonomy:  snap.Autonomy,
		Overall:   Overall(def, snap),
		Events:    len(snap.Events),
	}

	for pi, phase := range def.Phases {
		pp := PhaseProgress{
			Tag:     phase.Tag,
			Index:   pi,
			Current: pi == snap.CurrentPhaseIndex,
		}
		for si, skillID := range phase.SkillIDs {
			st := snap.Steps[model.StepKey{Phase: pi, Step: si}]
			tally(&pp.Progress, st)
			pp.Steps = append(pp.Steps, StepReport{SkillID: skillID, Status: st})
		}
		finish(&pp.Progress)
		r.Phases = append(r.Phases, pp)
	}

	for _, g := range def.Gates {
		r.Gates = append(r.Gates, GateReport{
			ID:         g.ID,
			AfterPhase: g.AfterPhase,
			Required:   g.Required,
			Approval:   g.Approval,
			Status:     snap.Gates[g.ID],
		})
	}
	return r
}

func tally(p *Progress, st model.StepStatus) {
	p.Total++
	switch st {
	case model.StepCompleted:
		p.Completed++
	case model.StepSkipped:
		p.Skipped++
	case model.StepFailed:
		p.Failed++
	}
}

func finish(p *Progress) {
	if p.Total == 0 {
		return
	}
	p.Percent = float64(p.Completed+p.Skipped) / float64(p.Total) * 100
}
