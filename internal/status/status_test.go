package status

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/loopline/loopline/internal/model"
)

func reportFixture() (*model.LoopDefinition, model.Snapshot) {
	def := &model.LoopDefinition{
		ID: "fixture_loop",
		Phases: []model.Phase{
			{Tag: model.PhaseInit, SkillIDs: []string{"spec"}, Required: true},
			{Tag: model.PhaseImplement, SkillIDs: []string{"build", "polish"}, Required: true},
			{Tag: model.PhaseComplete, SkillIDs: []string{"finish"}, Required: true},
		},
		Gates: []model.Gate{
			{ID: "spec_review", AfterPhase: model.PhaseInit, Required: true, Approval: model.ApprovalHuman},
		},
	}
	snap := model.Snapshot{
		RunID:             "run_0000000001_cafe0001",
		LoopID:            "fixture_loop",
		Autonomy:          model.AutonomySupervised,
		RunStatus:         model.RunActive,
		CurrentPhaseIndex: 1,
		Steps: map[model.StepKey]model.StepStatus{
			{Phase: 0, Step: 0}: model.StepCompleted,
			{Phase: 1, Step: 0}: model.StepCompleted,
			{Phase: 1, Step: 1}: model.StepSkipped,
			{Phase: 2, Step: 0}: model.StepPending,
		},
		Gates: map[string]model.GateStatus{"spec_review": model.GateCleared},
	}
	return def, snap
}

func TestOverallCountsSkippedAsResolved(t *testing.T) {
	def, snap := reportFixture()

	p := Overall(def, snap)
	if p.Total != 4 {
		t.Fatalf("total = %d, want 4", p.Total)
	}
	if p.Completed != 2 || p.Skipped != 1 || p.Failed != 0 {
		t.Fatalf("completed/skipped/failed = %d/%d/%d, want 2/1/0", p.Completed, p.Skipped, p.Failed)
	}
	if p.Percent != 75 {
		t.Fatalf("percent = %v, want 75", p.Percent)
	}
}

func TestOverallEmptyDefinition(t *testing.T) {
	p := Overall(&model.LoopDefinition{}, model.Snapshot{})
	if p.Total != 0 || p.Percent != 0 {
		t.Fatalf("empty definition: got %+v", p)
	}
}

func TestBuildMarksCurrentPhase(t *testing.T) {
	def, snap := reportFixture()

	r := Build(def, snap)
	if len(r.Phases) != 3 {
		t.Fatalf("phases = %d, want 3", len(r.Phases))
	}
	for i, pp := range r.Phases {
		want := i == 1
		if pp.Current != want {
			t.Errorf("phase %d current = %v, want %v", i, pp.Current, want)
		}
	}
	if len(r.Gates) != 1 || r.Gates[0].Status != model.GateCleared {
		t.Fatalf("gates = %+v", r.Gates)
	}
}

func TestRenderText(t *testing.T) {
	def, snap := reportFixture()

	var buf bytes.Buffer
	if err := Render(&buf, Build(def, snap), false); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"fixture_loop", "> implement", "spec_review", "3/4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderJSON(t *testing.T) {
	def, snap := reportFixture()

	var buf bytes.Buffer
	if err := Render(&buf, Build(def, snap), true); err != nil {
		t.Fatalf("render: %v", err)
	}

	var decoded Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RunID != snap.RunID {
		t.Errorf("run_id = %q, want %q", decoded.RunID, snap.RunID)
	}
	if decoded.Overall.Percent != 75 {
		t.Errorf("percent = %v, want 75", decoded.Overall.Percent)
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		name string
		p    Progress
		want string
	}{
		{"empty", Progress{Total: 4}, "[----------]"},
		{"half", Progress{Completed: 2, Total: 4}, "[#####-----]"},
		{"full", Progress{Completed: 3, Skipped: 1, Total: 4}, "[##########]"},
		{"zero total", Progress{}, "[----------]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Bar(tt.p, 10); got != tt.want {
				t.Errorf("Bar() = %q, want %q", got, tt.want)
			}
		})
	}
}
