package yaml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loopline/loopline/internal/model"
)

const sampleDefinition = `schema_version: 1
file_type: loop_definition
id: feature-loop
name: Feature Loop
version: "1.0"
phases:
  - tag: init
    skills: [spec]
    required: true
  - tag: implement
    skills: [build, wire]
    required: true
    skippable: [wire]
  - tag: complete
    skills: [finish]
    required: true
gates:
  - id: init-review
    name: Spec review
    after_phase: init
    required: true
    approval: human
    deliverables: [spec.md]
defaults:
  mode: greenfield
  autonomy: supervised
ui:
  accent: teal
`

func writeDefinition(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loop.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadDefinition(t *testing.T) {
	def, err := LoadDefinition(writeDefinition(t, sampleDefinition))
	if err != nil {
		t.Fatalf("LoadDefinition returned error: %v", err)
	}

	if def.ID != "feature-loop" {
		t.Errorf("ID = %q, want %q", def.ID, "feature-loop")
	}
	if len(def.Phases) != 3 {
		t.Fatalf("len(Phases) = %d, want 3", len(def.Phases))
	}
	if def.Phases[1].Tag != model.PhaseImplement {
		t.Errorf("Phases[1].Tag = %q, want %q", def.Phases[1].Tag, model.PhaseImplement)
	}
	if !def.Phases[1].SkillSkippable("wire") {
		t.Errorf("wire should be skippable")
	}
	if len(def.Gates) != 1 || def.Gates[0].Approval != model.ApprovalHuman {
		t.Errorf("gate not decoded: %+v", def.Gates)
	}
	if def.Defaults.Autonomy != model.AutonomySupervised {
		t.Errorf("Defaults.Autonomy = %q, want supervised", def.Defaults.Autonomy)
	}
	// Presentation-only sections are carried, not interpreted.
	if def.UI["accent"] != "teal" {
		t.Errorf("ui section not preserved: %+v", def.UI)
	}
}

func TestLoadDefinition_WrongFileType(t *testing.T) {
	path := writeDefinition(t, "schema_version: 1\nfile_type: skill\nid: x\n")
	if _, err := LoadDefinition(path); err == nil {
		t.Errorf("LoadDefinition should reject a non-definition file_type")
	}
}

func TestLoadDefinition_Missing(t *testing.T) {
	if _, err := LoadDefinition(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("LoadDefinition should fail on missing file")
	}
}
