package validate

import (
	"strings"
	"testing"

	"github.com/loopline/loopline/internal/model"
	"github.com/loopline/loopline/internal/registry"
)

func cleanDefinition() *model.LoopDefinition {
	return &model.LoopDefinition{
		ID: "feature-loop",
		Phases: []model.Phase{
			{Tag: model.PhaseInit, SkillIDs: []string{"spec"}, Required: true},
			{Tag: model.PhaseImplement, SkillIDs: []string{"build", "wire"}, Required: true, Skippable: []string{"wire"}},
			{Tag: model.PhaseReview, SkillIDs: []string{"review-code"}, Required: false},
			{Tag: model.PhaseComplete, SkillIDs: []string{"finish"}, Required: true},
		},
		Gates: []model.Gate{
			{ID: "init-review", AfterPhase: model.PhaseInit, Required: true, Approval: model.ApprovalHuman},
			{ID: "review-done", AfterPhase: model.PhaseReview, Required: false, Approval: model.ApprovalConditional},
		},
		Defaults: model.Defaults{Mode: model.ModeGreenfield, Autonomy: model.AutonomySupervised},
	}
}

func fullRegistry() registry.Registry {
	return registry.NewMemRegistry(
		registry.Skill{ID: "spec"},
		registry.Skill{ID: "build", Prerequisites: []string{"spec"}},
		registry.Skill{ID: "wire", Prerequisites: []string{"build"}},
		registry.Skill{ID: "review-code", Prerequisites: []string{"build"}},
		registry.Skill{ID: "finish"},
	)
}

func countPass(errs *ValidationErrors, pass Pass) int {
	n := 0
	for _, e := range errs.Errors {
		if e.Pass == pass {
			n++
		}
	}
	return n
}

func TestValidateCleanDefinition(t *testing.T) {
	if errs := Definition(cleanDefinition(), fullRegistry()); errs != nil {
		t.Fatalf("clean definition reported errors:\n%s", errs.Error())
	}
}

func TestValidateSchemaErrors(t *testing.T) {
	def := cleanDefinition()
	def.ID = ""
	def.Phases[1].SkillIDs = nil
	def.Defaults.Autonomy = "yolo"

	errs := Definition(def, fullRegistry())
	if errs == nil {
		t.Fatalf("expected errors")
	}
	if got := countPass(errs, PassSchema); got != 3 {
		t.Errorf("schema errors = %d, want 3:\n%s", got, errs.Error())
	}
}

func TestValidateUnknownSkill(t *testing.T) {
	def := cleanDefinition()
	def.Phases[0].SkillIDs = []string{"phantom"}

	errs := Definition(def, fullRegistry())
	if errs == nil {
		t.Fatalf("expected errors")
	}
	found := false
	for _, e := range errs.Errors {
		if e.Pass == PassReferential && strings.Contains(e.Message, "phantom") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing referential error for unknown skill:\n%s", errs.Error())
	}
}

func TestValidateDuplicateGateAndPhase(t *testing.T) {
	def := cleanDefinition()
	def.Gates = append(def.Gates, model.Gate{
		ID: "init-review", AfterPhase: model.PhaseShip, Required: false, Approval: model.ApprovalHuman,
	})

	errs := Definition(def, fullRegistry())
	if errs == nil {
		t.Fatalf("expected errors")
	}
	var dupID, danglingPhase bool
	for _, e := range errs.Errors {
		if e.Pass != PassReferential {
			continue
		}
		if strings.Contains(e.Message, "duplicate gate id") {
			dupID = true
		}
		if strings.Contains(e.Message, "not declared") {
			danglingPhase = true
		}
	}
	if !dupID || !danglingPhase {
		t.Errorf("want duplicate-id and undeclared-phase errors, got:\n%s", errs.Error())
	}
}

func TestValidateForwardDependency(t *testing.T) {
	// build (implement phase) requires finish, which sits in a later phase.
	reg := registry.NewMemRegistry(
		registry.Skill{ID: "spec"},
		registry.Skill{ID: "build", Prerequisites: []string{"finish"}},
		registry.Skill{ID: "wire"},
		registry.Skill{ID: "review-code"},
		registry.Skill{ID: "finish"},
	)

	errs := Definition(cleanDefinition(), reg)
	if errs == nil {
		t.Fatalf("expected a dependency error")
	}
	found := false
	for _, e := range errs.Errors {
		if e.Pass == PassDependency &&
			strings.Contains(e.Message, "build") && strings.Contains(e.Message, "finish") {
			found = true
		}
	}
	if !found {
		t.Errorf("dependency error should reference both skills:\n%s", errs.Error())
	}
}

func TestValidatePrerequisiteCycle(t *testing.T) {
	reg := registry.NewMemRegistry(
		registry.Skill{ID: "spec", Prerequisites: []string{"wire"}},
		registry.Skill{ID: "build", Prerequisites: []string{"spec"}},
		registry.Skill{ID: "wire", Prerequisites: []string{"build"}},
		registry.Skill{ID: "review-code"},
		registry.Skill{ID: "finish"},
	)

	errs := Definition(cleanDefinition(), reg)
	if errs == nil {
		t.Fatalf("expected a cycle error")
	}
	found := false
	for _, e := range errs.Errors {
		if e.Pass == PassDependency && strings.Contains(e.Message, "circular") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing cycle error:\n%s", errs.Error())
	}
}

func TestValidateSemanticOrdering(t *testing.T) {
	def := cleanDefinition()
	// Swap implement and review so ranks decrease.
	def.Phases[1], def.Phases[2] = def.Phases[2], def.Phases[1]

	errs := Definition(def, fullRegistry())
	if errs == nil {
		t.Fatalf("expected errors")
	}
	if got := countPass(errs, PassSemantic); got == 0 {
		t.Errorf("want at least one semantic ordering error:\n%s", errs.Error())
	}
}

func TestValidateFirstAndLastPhase(t *testing.T) {
	def := &model.LoopDefinition{
		ID: "no-bookends",
		Phases: []model.Phase{
			{Tag: model.PhaseImplement, SkillIDs: []string{"build"}, Required: true},
			{Tag: model.PhaseShip, SkillIDs: []string{"finish"}, Required: true},
		},
		Defaults: model.Defaults{Mode: model.ModeBrownfield, Autonomy: model.AutonomyAutonomous},
	}

	errs := Definition(def, fullRegistry())
	if errs == nil {
		t.Fatalf("expected errors")
	}
	if got := countPass(errs, PassSemantic); got != 2 {
		t.Errorf("semantic errors = %d, want 2 (first/last):\n%s", got, errs.Error())
	}
}

func TestValidateRequiredGateOnOptionalPhase(t *testing.T) {
	def := cleanDefinition()
	def.Gates[1].Required = true // review phase is optional

	errs := Definition(def, fullRegistry())
	if errs == nil {
		t.Fatalf("expected errors")
	}
	found := false
	for _, e := range errs.Errors {
		if e.Pass == PassSemantic && strings.Contains(e.Message, "optional phase") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing required-gate-on-optional-phase error:\n%s", errs.Error())
	}
}

// One independent defect per pass must surface as exactly four errors, not
// one: the validator never short-circuits.
func TestValidateCollectsAcrossPasses(t *testing.T) {
	def := cleanDefinition()
	def.Defaults.Mode = "purple"                                // schema
	def.Gates[1].AfterPhase = model.PhaseShip                   // referential
	def.Phases[0], def.Phases[1] = def.Phases[1], def.Phases[0] // semantic: first phase not init
	reg := registry.NewMemRegistry(
		registry.Skill{ID: "spec"},
		registry.Skill{ID: "build", Prerequisites: []string{"finish"}}, // dependency: forward
		registry.Skill{ID: "wire"},
		registry.Skill{ID: "review-code"},
		registry.Skill{ID: "finish"},
	)

	errs := Definition(def, reg)
	if errs == nil {
		t.Fatalf("expected errors")
	}
	for _, pass := range []Pass{PassSchema, PassReferential, PassDependency, PassSemantic} {
		if countPass(errs, pass) == 0 {
			t.Errorf("pass %q reported no error:\n%s", pass, errs.Error())
		}
	}
}

func TestValidationErrorsFormatStderr(t *testing.T) {
	errs := &ValidationErrors{}
	errs.Add(PassSchema, "id", "required field is missing")
	out := errs.FormatStderr()
	if !strings.HasPrefix(out, "error: schema: id:") {
		t.Errorf("FormatStderr output = %q", out)
	}
}
