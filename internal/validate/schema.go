package validate

import (
	"fmt"

	"github.com/loopline/loopline/internal/model"
)

// checkSchema verifies required fields, primitive shapes, and enum
// membership. Later passes assume none of this; they re-guard where needed
// so every pass can always run.
func checkSchema(def *model.LoopDefinition, errs *ValidationErrors) {
	if def.ID == "" {
		errs.Add(PassSchema, "id", "required field is missing")
	} else if !model.ValidSlug(def.ID) {
		errs.Add(PassSchema, "id", fmt.Sprintf("%q is not a valid slug", def.ID))
	}

	if len(def.Phases) == 0 {
		errs.Add(PassSchema, "phases", "at least one phase is required")
	}

	for i, phase := range def.Phases {
		prefix := fmt.Sprintf("phases[%d]", i)
		if phase.Tag == "" {
			errs.Add(PassSchema, prefix+".tag", "required field is missing")
		} else if !phase.Tag.Valid() {
			errs.Add(PassSchema, prefix+".tag", fmt.Sprintf("unknown phase tag %q", phase.Tag))
		}
		if len(phase.SkillIDs) == 0 {
			errs.Add(PassSchema, prefix+".skills", "phase must contain at least one skill")
		}
		for j, skillID := range phase.SkillIDs {
			if !model.ValidSlug(skillID) {
				errs.Add(PassSchema, fmt.Sprintf("%s.skills[%d]", prefix, j),
					fmt.Sprintf("%q is not a valid slug", skillID))
			}
		}
	}

	for i, gate := range def.Gates {
		prefix := fmt.Sprintf("gates[%d]", i)
		if gate.ID == "" {
			errs.Add(PassSchema, prefix+".id", "required field is missing")
		} else if !model.ValidSlug(gate.ID) {
			errs.Add(PassSchema, prefix+".id", fmt.Sprintf("%q is not a valid slug", gate.ID))
		}
		if gate.AfterPhase == "" {
			errs.Add(PassSchema, prefix+".after_phase", "required field is missing")
		} else if !gate.AfterPhase.Valid() {
			errs.Add(PassSchema, prefix+".after_phase", fmt.Sprintf("unknown phase tag %q", gate.AfterPhase))
		}
		if !model.ValidApproval(gate.Approval) {
			errs.Add(PassSchema, prefix+".approval",
				fmt.Sprintf("must be one of human, conditional, automated; got %q", gate.Approval))
		}
	}

	if !model.ValidMode(def.Defaults.Mode) {
		errs.Add(PassSchema, "defaults.mode",
			fmt.Sprintf("must be greenfield or brownfield; got %q", def.Defaults.Mode))
	}
	if !model.ValidAutonomy(def.Defaults.Autonomy) {
		errs.Add(PassSchema, "defaults.autonomy",
			fmt.Sprintf("must be one of supervised, semi_autonomous, autonomous; got %q", def.Defaults.Autonomy))
	}
}
