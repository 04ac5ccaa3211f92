package validate

import (
	"errors"
	"fmt"

	"github.com/loopline/loopline/internal/model"
	"github.com/loopline/loopline/internal/registry"
)

// checkReferential verifies that every identifier points at something: skill
// ids resolve in the registry, gates name declared phases, and nothing is
// declared twice.
func checkReferential(def *model.LoopDefinition, reg registry.Registry, errs *ValidationErrors) {
	phaseTags := make(map[model.PhaseTag]bool, len(def.Phases))
	for i, phase := range def.Phases {
		prefix := fmt.Sprintf("phases[%d]", i)

		if phaseTags[phase.Tag] {
			errs.Add(PassReferential, prefix+".tag", fmt.Sprintf("duplicate phase %q", phase.Tag))
		}
		phaseTags[phase.Tag] = true

		skillSet := make(map[string]bool, len(phase.SkillIDs))
		for j, skillID := range phase.SkillIDs {
			skillSet[skillID] = true
			if reg == nil {
				continue
			}
			if _, err := reg.Resolve(skillID); err != nil {
				path := fmt.Sprintf("%s.skills[%d]", prefix, j)
				if errors.Is(err, registry.ErrSkillNotFound) {
					errs.Add(PassReferential, path, fmt.Sprintf("unknown skill %q", skillID))
				} else {
					errs.Add(PassReferential, path, fmt.Sprintf("resolving %q: %v", skillID, err))
				}
			}
		}

		for j, skillID := range phase.Skippable {
			if !skillSet[skillID] {
				errs.Add(PassReferential, fmt.Sprintf("%s.skippable[%d]", prefix, j),
					fmt.Sprintf("%q is not a skill of this phase", skillID))
			}
		}
	}

	gateIDs := make(map[string]bool, len(def.Gates))
	gateBoundaries := make(map[model.PhaseTag]bool, len(def.Gates))
	for i, gate := range def.Gates {
		prefix := fmt.Sprintf("gates[%d]", i)

		if gateIDs[gate.ID] {
			errs.Add(PassReferential, prefix+".id", fmt.Sprintf("duplicate gate id %q", gate.ID))
		}
		gateIDs[gate.ID] = true

		if !phaseTags[gate.AfterPhase] {
			errs.Add(PassReferential, prefix+".after_phase",
				fmt.Sprintf("references phase %q which is not declared", gate.AfterPhase))
		} else if gateBoundaries[gate.AfterPhase] {
			errs.Add(PassReferential, prefix+".after_phase",
				fmt.Sprintf("phase %q already has a gate", gate.AfterPhase))
		}
		gateBoundaries[gate.AfterPhase] = true
	}
}
