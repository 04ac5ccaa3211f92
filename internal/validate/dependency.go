package validate

import (
	"fmt"
	"sort"

	"github.com/loopline/loopline/internal/model"
	"github.com/loopline/loopline/internal/registry"
)

// checkDependency verifies skill prerequisite placement: every prerequisite
// of a skill must sit in the same phase or an earlier one, and the transitive
// prerequisite graph must be acyclic. Skills the registry cannot resolve are
// skipped here; the referential pass reports them.
func checkDependency(def *model.LoopDefinition, reg registry.Registry, errs *ValidationErrors) {
	if reg == nil {
		return
	}

	// Earliest phase index per skill id.
	skillPhase := make(map[string]int)
	for pi, phase := range def.Phases {
		for _, skillID := range phase.SkillIDs {
			if _, seen := skillPhase[skillID]; !seen {
				skillPhase[skillID] = pi
			}
		}
	}

	prereqs := make(map[string][]string)
	for pi, phase := range def.Phases {
		for si, skillID := range phase.SkillIDs {
			skill, err := reg.Resolve(skillID)
			if err != nil {
				continue
			}
			prereqs[skillID] = skill.Prerequisites

			for _, p := range skill.Prerequisites {
				path := fmt.Sprintf("phases[%d].skills[%d]", pi, si)
				depPhase, present := skillPhase[p]
				if !present {
					errs.Add(PassDependency, path,
						fmt.Sprintf("skill %q requires %q, which does not appear in any phase", skillID, p))
					continue
				}
				if depPhase > pi {
					errs.Add(PassDependency, path,
						fmt.Sprintf("skill %q requires %q, which appears in a later phase (%s)",
							skillID, p, def.Phases[depPhase].Tag))
				}
			}
		}
	}

	// Cycle detection over the transitive closure of prerequisites,
	// including skills pulled in from outside the loop.
	nodes := make(map[string]bool)
	var frontier []string
	for s := range skillPhase {
		nodes[s] = true
		frontier = append(frontier, s)
	}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		deps, seen := prereqs[id]
		if !seen {
			skill, err := reg.Resolve(id)
			if err != nil {
				continue
			}
			deps = skill.Prerequisites
			prereqs[id] = deps
		}
		for _, p := range deps {
			if !nodes[p] {
				nodes[p] = true
				frontier = append(frontier, p)
			}
		}
	}

	names := make([]string, 0, len(nodes))
	for n := range nodes {
		names = append(names, n)
	}
	sort.Strings(names) // deterministic error output

	if _, err := validateDAG(names, prereqs); err != nil {
		errs.Add(PassDependency, "phases", err.Error())
	}
}
