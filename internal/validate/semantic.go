package validate

import (
	"fmt"

	"github.com/loopline/loopline/internal/model"
)

// checkSemantic verifies the phase sequence against the canonical ordering
// and gate/phase requiredness consistency.
func checkSemantic(def *model.LoopDefinition, errs *ValidationErrors) {
	if len(def.Phases) == 0 {
		return // schema pass already reported
	}

	lastRank := -1
	for i, phase := range def.Phases {
		prefix := fmt.Sprintf("phases[%d]", i)
		if !phase.Tag.Orderable() {
			errs.Add(PassSemantic, prefix+".tag",
				fmt.Sprintf("tag %q cannot appear in an executable phase sequence", phase.Tag))
			continue
		}
		rank, _ := phase.Tag.Rank()
		if rank <= lastRank {
			errs.Add(PassSemantic, prefix+".tag",
				fmt.Sprintf("phase %q breaks the canonical order (phases must be strictly increasing)", phase.Tag))
		}
		lastRank = rank
	}

	if first := def.Phases[0].Tag; first != model.PhaseInit {
		errs.Add(PassSemantic, "phases[0].tag",
			fmt.Sprintf("first phase must be %q, got %q", model.PhaseInit, first))
	}
	if last := def.Phases[len(def.Phases)-1].Tag; last != model.PhaseComplete {
		errs.Add(PassSemantic, fmt.Sprintf("phases[%d].tag", len(def.Phases)-1),
			fmt.Sprintf("last phase must be %q, got %q", model.PhaseComplete, last))
	}

	for i, gate := range def.Gates {
		if !gate.Required {
			continue
		}
		idx := def.PhaseIndex(gate.AfterPhase)
		if idx < 0 {
			continue // referential pass already reported
		}
		if !def.Phases[idx].Required {
			errs.Add(PassSemantic, fmt.Sprintf("gates[%d]", i),
				fmt.Sprintf("required gate %q follows optional phase %q", gate.ID, gate.AfterPhase))
		}
	}
}
