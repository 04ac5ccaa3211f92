package validate

import (
	"github.com/loopline/loopline/internal/model"
	"github.com/loopline/loopline/internal/registry"
)

// Definition runs all four passes over a loop definition and returns every
// error found, or nil when the definition is clean. A definition that
// returns errors must not be used to start a run.
func Definition(def *model.LoopDefinition, reg registry.Registry) *ValidationErrors {
	errs := &ValidationErrors{}

	checkSchema(def, errs)
	checkReferential(def, reg, errs)
	checkDependency(def, reg, errs)
	checkSemantic(def, errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}
