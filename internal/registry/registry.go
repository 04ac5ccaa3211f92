// Package registry resolves skill ids to their declared prerequisites. The
// engine treats skill content as opaque; only the prerequisite list matters
// here, and only the validator consumes it.
package registry

import "errors"

// ErrSkillNotFound is returned by Resolve for an unknown skill id. Callers
// use errors.Is to distinguish it from I/O failures.
var ErrSkillNotFound = errors.New("skill not found")

// Skill is the slice of a skill document this module cares about.
type Skill struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name,omitempty"`
	Prerequisites []string `yaml:"prerequisites,omitempty"`
}

// Registry is the read-only lookup injected into the validator. Multiple
// engines and tests may hold distinct registries; there is no ambient
// process-wide instance.
type Registry interface {
	Resolve(skillID string) (Skill, error)
}
