package model

import "fmt"

// PhaseTag identifies a canonical stage of a loop. Executable tags carry a
// total order: init is always first, complete is always last. The meta tag
// sits outside the ordering and never appears in a phase sequence.
type PhaseTag string

const (
	PhaseInit      PhaseTag = "init"
	PhaseScaffold  PhaseTag = "scaffold"
	PhaseImplement PhaseTag = "implement"
	PhaseTest      PhaseTag = "test"
	PhaseVerify    PhaseTag = "verify"
	PhaseValidate  PhaseTag = "validate"
	PhaseDocument  PhaseTag = "document"
	PhaseReview    PhaseTag = "review"
	PhaseShip      PhaseTag = "ship"
	PhaseComplete  PhaseTag = "complete"
	PhaseMeta      PhaseTag = "meta"
)

var phaseRank = map[PhaseTag]int{
	PhaseInit:      0,
	PhaseScaffold:  1,
	PhaseImplement: 2,
	PhaseTest:      3,
	PhaseVerify:    4,
	PhaseValidate:  5,
	PhaseDocument:  6,
	PhaseReview:    7,
	PhaseShip:      8,
	PhaseComplete:  9,
}

// Valid reports whether t is a known phase tag, including meta.
func (t PhaseTag) Valid() bool {
	if t == PhaseMeta {
		return true
	}
	_, ok := phaseRank[t]
	return ok
}

// Orderable reports whether t participates in the canonical ordering.
func (t PhaseTag) Orderable() bool {
	_, ok := phaseRank[t]
	return ok
}

// Rank returns the canonical position of t. Meta and unknown tags return
// an error.
func (t PhaseTag) Rank() (int, error) {
	r, ok := phaseRank[t]
	if !ok {
		return 0, fmt.Errorf("phase tag %q has no canonical rank", t)
	}
	return r, nil
}

// Before reports whether t precedes other in the canonical order. Either
// tag being unorderable yields false.
func (t PhaseTag) Before(other PhaseTag) bool {
	a, aok := phaseRank[t]
	b, bok := phaseRank[other]
	return aok && bok && a < b
}
