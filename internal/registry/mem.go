package registry

import "fmt"

// MemRegistry is a fixed in-memory registry for tests and embedding hosts.
type MemRegistry struct {
	skills map[string]Skill
}

func NewMemRegistry(skills ...Skill) *MemRegistry {
	m := &MemRegistry{skills: make(map[string]Skill, len(skills))}
	for _, s := range skills {
		m.skills[s.ID] = s
	}
	return m
}

func (m *MemRegistry) Resolve(skillID string) (Skill, error) {
	s, ok := m.skills[skillID]
	if !ok {
		return Skill{}, fmt.Errorf("resolve %q: %w", skillID, ErrSkillNotFound)
	}
	return s, nil
}
