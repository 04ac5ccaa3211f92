package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	yamlv3 "gopkg.in/yaml.v3"

	looplineyaml "github.com/loopline/loopline/internal/yaml"
)

// DirRegistry reads skill documents from a directory of YAML files. Files
// that fail to parse are moved to a quarantine subdirectory and skipped so
// one corrupt document cannot hide the rest of the library.
type DirRegistry struct {
	mu     sync.RWMutex
	dir    string
	skills map[string]Skill
}

type skillDoc struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
	Skill         `yaml:",inline"`
}

func NewDirRegistry(dir string) (*DirRegistry, error) {
	r := &DirRegistry{dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rescans the directory, replacing the loaded skill set.
func (r *DirRegistry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read skills dir: %w", err)
	}

	skills := make(map[string]Skill)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		skill, err := loadSkillFile(path)
		if err != nil {
			if qerr := looplineyaml.Quarantine(r.dir, path); qerr != nil {
				return fmt.Errorf("skill %s unreadable (%v) and quarantine failed: %w", path, err, qerr)
			}
			continue
		}
		skills[skill.ID] = skill
	}

	r.mu.Lock()
	r.skills = skills
	r.mu.Unlock()
	return nil
}

func loadSkillFile(path string) (Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, fmt.Errorf("read skill: %w", err)
	}
	if err := looplineyaml.ValidateSchemaHeaderFromBytes(content, looplineyaml.FileTypeSkill); err != nil {
		return Skill{}, fmt.Errorf("skill %s: %w", path, err)
	}

	var doc skillDoc
	if err := yamlv3.Unmarshal(content, &doc); err != nil {
		return Skill{}, fmt.Errorf("parse skill %s: %w", path, err)
	}
	if doc.ID == "" {
		return Skill{}, fmt.Errorf("skill %s: missing id", path)
	}
	return doc.Skill, nil
}

func (r *DirRegistry) Resolve(skillID string) (Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.skills[skillID]
	if !ok {
		return Skill{}, fmt.Errorf("resolve %q: %w", skillID, ErrSkillNotFound)
	}
	return s, nil
}

// Len returns the number of loaded skills.
func (r *DirRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// Skills returns the loaded skills sorted by id.
func (r *DirRegistry) Skills() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
