package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loopline/loopline/internal/registry"
	looplineyaml "github.com/loopline/loopline/internal/yaml"
)

func TestRunCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()

	base, err := Run(dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if base != filepath.Join(dir, ".loopline") {
		t.Fatalf("base = %q", base)
	}

	for _, d := range []string{"skills", "sessions", "quarantine"} {
		info, err := os.Stat(filepath.Join(base, d))
		if err != nil || !info.IsDir() {
			t.Errorf("missing directory %s: %v", d, err)
		}
	}

	def, err := looplineyaml.LoadDefinition(filepath.Join(base, "loop.yaml"))
	if err != nil {
		t.Fatalf("starter loop unreadable: %v", err)
	}
	if len(def.Phases) == 0 || len(def.Gates) == 0 {
		t.Fatalf("starter loop empty: %d phases, %d gates", len(def.Phases), len(def.Gates))
	}

	reg, err := registry.NewDirRegistry(filepath.Join(base, "skills"))
	if err != nil {
		t.Fatalf("skills dir: %v", err)
	}
	if reg.Len() == 0 {
		t.Fatal("no starter skills")
	}
	for _, phase := range def.Phases {
		for _, id := range phase.SkillIDs {
			if _, err := reg.Resolve(id); err != nil {
				t.Errorf("starter loop references unknown skill %q", id)
			}
		}
	}
}

func TestRunRefusesExistingWorkspace(t *testing.T) {
	dir := t.TempDir()

	if _, err := Run(dir); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := Run(dir); err == nil {
		t.Fatal("second run should fail")
	}
}
