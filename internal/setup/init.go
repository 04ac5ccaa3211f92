// Package setup scaffolds a .loopline/ workspace: a starter loop
// definition, its skill library, and the directories runs write into.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/loopline/loopline/internal/registry"
	"github.com/loopline/loopline/internal/validate"
	looplineyaml "github.com/loopline/loopline/internal/yaml"
	"github.com/loopline/loopline/templates"
)

const workspaceDir = ".loopline"

// Run initializes .loopline/ under projectDir. It refuses to touch an
// existing workspace.
func Run(projectDir string) (string, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, workspaceDir)
	if _, err := os.Stat(base); err == nil {
		return "", fmt.Errorf("%s already exists", base)
	}

	for _, d := range []string{"skills", "sessions", "quarantine"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := copyTemplate("loop.yaml", filepath.Join(base, "loop.yaml")); err != nil {
		return "", err
	}

	skillFiles, err := fs.ReadDir(templates.FS, "skills")
	if err != nil {
		return "", fmt.Errorf("read skill templates: %w", err)
	}
	for _, entry := range skillFiles {
		// embed.FS paths always use forward slashes
		src := "skills/" + entry.Name()
		dst := filepath.Join(base, "skills", entry.Name())
		if err := copyTemplate(src, dst); err != nil {
			return "", err
		}
	}

	// Self-check: the scaffold must validate against its own skill library.
	if err := verifyScaffold(base); err != nil {
		return "", fmt.Errorf("scaffold verification: %w", err)
	}
	return base, nil
}

func copyTemplate(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := looplineyaml.AtomicWriteRaw(dst, data); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func verifyScaffold(base string) error {
	def, err := looplineyaml.LoadDefinition(filepath.Join(base, "loop.yaml"))
	if err != nil {
		return err
	}
	reg, err := registry.NewDirRegistry(filepath.Join(base, "skills"))
	if err != nil {
		return err
	}
	if errs := validate.Definition(def, reg); errs != nil {
		return fmt.Errorf("starter loop invalid:\n%s", errs.Error())
	}
	return nil
}
