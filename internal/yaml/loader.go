package yaml

import (
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/loopline/loopline/internal/model"
)

// LoadDefinition reads and decodes a loop definition document. It checks the
// schema header only; structural and referential validation is the
// validator's job.
func LoadDefinition(path string) (*model.LoopDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	if err := ValidateSchemaHeaderFromBytes(content, FileTypeLoopDefinition); err != nil {
		return nil, fmt.Errorf("definition %s: %w", path, err)
	}

	var def model.LoopDefinition
	if err := yamlv3.Unmarshal(content, &def); err != nil {
		return nil, fmt.Errorf("parse definition %s: %w", path, err)
	}
	return &def, nil
}
