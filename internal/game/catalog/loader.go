package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlKindFile is the top-level YAML structure for a game kind file.
type yamlKindFile struct {
	Game yamlKind `yaml:"game"`
}

// yamlKind is the YAML representation of a game kind.
type yamlKind struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	TurnBased bool   `yaml:"turn_based"`
}

// LoadKindFromBytes parses and validates a game kind from YAML bytes.
//
// Precondition: data must be valid YAML conforming to the game schema.
// Postcondition: Returns a validated Kind or a non-nil error.
func LoadKindFromBytes(data []byte) (Kind, error) {
	var file yamlKindFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Kind{}, fmt.Errorf("parsing game YAML: %w", err)
	}

	kind := Kind{
		ID:        file.Game.ID,
		Name:      file.Game.Name,
		TurnBased: file.Game.TurnBased,
	}
	if err := kind.Validate(); err != nil {
		return Kind{}, fmt.Errorf("validating game: %w", err)
	}
	return kind, nil
}

// LoadFromDir reads every .yaml/.yml file in dir and builds a Catalog.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a Catalog with one kind per file, or a non-nil error.
func LoadFromDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading games directory %s: %w", dir, err)
	}

	var kinds []Kind
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading game file %s: %w", path, err)
		}
		kind, err := LoadKindFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading game file %s: %w", path, err)
		}
		kinds = append(kinds, kind)
	}

	if len(kinds) == 0 {
		return nil, fmt.Errorf("no game definitions found in %s", dir)
	}
	return New(kinds)
}
