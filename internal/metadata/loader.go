package metadata

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed entities.yaml
var defaultDefinitions []byte

type definitionFile struct {
	Entities []*Entity `yaml:"entities"`
}

// LoadDefault populates the registry from the built-in entity definitions.
func LoadDefault(reg *Registry) error {
	return LoadBytes(defaultDefinitions, reg)
}

// LoadFile populates the registry from a YAML file on disk.
func LoadFile(path string, reg *Registry) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}
	return LoadBytes(data, reg)
}

// LoadBytes parses and validates a definition document, then replaces the
// registry contents. The registry is left untouched on error.
func LoadBytes(data []byte, reg *Registry) error {
	entities, err := ParseDefinitions(data)
	if err != nil {
		return err
	}
	reg.Load(entities)

	rules := 0
	for _, e := range entities {
		rules += len(e.Rules)
	}
	slog.Info("Loaded entity definitions", "entities", len(entities), "rules", rules)
	return nil
}

// ParseDefinitions decodes and validates entity definitions without registering them.
func ParseDefinitions(data []byte) ([]*Entity, error) {
	var doc definitionFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse entity definitions: %w", err)
	}
	if len(doc.Entities) == 0 {
		return nil, fmt.Errorf("parse entity definitions: no entities defined")
	}

	names := make(map[string]bool, len(doc.Entities))
	for _, e := range doc.Entities {
		if err := e.validate(); err != nil {
			return nil, err
		}
		if names[e.Name] {
			return nil, fmt.Errorf("duplicate entity %s", e.Name)
		}
		names[e.Name] = true
	}
	for _, e := range doc.Entities {
		for _, target := range e.LookupEntities() {
			if !names[target] {
				return nil, fmt.Errorf("entity %s: lookup target %s is not defined", e.Name, target)
			}
		}
	}
	return doc.Entities, nil
}
