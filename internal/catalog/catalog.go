// Package catalog loads material catalogs from YAML files.
package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"millroom/pkg/domain"
)

type document struct {
	Materials []domain.Material `yaml:"materials"`
}

// Load reads the catalog at path. An empty path selects the built-in
// zirconia table.
func Load(path string) (*domain.Catalog, error) {
	if path == "" {
		return domain.StandardMaterials(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Decode parses either a top-level list of materials or a document with a
// "materials" key.
func Decode(r io.Reader) (*domain.Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	var entries []domain.Material
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode materials: %w", err)
		}
	case yaml.MappingNode:
		var doc document
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode materials: %w", err)
		}
		entries = doc.Materials
	default:
		return nil, fmt.Errorf("unexpected yaml node kind %d", root.Kind)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	return domain.NewCatalog(entries)
}
