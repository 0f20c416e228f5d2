package cliconfig

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is a YAML configuration file. Top level keys are flag names:
//
//	app-id: "1234"
//	api-version: v2.1
//	query:
//	  - fields=id,name
type File struct {
	// The path to the file
	Path string

	// Values loaded from the file, keyed by flag name. Each value is a
	// string, or a []string for lists.
	Config map[string]any
}

func (f *File) Load() error {
	f.Config = map[string]any{}

	absolutePath, err := f.AbsolutePath()
	if err != nil {
		return fmt.Errorf("getting absolute path for %s: %w", f.Path, err)
	}

	data, err := os.ReadFile(absolutePath)
	if err != nil {
		return fmt.Errorf("reading file %s: %w", f.Path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", f.Path, err)
	}

	// An empty file is a valid, empty config.
	if len(doc.Content) == 0 {
		return nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: line %d: config must be a mapping of option names to values", f.Path, root.Line)
	}

	for i := 0; i < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		value, err := nodeValue(val)
		if err != nil {
			return fmt.Errorf("%s: line %d: option %q: %w", f.Path, val.Line, key.Value, err)
		}
		f.Config[key.Value] = value
	}

	return nil
}

func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value, nil

	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind == yaml.AliasNode {
				item = item.Alias
			}
			if item.Kind != yaml.ScalarNode {
				return nil, errors.New("list items must be scalars")
			}
			items = append(items, item.Value)
		}
		return items, nil

	case yaml.AliasNode:
		return nodeValue(n.Alias)

	default:
		return nil, errors.New("unsupported value; expected a scalar or a list")
	}
}

func (f File) AbsolutePath() (string, error) {
	return NormalizeFilePath(f.Path)
}

func (f File) Exists() bool {
	// If getting the absolute path fails, we can just assume it doesn't
	// exist
	absolutePath, err := f.AbsolutePath()
	if err != nil {
		return false
	}

	_, err = os.Stat(absolutePath)
	return err == nil
}
