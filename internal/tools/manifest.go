package tools

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest selects which built-in tools the device exposes.
type Manifest struct {
	Tools []ManifestEntry `yaml:"tools"`
}

// ManifestEntry configures one built-in tool. Enabled defaults to true.
type ManifestEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Enabled     *bool  `yaml:"enabled,omitempty"`
}

func (e ManifestEntry) enabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// ParseManifest decodes a YAML manifest. Unknown fields are rejected.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("parse tool manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Tools))
	for i, entry := range m.Tools {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return Manifest{}, fmt.Errorf("tool manifest entry %d: missing name", i)
		}
		if seen[name] {
			return Manifest{}, &ToolAlreadyExistsError{Name: name}
		}
		seen[name] = true
		m.Tools[i].Name = name
	}
	return m, nil
}

// LoadManifest reads a manifest file. An empty path yields an empty manifest.
func LoadManifest(path string) (Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return Manifest{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read tool manifest: %w", err)
	}
	return ParseManifest(data)
}

// Build creates a registry from the manifest. An empty manifest exposes every
// built-in.
func (m Manifest) Build() (*Registry, error) {
	builtins := Builtins()
	reg := NewRegistry()
	if len(m.Tools) == 0 {
		for _, tool := range builtins {
			if err := reg.Register(tool); err != nil {
				return nil, err
			}
		}
		return reg, nil
	}

	var errs []error
	for _, entry := range m.Tools {
		tool, ok := builtins[entry.Name]
		if !ok {
			errs = append(errs, &ToolNotFoundError{Name: entry.Name})
			continue
		}
		if !entry.enabled() {
			continue
		}
		if entry.Description != "" {
			tool = describedTool{Tool: tool, description: entry.Description}
		}
		if err := reg.Register(tool); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}
	return reg, nil
}

// LoadRegistry loads the manifest at path and builds the registry.
func LoadRegistry(path string) (*Registry, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return m.Build()
}
