// ABOUTME: Declarative TOML tool manifests — metadata only, no implementation.
// ABOUTME: Lets a deployment describe its tool catalog without recompiling.
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// manifestFile is the on-disk shape of a tool manifest.
type manifestFile struct {
	Tool []manifestTool `toml:"tool"`
}

type manifestTool struct {
	Namespace    string   `toml:"namespace"`
	Name         string   `toml:"name"`
	DisplayName  string   `toml:"display_name"`
	Description  string   `toml:"description"`
	Version      string   `toml:"version"`
	Capabilities []string `toml:"capabilities"`
	// InputSchemaJSON holds a JSON-Schema document inlined as a TOML string,
	// since TOML has no native "arbitrary JSON value" type.
	InputSchemaJSON string `toml:"input_schema_json"`
}

// ManifestEntry pairs a parsed ToolDefinition with the namespace it was
// declared under, so callers can group entries by owning module.
type ManifestEntry struct {
	Namespace string
	Def       ToolDefinition
}

// LoadManifest parses a TOML tool manifest from path and returns the
// declared tool metadata, grouped by declaration order. It does not
// register anything — callers wrap the entries in a ToolModule (e.g. a
// static or stub module) and call Registry.Register themselves.
func LoadManifest(path string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses TOML manifest bytes into ManifestEntry values.
func ParseManifest(data []byte) ([]ManifestEntry, error) {
	var mf manifestFile
	if err := toml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	entries := make([]ManifestEntry, 0, len(mf.Tool))
	for _, t := range mf.Tool {
		if !ValidToolName(t.Name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidToolName, t.Name)
		}
		var schema json.RawMessage
		if t.InputSchemaJSON != "" {
			if !json.Valid([]byte(t.InputSchemaJSON)) {
				return nil, fmt.Errorf("tool %q: input_schema_json is not valid JSON", t.Name)
			}
			schema = json.RawMessage(t.InputSchemaJSON)
		} else {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		entries = append(entries, ManifestEntry{
			Namespace: t.Namespace,
			Def: ToolDefinition{
				Name:         t.Name,
				DisplayName:  t.DisplayName,
				Description:  t.Description,
				Version:      t.Version,
				Capabilities: t.Capabilities,
				InputSchema:  schema,
			},
		})
	}
	return entries, nil
}
