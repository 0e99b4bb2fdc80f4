package inventory

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Load reads a YAML (or JSON) snapshot from path and indexes it.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and indexes a snapshot document.
func Parse(data []byte) (*Inventory, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing inventory file: %w", err)
	}
	inv, err := New(&snap)
	if err != nil {
		return nil, fmt.Errorf("indexing inventory: %w", err)
	}
	return inv, nil
}
