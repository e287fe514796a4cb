package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type (
	// Mapping records, for each short written to the output directory, the
	// source file it was cut from. It is persisted as
	// {"12.mp4": {"source": "281.mp4"}}.
	Mapping map[string]MappingEntry

	MappingEntry struct {
		Source string `json:"source"`
	}
)

// LoadMapping reads the mapping file at the path given. A missing
// file is an empty mapping.
func LoadMapping(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Mapping{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read interval mapping %s: %w", path, err)
	}

	mapping := Mapping{}
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("interval mapping %s is malformed: %w", path, err)
	}

	return mapping, nil
}

// Merge copies the entries of other in to the mapping, replacing any
// existing entries for the same output.
func (mapping Mapping) Merge(other Mapping) {
	for k, v := range other {
		mapping[k] = v
	}
}

// Save merges the mapping with any mapping already stored at the path, and
// writes the result back atomically.
func (mapping Mapping) Save(path string) error {
	existing, err := LoadMapping(path)
	if err != nil {
		return err
	}
	existing.Merge(mapping)

	data, err := json.MarshalIndent(existing, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal interval mapping: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write interval mapping: %w", err)
	}

	return os.Rename(tmp, path)
}
