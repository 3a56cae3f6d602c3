package wasm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Manifest describes the transforms exported by a WebAssembly module.
//
//	module: fleet.wasm
//	checksum: 3b1f...   # optional sha256 of the module
//	transforms:
//	  - name: seats_per_flight
//	    export: div
//	    parameters: [passengers_per_day, flights_per_day]
//	    units:
//	      passengers_per_day: passenger/day
//	      flights_per_day: journey/day
//	    result: passenger/journey
type Manifest struct {
	// Module is the path of the .wasm file, relative to the manifest.
	Module string `yaml:"module" validate:"required"`

	// Checksum is the hex sha256 of the module. Empty skips verification.
	Checksum string `yaml:"checksum,omitempty" validate:"omitempty,len=64,hexadecimal"`

	// Transforms maps exported functions to transforms.
	Transforms []TransformSpec `yaml:"transforms" validate:"required,min=1,dive"`

	// Path is the manifest file; empty when loaded from bytes.
	Path string `yaml:"-"`
}

// TransformSpec binds one exported function. The function must take one
// f64 per parameter and return a single f64.
type TransformSpec struct {
	Name        string            `yaml:"name" validate:"required"`
	Export      string            `yaml:"export"`
	Parameters  []string          `yaml:"parameters" validate:"dive,required"`
	Description string            `yaml:"description"`
	Units       map[string]string `yaml:"units"`
	Result      string            `yaml:"result"`
}

// ExportName returns the exported function name, which defaults to the
// transform name.
func (s TransformSpec) ExportName() string {
	if s.Export != "" {
		return s.Export
	}
	return s.Name
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// ParseManifest parses and validates a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := validator.New().Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	seen := make(map[string]bool, len(m.Transforms))
	for _, spec := range m.Transforms {
		if seen[spec.Name] {
			return nil, fmt.Errorf("invalid manifest: transform %q declared twice", spec.Name)
		}
		seen[spec.Name] = true
	}
	return &m, nil
}

// ModulePath resolves Module relative to the manifest's directory.
func (m *Manifest) ModulePath() string {
	if filepath.IsAbs(m.Module) || m.Path == "" {
		return m.Module
	}
	return filepath.Join(filepath.Dir(m.Path), m.Module)
}

// VerifyChecksum checks the module bytes against the manifest checksum.
func (m *Manifest) VerifyChecksum(module []byte) error {
	if m.Checksum == "" {
		return nil
	}
	hash := sha256.Sum256(module)
	if computed := hex.EncodeToString(hash[:]); computed != m.Checksum {
		return fmt.Errorf("WASM module checksum mismatch: expected %s, got %s", m.Checksum, computed)
	}
	return nil
}
