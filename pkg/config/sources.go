package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SeedFile is a list of data sources registered by the seed command.
//
//	sources:
//	  - tenant_id: 6c1d...
//	    name: sales
//	    type: postgres
//	    config:
//	      url: postgres://app:***@db:5432/sales
//	      conn: {password: ...}
//	      tenant_column: account_id
//	    policy:
//	      read_only: true
//	      max_rows: 500
type SeedFile struct {
	Sources []SeedSource `yaml:"sources"`
}

// SeedSource is one data source definition. Config is kept as a generic map and
// decoded into the typed per-kind config by the caller.
type SeedSource struct {
	TenantID uuid.UUID      `yaml:"tenant_id"`
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Config   map[string]any `yaml:"config"`
	Policy   SeedPolicy     `yaml:"policy"`
}

// SeedPolicy mirrors the stored policy; nil fields fall back to server defaults.
type SeedPolicy struct {
	ReadOnly       *bool `yaml:"read_only"`
	MaxRows        int   `yaml:"max_rows"`
	TimeoutSeconds int   `yaml:"timeout_seconds"`
}

// LoadSeedFile parses a YAML seed file. Values of the form ${VAR} are expanded from the environment
// so passwords can stay out of the file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed([]byte(os.ExpandEnv(string(data))))
}

// ParseSeed parses seed YAML.
func ParseSeed(data []byte) (*SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, s := range f.Sources {
		if s.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if s.Type == "" {
			return nil, fmt.Errorf("source %q: type is required", s.Name)
		}
		if s.TenantID == uuid.Nil {
			return nil, fmt.Errorf("source %q: tenant_id is required", s.Name)
		}
	}
	return &f, nil
}
