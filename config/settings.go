package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings is the document persisted between runs.  Port holds the
// value produced by the processor's SavePort: "*" or a decimal port.
type Settings struct {
	Port      string         `yaml:"port"`
	LineNames map[string]int `yaml:"line_names,omitempty"`
}

// LoadSettings reads the settings file at path.  A missing file yields
// empty settings and no error.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return &s, nil
}

// SaveSettings writes s to path, replacing it atomically.
func SaveSettings(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".evbridge-*.yaml")
	if err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// Apply merges s into cfg.  Values already set from flags or the
// environment win; a malformed port is reported and ignored.
func (s *Settings) Apply(cfg *Config) error {
	for name, idx := range s.LineNames {
		if cfg.LineNames == nil {
			cfg.LineNames = make(map[string]int)
		}
		name = strings.ToLower(name)
		if _, ok := cfg.LineNames[name]; !ok {
			cfg.LineNames[name] = idx
		}
	}
	if cfg.PortSet || s.Port == "" {
		return nil
	}
	port, err := ParsePortFlag(s.Port)
	if err != nil {
		return err
	}
	cfg.Port = port
	return nil
}
