package config

import (
	"fmt"
	"os"
)

// StoreConfig selects the record store and holds its connection settings.
type StoreConfig struct {
	Provider string            `yaml:"provider"`
	Settings map[string]string `yaml:"settings"`
}

// expand resolves ${ENV_VAR} references in setting values so secrets can stay
// out of the file.
func (s *StoreConfig) expand() {
	for k, v := range s.Settings {
		s.Settings[k] = os.ExpandEnv(v)
	}
}

func (s *StoreConfig) validate() error {
	if s.Provider == "" {
		return fmt.Errorf("store: missing required field 'provider'")
	}
	return nil
}
