// Package providers loads the providers.yaml declaration file and builds the
// configured calendar providers from it.
package providers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of providers.yaml
type Loader struct {
	filePath string
}

// NewLoader creates a new providers.yaml loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the providers file. ${VAR} references are expanded
// from the environment so secrets can stay out of the file itself.
func (l *Loader) Load() (Config, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read providers file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse providers yaml: %w", err)
	}

	if err := validate(config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func validate(config Config) error {
	if len(config.Providers) == 0 {
		return fmt.Errorf("providers file declares no providers")
	}
	seen := make(map[string]bool, len(config.Providers))
	for _, entry := range config.Providers {
		if entry.ID == "" {
			return fmt.Errorf("provider entry is missing an id")
		}
		if seen[entry.ID] {
			return fmt.Errorf("duplicate provider id %q", entry.ID)
		}
		seen[entry.ID] = true

		switch entry.Type {
		case "google", "outlook", "caldav":
		default:
			return fmt.Errorf("provider %q has unknown type %q", entry.ID, entry.Type)
		}
	}
	return nil
}
