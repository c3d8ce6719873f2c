package commons

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"comanda/internal/config"
)

// LoadConfig reads env and defaults through config.Load, then overlays the
// keys present in the YAML file at path. An empty path skips the file.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}
