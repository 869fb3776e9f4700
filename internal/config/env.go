package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// applyEnv overlays the variables named by the `env` struct tags. Unset
// variables keep the file value.
func applyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}
