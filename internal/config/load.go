package config

import (
	"github.com/yndnr/meshsync/internal/infra/confloader"
)

// Load builds the configuration from defaults, the YAML file at path (if
// any), MESHSYNC_ environment variables and overrides, then verifies it.
// Override keys are dotted paths such as "storage.data_dir"; nil values are
// ignored.
func Load(path string, overrides map[string]any) (*Config, error) {
	cfg := Default()
	l := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	)
	if err := l.Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
