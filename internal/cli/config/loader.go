package config

import (
	"os"
	"path/filepath"

	"github.com/yndnr/trustm-go/internal/infra/confloader"
)

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "trustm", "config.yaml")
	}
	return filepath.Join(".trustm", "config.yaml")
}

// Load builds the configuration from defaults, the file at path, TRUSTM_
// environment variables and flag overrides, then validates it.
//
// An empty path reads DefaultConfigPath if it exists. An explicit path must
// exist.
func Load(path string, overrides map[string]any) (*CLIConfig, error) {
	optional := false
	if path == "" {
		path = DefaultConfigPath()
		optional = true
	}

	cfg := Default()
	l := confloader.NewLoader(
		confloader.WithConfigFile(path, optional),
		confloader.WithOverrides(overrides),
	)
	if err := l.Load(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
