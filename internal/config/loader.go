package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"proctor/pkg/logging"

	"gopkg.in/yaml.v3"
)

// Load reads the configuration file at path, overlaying it onto Default.
// A missing file yields the defaults. An empty path means DefaultPath.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "no config file at %s, using defaults", path)
			return expand(cfg)
		}
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	logging.Info("Config", "loaded configuration from %s", path)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return expand(cfg)
}

// expand resolves ~ prefixes in the path-valued fields.
func expand(cfg Config) (Config, error) {
	var err error
	if cfg.Library.Path, err = expandHome(cfg.Library.Path); err != nil {
		return Config{}, err
	}
	if cfg.Storage.Path, err = expandHome(cfg.Storage.Path); err != nil {
		return Config{}, err
	}
	if cfg.Storage.DSN, err = expandHome(cfg.Storage.DSN); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
