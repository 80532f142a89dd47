package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	userConfigDir  = ".config/proctor"
	configFileName = "config.yaml"
)

// DefaultPath returns the configuration file consulted when no explicit
// path is given.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// No home directory, fall back to the working directory.
		return configFileName
	}
	return filepath.Join(homeDir, userConfigDir, configFileName)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:    "localhost:9310",
		Transport: TransportStreamableHTTP,
		Library: LibraryConfig{
			Path:  "./assessments",
			Watch: true,
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
			Path:    "~/.local/share/proctor/sessions",
			DSN:     "~/.local/share/proctor/sessions.db",
		},
	}
}

// Validate checks the fields a loaded configuration must agree on.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportSSE, TransportStreamableHTTP:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFilesystem:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage backend %q requires a path", c.Storage.Backend)
		}
	case BackendSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage backend %q requires a dsn", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Transport != TransportStdio && c.Listen == "" {
		return fmt.Errorf("transport %q requires a listen address", c.Transport)
	}
	if c.Library.Path == "" {
		return fmt.Errorf("library path cannot be empty")
	}
	return nil
}
