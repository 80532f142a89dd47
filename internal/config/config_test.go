package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "localhost:9310", cfg.Listen)
	assert.Equal(t, TransportStreamableHTTP, cfg.Transport)
	assert.Equal(t, "./assessments", cfg.Library.Path)
	assert.True(t, cfg.Library.Watch)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
transport: sse
storage:
  backend: filesystem
  path: /var/lib/proctor/sessions
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TransportSSE, cfg.Transport)
	assert.Equal(t, BackendFilesystem, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/proctor/sessions", cfg.Storage.Path)

	// Keys the file does not mention keep their defaults.
	assert.Equal(t, "localhost:9310", cfg.Listen)
	assert.Equal(t, "./assessments", cfg.Library.Path)
	assert.True(t, cfg.Library.Watch)
}

func TestLoadHonorsExplicitWatchFalse(t *testing.T) {
	path := writeConfig(t, `
library:
  path: ./tests
  watch: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./tests", cfg.Library.Path)
	assert.False(t, cfg.Library.Watch)
}

func TestLoadExpandsHome(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
  dsn: ~/sessions.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sessions.db"), cfg.Storage.DSN)
	assert.False(t, strings.HasPrefix(cfg.Storage.Path, "~"))
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "listen: [unclosed")
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown transport",
			content: "transport: websocket",
			wantErr: "unknown transport",
		},
		{
			name:    "unknown backend",
			content: "storage:\n  backend: redis",
			wantErr: "unknown storage backend",
		},
		{
			name:    "filesystem without path",
			content: "storage:\n  backend: filesystem\n  path: \"\"",
			wantErr: "requires a path",
		},
		{
			name:    "sqlite without dsn",
			content: "storage:\n  backend: sqlite\n  dsn: \"\"",
			wantErr: "requires a dsn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateDefault(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
