package config

// Transport names for the delivery server.
const (
	// TransportStreamableHTTP is the streamable HTTP transport.
	TransportStreamableHTTP = "streamable-http"
	// TransportSSE is the Server-Sent Events transport.
	TransportSSE = "sse"
	// TransportStdio is the standard I/O transport.
	TransportStdio = "stdio"
)

// Storage backend names.
const (
	BackendMemory     = "memory"
	BackendFilesystem = "filesystem"
	BackendSQLite     = "sqlite"
)

// Config is the top-level configuration for the delivery service.
type Config struct {
	Listen    string        `yaml:"listen,omitempty"`    // Address for the HTTP transports (default: localhost:9310)
	Transport string        `yaml:"transport,omitempty"` // stdio, sse or streamable-http (default: streamable-http)
	Library   LibraryConfig `yaml:"library"`
	Storage   StorageConfig `yaml:"storage"`
}

// LibraryConfig locates the assessment library.
type LibraryConfig struct {
	Path  string `yaml:"path,omitempty"` // Directory of assessment YAML documents (default: ./assessments)
	Watch bool   `yaml:"watch"`          // Reload on file changes (default: true)
}

// StorageConfig selects and parameterizes the snapshot store.
type StorageConfig struct {
	Backend string `yaml:"backend,omitempty"` // memory, filesystem or sqlite (default: memory)
	Path    string `yaml:"path,omitempty"`    // Root directory for the filesystem backend
	DSN     string `yaml:"dsn,omitempty"`     // Database file for the sqlite backend
}
