package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proctor/internal/config"
	"proctor/internal/delivery"
	"proctor/internal/storage"
	"proctor/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	// serveConfigPath points at an explicit configuration file. Empty
	// means the default location under the user config directory.
	serveConfigPath string

	// serveListen overrides the configured listen address.
	serveListen string

	// serveTransport overrides the configured transport.
	serveTransport string

	// serveLibrary overrides the configured assessment directory.
	serveLibrary string

	// serveStorage overrides the configured storage backend.
	serveStorage string

	// serveDebug enables verbose logging across the application.
	serveDebug bool
)

// serveCmd defines the serve command structure. It starts the delivery
// server, the main long-running process of proctor.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proctor delivery server",
	Long: `Starts the delivery server: it loads the assessment library, opens the
session store, and exposes the session service as an MCP server.

Transports:
  streamable-http (default)  HTTP transport on the configured listen address
  sse                        Server-Sent Events transport
  stdio                      standard input and output, for embedding

Configuration is read from ~/.config/proctor/config.yaml unless
--config points elsewhere. A missing file means built-in defaults:
assessments are read from ./assessments and sessions live in memory.
Flags override the file.

The server keeps running until interrupted. With library watching
enabled (the default) edits to assessment documents show up without a
restart; sessions already running keep the document they started with.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command.
func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	// Stdout stays clean for the stdio transport, so logs go to stderr.
	logging.Initialize(level, os.Stderr)

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if serveTransport != "" {
		cfg.Transport = serveTransport
	}
	if serveLibrary != "" {
		cfg.Library.Path = serveLibrary
	}
	if serveStorage != "" {
		cfg.Storage.Backend = serveStorage
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, closeStore, err := newStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	library := delivery.NewLibrary(cfg.Library.Path)
	if err := library.Reload(); err != nil {
		return fmt.Errorf("failed to load the assessment library: %w", err)
	}
	logging.Info("Serve", "library holds %d assessments from %s", library.Len(), cfg.Library.Path)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Library.Watch {
		if err := library.Watch(ctx); err != nil {
			return fmt.Errorf("failed to watch the assessment library: %w", err)
		}
		defer library.Close()
	}

	events := delivery.NewBroadcaster()
	service := delivery.NewService(library, store, events)
	server := delivery.NewServer(cfg, service, library, events)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start the delivery server: %w", err)
	}
	logging.Info("Serve", "delivery server listening at %s", server.Endpoint())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

// newStore opens the configured snapshot store. The returned cleanup
// releases whatever the backend holds open.
func newStore(cfg config.StorageConfig) (storage.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), func() {}, nil
	case config.BackendFilesystem:
		return storage.NewFileStore(cfg.Path), func() {}, nil
	case config.BackendSQLite:
		store, err := storage.NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open the session database: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logging.Error("Serve", err, "closing the session database")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// init registers the serve command and its flags with the root
// command.
func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Configuration file (default: ~/.config/proctor/config.yaml)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address for the HTTP transports (overrides config)")
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "Transport to use: streamable-http, sse or stdio (overrides config)")
	serveCmd.Flags().StringVar(&serveLibrary, "library", "", "Assessment document directory (overrides config)")
	serveCmd.Flags().StringVar(&serveStorage, "storage", "", "Storage backend: memory, filesystem or sqlite (overrides config)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}
