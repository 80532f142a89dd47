package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proctor/internal/candidate"
	"proctor/internal/config"
	"proctor/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	candidateEndpoint string
	candidateDebug    bool
)

// candidateCmd defines the candidate command structure. It is the
// interactive client side of a running delivery server.
var candidateCmd = &cobra.Command{
	Use:   "candidate",
	Short: "Take an assessment interactively against a delivery server",
	Long: `Connects to a running delivery server and opens an interactive
terminal for taking assessments: list the available tests, start a
session, answer items, move around, suspend and resume.

The endpoint's path picks the transport: an address ending in /sse
uses Server-Sent Events, anything else the streamable HTTP transport.
Without --endpoint the address is derived from the configured listen
address.

Type 'help' inside the terminal for the command list. A suspended
session keeps its place; 'resume' picks it up again, in this terminal
or a later one.`,
	Args: cobra.NoArgs,
	RunE: runCandidate,
}

// runCandidate is the main entry point for the candidate command.
func runCandidate(cmd *cobra.Command, args []string) error {
	level := logging.LevelWarn
	if candidateDebug {
		level = logging.LevelDebug
	}
	// The terminal owns stdout, so logs go to stderr.
	logging.Initialize(level, os.Stderr)

	endpoint := candidateEndpoint
	if endpoint == "" {
		cfg, err := config.Load("")
		if err != nil {
			return err
		}
		endpoint = fmt.Sprintf("http://%s/mcp", cfg.Listen)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := candidate.NewClient(endpoint)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w (is 'proctor serve' running?)", endpoint, err)
	}
	defer client.Close()

	return candidate.NewREPL(client).Run(ctx)
}

// init registers the candidate command and its flags with the root
// command.
func init() {
	rootCmd.AddCommand(candidateCmd)

	candidateCmd.Flags().StringVar(&candidateEndpoint, "endpoint", "", "Delivery server MCP endpoint URL (default: from config)")
	candidateCmd.Flags().BoolVar(&candidateDebug, "debug", false, "Enable debug logging")
}
