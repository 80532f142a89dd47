package cmd

import (
	"context"
	"fmt"
	"os"

	"proctor/internal/cli"
	"proctor/internal/config"
	"proctor/internal/delivery"
	"proctor/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	sessionsConfigPath string
	sessionsOutput     string
)

// sessionsCmd groups the subcommands that inspect the session store.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored candidate sessions",
	Long: `Reads the session store the delivery server writes to and reports on
the sessions in it. Suspended sessions list alongside ended ones; live
sessions only exist inside a running server and show up here once they
are persisted.

The store and the assessment library come from the same configuration
the server uses, so point --config at the server's file. The memory
backend holds nothing between processes and always lists empty.`,
}

// sessionsListCmd lists every stored session.
var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the sessions in the configured store",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

// sessionsShowCmd details one stored session.
var sessionsShowCmd = &cobra.Command{
	Use:   "show SESSION_ID",
	Short: "Show one stored session, item by item",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

// newSessionsService builds a session service over the configured
// store and library, without starting a server.
func newSessionsService() (*delivery.Service, func(), error) {
	cfg, err := config.Load(sessionsConfigPath)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := newStore(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	library := delivery.NewLibrary(cfg.Library.Path)
	if err := library.Reload(); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("failed to load the assessment library: %w", err)
	}

	return delivery.NewService(library, store, delivery.NewBroadcaster()), closeStore, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	// Listings stay clean; only problems reach the terminal.
	logging.Initialize(logging.LevelWarn, os.Stderr)
	if err := cli.ValidateOutputFormat(sessionsOutput); err != nil {
		return err
	}

	service, cleanup, err := newSessionsService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	summaries, err := service.List(ctx)
	if err != nil {
		return err
	}

	switch cli.OutputFormat(sessionsOutput) {
	case cli.OutputFormatJSON:
		return cli.RenderJSON(cmd.OutOrStdout(), summaries)
	case cli.OutputFormatYAML:
		return cli.RenderYAML(cmd.OutOrStdout(), summaries)
	default:
		cli.RenderSessionList(cmd.OutOrStdout(), summaries)
		return nil
	}
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	logging.Initialize(logging.LevelWarn, os.Stderr)
	if err := cli.ValidateOutputFormat(sessionsOutput); err != nil {
		return err
	}

	service, cleanup, err := newSessionsService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	view, items, err := service.Describe(ctx, args[0])
	if err != nil {
		return err
	}

	switch cli.OutputFormat(sessionsOutput) {
	case cli.OutputFormatJSON, cli.OutputFormatYAML:
		payload := struct {
			Session *delivery.SessionView `json:"session" yaml:"session"`
			Items   []delivery.ItemView   `json:"items" yaml:"items"`
		}{view, items}
		if cli.OutputFormat(sessionsOutput) == cli.OutputFormatJSON {
			return cli.RenderJSON(cmd.OutOrStdout(), payload)
		}
		return cli.RenderYAML(cmd.OutOrStdout(), payload)
	default:
		cli.RenderSessionDetail(cmd.OutOrStdout(), view, items)
		return nil
	}
}

// init registers the sessions commands and their flags with the root
// command.
func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)

	sessionsCmd.PersistentFlags().StringVar(&sessionsConfigPath, "config", "", "Configuration file (default: ~/.config/proctor/config.yaml)")
	sessionsCmd.PersistentFlags().StringVarP(&sessionsOutput, "output", "o", string(cli.OutputFormatTable), "Output format: table, json or yaml")
}
