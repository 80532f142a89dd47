package cmd

import (
	"os"

	"proctor/internal/cli"
	"proctor/internal/session"
	"proctor/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	runScript string
	runDebug  bool

	runForceBranching     bool
	runForcePreconditions bool
	runPathTracking       bool
	runAlwaysAllowJumps   bool
	runInitializeAll      bool
)

// runCmd defines the run command structure. It walks a whole session
// in-process, without a server.
var runCmd = &cobra.Command{
	Use:   "run TEST_FILE",
	Short: "Run a scripted session over an assessment document",
	Long: `Runs one candidate session from beginning to end, driven by a script
file instead of a live candidate, and prints how the session ended:
one row per route item plus the test-level outcomes.

The script is YAML, one step per attempt in route order:

  steps:
    - item: Q01.0          # optional guard on the route position
      wait: PT45S          # optional time spent before submitting
      responses:
        RESPONSE: choice_a
    - skip: true           # pass the item by without an attempt

Steps pair with items as the route presents them; branch rules and
preconditions shape the route as usual, so a guard catches a script
that drifted from the document. Items beyond the last step are moved
past unattempted.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

// runRun is the main entry point for the run command.
func runRun(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if runDebug {
		level = logging.LevelDebug
	}
	logging.Initialize(level, os.Stderr)

	var cfg session.Config
	if runForceBranching {
		cfg |= session.ForceBranching
	}
	if runForcePreconditions {
		cfg |= session.ForcePreconditions
	}
	if runPathTracking {
		cfg |= session.PathTracking
	}
	if runAlwaysAllowJumps {
		cfg |= session.AlwaysAllowJumps
	}
	if runInitializeAll {
		cfg |= session.InitializeAllItems
	}

	report, err := cli.Run(cli.RunOptions{
		TestFile:   args[0],
		ScriptFile: runScript,
		Config:     cfg,
	})
	if err != nil {
		return err
	}

	cli.RenderRunReport(cmd.OutOrStdout(), report)
	return nil
}

// init registers the run command and its flags with the root command.
func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runScript, "script", "", "Script file driving the session (required)")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
	runCmd.Flags().BoolVar(&runForceBranching, "force-branching", false, "Apply branch rules in nonlinear test parts too")
	runCmd.Flags().BoolVar(&runForcePreconditions, "force-preconditions", false, "Apply preconditions in nonlinear test parts too")
	runCmd.Flags().BoolVar(&runPathTracking, "path-tracking", false, "Record visited positions for retraceable move-backs")
	runCmd.Flags().BoolVar(&runAlwaysAllowJumps, "always-allow-jumps", false, "Permit jumps in linear test parts")
	runCmd.Flags().BoolVar(&runInitializeAll, "initialize-all-items", false, "Materialize every item session up front")

	_ = runCmd.MarkFlagRequired("script")
}
