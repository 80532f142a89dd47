package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the proctor application.
// It is the entry point when the application is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "proctor",
	Short: "Run and deliver QTI assessment test sessions",
	Long: `proctor drives candidate sessions over QTI assessment tests: it walks
the route, opens and scores attempts, enforces time limits, and keeps
sessions restorable across suspends.

Use 'proctor serve' to expose the session service as an MCP server,
'proctor candidate' for an interactive terminal against it, 'proctor run'
for scripted in-process walkthroughs, and 'proctor sessions' to inspect
stored sessions.`,
	// SilenceUsage keeps handled errors from echoing the usage text.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. It is called from
// the main package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application. It is
// called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "proctor version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
