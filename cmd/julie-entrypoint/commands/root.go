// Package commands implements the julie-entrypoint CLI: the bootstrap run
// on the root command and the admin subcommands next to it.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/juliehq/julie-entrypoint/cmd/julie-entrypoint/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile  string
	logLevel string
)

// rootCmd bootstraps the server when called with a command line.
var rootCmd = &cobra.Command{
	Use:   "julie-entrypoint [flags] [--] COMMAND [ARGS...]",
	Short: "Container entrypoint for the julie API server",
	Long: `julie-entrypoint prepares the container for the julie API server and then
hands the process over to it:

  1. wait until the database accepts connections
  2. run the deploy audit and apply pending migrations
  3. collect static assets and write the liveness marker
  4. exec the server command (or supervise it where exec is unavailable)

Everything after the first non-flag argument is the server command, passed
through verbatim. Use "--" when the command shares a name with a subcommand.

Examples:
  # Typical container entrypoint
  julie-entrypoint gunicorn julie.wsgi:application --config gunicorn.conf.py

  # Custom configuration
  julie-entrypoint --config /etc/julie/entrypoint.yaml -- gunicorn julie.wsgi:application

Exit codes: the server's own after handoff, 1 when bootstrap fails, 2 on
configuration or usage errors.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBootstrap,
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/julie/entrypoint.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (DEBUG|INFO|WARN|ERROR)")

	// Flags after the server command belong to the server.
	rootCmd.Flags().SetInterspersed(false)
	rootCmd.SetFlagErrorFunc(flagError)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(dbinitCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
