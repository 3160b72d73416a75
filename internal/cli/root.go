package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Config   string
	LogLevel string
}

// NewRootCommand creates the root command for the tracecheck CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tracecheck",
		Short: "Trace continuity checks for userspace tracing",
		Long: `tracecheck runs small subject programs under a tracing session and
checks that the events they emit survive process transitions.

Results are reported in TAP form on stdout; progress logs go to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewDaemonCommand(opts))

	return cmd
}
