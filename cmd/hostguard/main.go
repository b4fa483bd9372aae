// Package main is the entry point for the hostguard CLI.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// Version information set by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

var (
	verbose bool
	logger  *log.Logger
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if logger != nil {
			logger.Error(err.Error())
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "hostguard",
		Short:   "Capability-mediated WASM plugin host",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if verbose {
				level = log.DebugLevel
			}
			logger = log.NewWithOptions(os.Stderr, log.Options{
				Level:           level,
				ReportTimestamp: false,
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newInstallCmd())
	root.AddCommand(newApproveCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newSchemaCmd())
	return root
}
