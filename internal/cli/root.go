// Package cli implements the tripproxy command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tripproxy",
		Short:        "Fetch proxy for the trip planner",
		SilenceUsage: true,
	}
	cmd.AddCommand(serveCmd(), resolveCmd())
	return cmd
}
