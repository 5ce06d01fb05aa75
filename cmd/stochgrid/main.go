// Package main provides the entry point for the stochgrid CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stochgrid/cmd/stochgrid/commands"
	"github.com/Sumatoshi-tech/stochgrid/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	global := &commands.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "stochgrid",
		Short: "Stochgrid - scenario tree and multi-resolution index sets",
		Long: `Stochgrid builds the index sets of multi-stage stochastic programs: the
scenario tree over a fine time grid, coarser decision resolutions mapped onto
it, offset links, non-anticipativity masters and scenario probabilities.

Commands:
  build     Build and summarize the configured index sets
  export    Write the index sets as JSON, YAML or gob
  verify    Re-check structural invariants, optionally against a snapshot
  weights   Print scenario and node probabilities
  serve     Serve plans over an HTTP JSON API
  mcp       Serve plan tools to AI agents over MCP`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&global.ConfigPath, "config", "c", "", "config file (default .stochgrid.yaml in . or $HOME)")
	rootCmd.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&global.Quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewBuildCommand(global))
	rootCmd.AddCommand(commands.NewExportCommand(global))
	rootCmd.AddCommand(commands.NewVerifyCommand(global))
	rootCmd.AddCommand(commands.NewWeightsCommand(global))
	rootCmd.AddCommand(commands.NewServeCommand(global))
	rootCmd.AddCommand(commands.NewMCPCommand(global))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
