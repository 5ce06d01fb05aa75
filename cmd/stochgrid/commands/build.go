package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stochgrid/pkg/observability"
)

// NewBuildCommand creates the build subcommand.
func NewBuildCommand(global *GlobalOptions) *cobra.Command {
	var flags treeFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the scenario tree and index sets and print a summary",
		Long: `Build the scenario tree, every configured resolution, the offset links,
the non-anticipativity gate and the probability weights, then print their shape.

Examples:
  stochgrid build
  stochgrid build -b 3 -s 2 -l 24 -r day=24@0,1 -r week=168
  stochgrid build --config grid.yaml --links 1,24`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := openSession(global, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer sess.close(cmd.Context())

			p, buildErr := sess.buildPlan(cmd, &flags)
			if buildErr != nil {
				return buildErr
			}

			renderSummary(cmd.OutOrStdout(), p)

			return nil
		},
	}

	flags.register(cmd)

	return cmd
}
