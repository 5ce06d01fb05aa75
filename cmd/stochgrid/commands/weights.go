package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stochgrid/pkg/observability"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

// defaultWeightRows bounds the leaf table on wide trees.
const defaultWeightRows = 64

// NewWeightsCommand creates the weights subcommand.
func NewWeightsCommand(global *GlobalOptions) *cobra.Command {
	var (
		flags  treeFlags
		limit  int
		nodes  bool
		schema bool
	)

	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Print scenario probabilities",
		Long: `Print the probability of every leaf scenario, and with --nodes the marginal
probability of every tree node. Without a probability table all leaves weigh
the same. --schema prints the JSON schema probability tables must satisfy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if schema {
				_, err := cmd.OutOrStdout().Write(weighting.Schema())

				return err
			}

			sess, err := openSession(global, observability.ModeCLI)
			if err != nil {
				return err
			}
			defer sess.close(cmd.Context())

			p, buildErr := sess.buildPlan(cmd, &flags)
			if buildErr != nil {
				return buildErr
			}

			renderLeafWeights(cmd.OutOrStdout(), p.Weights(), limit)
			renderWeightSummary(cmd.OutOrStdout(), p.Weights())

			if nodes {
				return renderNodeWeights(cmd.OutOrStdout(), p)
			}

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", defaultWeightRows, "maximum leaf rows, 0 for all")
	cmd.Flags().BoolVar(&nodes, "nodes", false, "also print node marginals")
	cmd.Flags().BoolVar(&schema, "schema", false, "print the probability table schema and exit")

	return cmd
}
