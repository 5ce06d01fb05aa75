package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stochgrid/pkg/mcp"
	"github.com/Sumatoshi-tech/stochgrid/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes plan building as tools that AI agents can discover and
invoke. Every call goes through the configured limits and plan cache:
  - build_plan:   build a plan and return the requested document sections
  - verify_plan:  build a plan and re-check its structural invariants
  - leaf_weights: build a plan and return its leaf scenario probabilities

Logs are written to stderr as JSON.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := openSession(global, observability.ModeMCP)
			if err != nil {
				return err
			}
			defer sess.close(cmd.Context())

			builder, _, builderErr := sess.builder(true)
			if builderErr != nil {
				return builderErr
			}

			red, redErr := observability.NewREDMetrics(sess.providers.Meter)
			if redErr != nil {
				return redErr
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Builder: builder,
				Limits:  sess.cfg.Limits.Scenario(),
				Logger:  sess.logger,
				Metrics: red,
				Tracer:  sess.providers.Tracer,
			})

			return srv.Run(cmd.Context())
		},
	}
}
