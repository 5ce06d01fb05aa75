// Package commands implements the stochgrid subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stochgrid/pkg/config"
	"github.com/Sumatoshi-tech/stochgrid/pkg/observability"
	"github.com/Sumatoshi-tech/stochgrid/pkg/plan"
	"github.com/Sumatoshi-tech/stochgrid/pkg/treecache"
	"github.com/Sumatoshi-tech/stochgrid/pkg/version"
)

// ErrBadResolution is returned for a malformed --resolution value.
var ErrBadResolution = errors.New("resolution must look like name=period or name=period@off,off")

// GlobalOptions holds the persistent root flags.
type GlobalOptions struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

// treeFlags override the tree and resolution sections of the config file.
type treeFlags struct {
	branches      int
	stages        int
	stageDuration int
	resolutions   []string
	links         []int
	probabilities string
}

func (f *treeFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.branches, "branches", "b", 0, "branching factor (overrides tree.branches)")
	cmd.Flags().IntVarP(&f.stages, "stages", "s", 0, "number of branching stages (overrides tree.stages)")
	cmd.Flags().IntVarP(&f.stageDuration, "stage-duration", "l", 0, "base steps per stage (overrides tree.stage_duration)")
	cmd.Flags().StringArrayVarP(&f.resolutions, "resolution", "r", nil, "coarse resolution name=period[@offset,...], repeatable")
	cmd.Flags().IntSliceVar(&f.links, "links", nil, "continuity link offsets to precompute")
	cmd.Flags().StringVarP(&f.probabilities, "probabilities", "p", "", "JSON probability table (overrides probabilities)")
}

func (f *treeFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("branches") {
		cfg.Tree.Branches = f.branches
	}

	if flags.Changed("stages") {
		cfg.Tree.Stages = f.stages
	}

	if flags.Changed("stage-duration") {
		cfg.Tree.StageDuration = f.stageDuration
	}

	if flags.Changed("resolution") {
		cfg.Resolutions = make([]plan.ResolutionRequest, 0, len(f.resolutions))

		for _, raw := range f.resolutions {
			res, err := parseResolution(raw)
			if err != nil {
				return err
			}

			cfg.Resolutions = append(cfg.Resolutions, res)
		}
	}

	if flags.Changed("links") {
		cfg.LinkOffsets = f.links
	}

	if flags.Changed("probabilities") {
		cfg.Probabilities = f.probabilities
	}

	return nil
}

// parseResolution parses "day=24" or "day=24@0,1,24".
func parseResolution(raw string) (plan.ResolutionRequest, error) {
	name, rest, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return plan.ResolutionRequest{}, fmt.Errorf("%w: %q", ErrBadResolution, raw)
	}

	periodText, offsetText, hasOffsets := strings.Cut(rest, "@")

	period, err := strconv.Atoi(strings.TrimSpace(periodText))
	if err != nil {
		return plan.ResolutionRequest{}, fmt.Errorf("%w: %q", ErrBadResolution, raw)
	}

	res := plan.ResolutionRequest{Name: strings.TrimSpace(name), Period: period}

	if !hasOffsets {
		return res, nil
	}

	for field := range strings.SplitSeq(offsetText, ",") {
		off, convErr := strconv.Atoi(strings.TrimSpace(field))
		if convErr != nil {
			return plan.ResolutionRequest{}, fmt.Errorf("%w: %q", ErrBadResolution, raw)
		}

		res.Offsets = append(res.Offsets, off)
	}

	return res, nil
}

// session is the per-invocation runtime: loaded config and telemetry.
type session struct {
	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger
}

func openSession(global *GlobalOptions, mode observability.AppMode) (*session, error) {
	cfg, err := config.LoadConfig(global.ConfigPath)
	if err != nil {
		return nil, err
	}

	obsCfg := cfg.Observability(version.Version, mode)

	switch {
	case global.Quiet:
		obsCfg.LogLevel = slog.LevelError
	case global.Verbose:
		obsCfg.LogLevel = slog.LevelDebug
	}

	providers, initErr := observability.Init(obsCfg)
	if initErr != nil {
		return nil, fmt.Errorf("init observability: %w", initErr)
	}

	return &session{cfg: cfg, providers: providers, logger: providers.Logger}, nil
}

func (s *session) close(ctx context.Context) {
	shutdownErr := s.providers.Shutdown(context.WithoutCancel(ctx))
	if shutdownErr != nil {
		s.logger.Warn("observability shutdown failed", "error", shutdownErr)
	}
}

// builder wires telemetry and, when requested or configured with a cache
// directory, a plan cache.
func (s *session) builder(withCache bool) (*plan.Builder, *treecache.Cache[*plan.Plan], error) {
	metrics, err := observability.NewBuildMetrics(s.providers.Meter)
	if err != nil {
		return nil, nil, fmt.Errorf("build metrics: %w", err)
	}

	opts := []plan.Option{
		plan.WithTracer(s.providers.Tracer),
		plan.WithLogger(s.logger),
		plan.WithMetrics(metrics),
	}

	var cache *treecache.Cache[*plan.Plan]

	if withCache || s.cfg.Cache.Dir != "" {
		cacheCfg, cacheErr := s.cfg.PlanCache()
		if cacheErr != nil {
			return nil, nil, cacheErr
		}

		cacheCfg.Logger = s.logger
		cache = plan.NewCache(cacheCfg)
		opts = append(opts, plan.WithCache(cache))
	}

	return plan.NewBuilder(opts...), cache, nil
}

// buildPlan applies flag overrides and builds the configured plan.
func (s *session) buildPlan(cmd *cobra.Command, flags *treeFlags) (*plan.Plan, error) {
	applyErr := flags.apply(cmd, s.cfg)
	if applyErr != nil {
		return nil, applyErr
	}

	req, err := s.cfg.Request()
	if err != nil {
		return nil, err
	}

	builder, _, builderErr := s.builder(false)
	if builderErr != nil {
		return nil, builderErr
	}

	return builder.Build(cmd.Context(), req)
}
