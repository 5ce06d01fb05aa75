package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/stochgrid/pkg/nonanticipativity"
	"github.com/Sumatoshi-tech/stochgrid/pkg/observability"
	"github.com/Sumatoshi-tech/stochgrid/pkg/resolution"
	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/treecache"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

const tracerName = "stochgrid"

// Error categories reported to metrics.
const (
	CategoryConfiguration = "configuration"
	CategoryConsistency   = "consistency"
	CategoryProbability   = "probability"
	CategoryResource      = "resource"
	CategoryCanceled      = "canceled"
	CategoryInternal      = "internal"
)

// Category maps a build error to its metric category.
func Category(err error) string {
	switch {
	case errors.Is(err, scenario.ErrConfiguration):
		return CategoryConfiguration
	case errors.Is(err, scenario.ErrConsistency):
		return CategoryConsistency
	case errors.Is(err, scenario.ErrProbability):
		return CategoryProbability
	case errors.Is(err, scenario.ErrResourceBound):
		return CategoryResource
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCanceled
	default:
		return CategoryInternal
	}
}

// Builder builds plans. The zero value is not usable; call NewBuilder.
type Builder struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics *observability.BuildMetrics
	cache   *treecache.Cache[*Plan]
}

// Option configures a Builder.
type Option func(*Builder)

// WithTracer sets the tracer phase spans are started on. Defaults to the
// global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(b *Builder) { b.tracer = tracer }
}

// WithLogger sets the build logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// WithMetrics records every build and cache lookup.
func WithMetrics(metrics *observability.BuildMetrics) Option {
	return func(b *Builder) { b.metrics = metrics }
}

// WithCache reuses plans across builds of equal requests.
func WithCache(cache *treecache.Cache[*Plan]) Option {
	return func(b *Builder) { b.cache = cache }
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{logger: slog.Default()}

	for _, opt := range opts {
		opt(b)
	}

	if b.tracer == nil {
		b.tracer = otel.Tracer(tracerName)
	}

	return b
}

// Build is a shorthand for NewBuilder(opts...).Build(ctx, req).
func Build(ctx context.Context, req Request, opts ...Option) (*Plan, error) {
	return NewBuilder(opts...).Build(ctx, req)
}

// Build returns the plan for req, from the cache when one is configured.
func (b *Builder) Build(ctx context.Context, req Request) (*Plan, error) {
	ctx, span := b.tracer.Start(ctx, "stochgrid.plan",
		trace.WithAttributes(
			attribute.Int("tree.branches", req.Branches),
			attribute.Int("tree.stages", req.Stages),
			attribute.Int("tree.stage_duration", req.StageDuration),
			attribute.Int("plan.resolutions", len(req.Resolutions)),
		))
	defer span.End()

	validateErr := req.Validate()
	if validateErr != nil {
		b.fail(ctx, span, validateErr, 0)

		return nil, validateErr
	}

	key := req.Key()
	span.SetAttributes(attribute.String("plan.key", key))

	if b.cache == nil {
		return b.buildRecorded(ctx, span, key, req)
	}

	p, hit, err := b.cache.GetOrBuild(ctx, key, func(ctx context.Context) (*Plan, error) {
		return b.buildRecorded(ctx, span, key, req)
	})

	span.SetAttributes(attribute.Bool("plan.cache_hit", hit))

	if b.metrics != nil {
		b.metrics.RecordCacheLookup(ctx, hit)
	}

	if err != nil {
		return nil, err
	}

	if hit {
		b.logger.DebugContext(ctx, "plan served from cache", "key", key)
	}

	// Limits are not part of the key, so a plan cached or built for another
	// caller answers to this caller's limits.
	limited, limitErr := p.WithLimits(req.Limits)
	if limitErr != nil {
		b.fail(ctx, span, limitErr, 0)

		return nil, limitErr
	}

	return limited, nil
}

func (b *Builder) buildRecorded(ctx context.Context, span trace.Span, key string, req Request) (*Plan, error) {
	start := time.Now()

	p, err := b.build(ctx, key, req)
	if err != nil {
		b.fail(ctx, span, err, time.Since(start))

		return nil, err
	}

	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("plan.points", p.tree.Len()))

	if b.metrics != nil {
		b.metrics.RecordBuild(ctx, observability.StatusOK, "", p.tree.Len(), elapsed)
	}

	b.logger.InfoContext(ctx, "plan built",
		"key", key,
		"points", p.tree.Len(),
		"leaves", p.tree.LeafCount(),
		"resolutions", len(p.resolutions),
		"duration", elapsed)

	return p, nil
}

func (b *Builder) fail(ctx context.Context, span trace.Span, err error, elapsed time.Duration) {
	category := Category(err)

	span.RecordError(err)
	span.SetStatus(codes.Error, category)

	if b.metrics != nil {
		b.metrics.RecordBuild(ctx, observability.StatusError, category, 0, elapsed)
	}

	b.logger.WarnContext(ctx, "plan build failed", "category", category, "error", err)
}

// phase runs fn inside a child span after checking for cancellation.
func (b *Builder) phase(ctx context.Context, name string, fn func() error) error {
	ctxErr := ctx.Err()
	if ctxErr != nil {
		return fmt.Errorf("%s: %w", name, ctxErr)
	}

	_, span := b.tracer.Start(ctx, "stochgrid.plan."+name)
	defer span.End()

	err := fn()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Category(err))

		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

func (b *Builder) build(ctx context.Context, key string, req Request) (*Plan, error) {
	var tree *scenario.Tree

	treeErr := b.phase(ctx, "tree", func() error {
		built, err := scenario.Build(req.TreeConfig())
		if err != nil {
			return err
		}

		verifyErr := scenario.Verify(built)
		if verifyErr != nil {
			return verifyErr
		}

		tree = built

		return nil
	})
	if treeErr != nil {
		return nil, treeErr
	}

	return b.assemble(ctx, key, req, tree)
}

// assemble derives everything but the tree. It is shared by Build and
// FromSnapshot.
func (b *Builder) assemble(ctx context.Context, key string, req Request, tree *scenario.Tree) (*Plan, error) {
	p := &Plan{key: key, request: req, tree: tree}

	resErr := b.phase(ctx, "resolutions", func() error {
		resolutions, err := buildResolutions(tree, req.Resolutions)
		p.resolutions = resolutions

		return err
	})
	if resErr != nil {
		return nil, resErr
	}

	linkErr := b.phase(ctx, "links", func() error {
		links, err := buildLinks(tree, req.LinkOffsets)
		p.links = links

		return err
	})
	if linkErr != nil {
		return nil, linkErr
	}

	gateErr := b.phase(ctx, "gate", func() error {
		p.gate = nonanticipativity.New(tree)

		return nil
	})
	if gateErr != nil {
		return nil, gateErr
	}

	weightErr := b.phase(ctx, "weights", func() error {
		if req.Probabilities == nil {
			p.weights = weighting.Uniform(tree)

			return nil
		}

		weights, err := weighting.FromTable(tree, *req.Probabilities)
		p.weights = weights

		return err
	})
	if weightErr != nil {
		return nil, weightErr
	}

	return p, nil
}

func buildResolutions(tree *scenario.Tree, reqs []ResolutionRequest) ([]*Resolution, error) {
	out := make([]*Resolution, 0, len(reqs))

	for _, rr := range reqs {
		grid, err := resolution.Coarsen(tree, rr.Period)
		if err != nil {
			return nil, fmt.Errorf("resolution %q: %w", rr.Name, err)
		}

		verifyErr := resolution.Verify(grid)
		if verifyErr != nil {
			return nil, fmt.Errorf("resolution %q: %w", rr.Name, verifyErr)
		}

		res := &Resolution{
			Name:    rr.Name,
			Grid:    grid,
			offsets: make([]int, 0, len(rr.Offsets)),
			shifted: make(map[int][]resolution.CoarsePoint, len(rr.Offsets)),
		}

		for _, off := range rr.Offsets {
			if _, done := res.shifted[off]; done {
				continue
			}

			shifted, shiftErr := resolution.Shifted(tree, rr.Period, off)
			if shiftErr != nil {
				return nil, fmt.Errorf("resolution %q: %w", rr.Name, shiftErr)
			}

			res.offsets = append(res.offsets, off)
			res.shifted[off] = shifted
		}

		out = append(out, res)
	}

	return out, nil
}

func buildLinks(tree *scenario.Tree, offsets []int) (map[int][]scenario.Link, error) {
	linker := scenario.NewLinker(tree)
	out := make(map[int][]scenario.Link, len(offsets))

	for _, off := range offsets {
		if _, done := out[off]; done {
			continue
		}

		links, err := linker.Links(off)
		if err != nil {
			return nil, err
		}

		out[off] = links
	}

	return out, nil
}

// FromSnapshot restores a plan from its persisted form. The tree is verified
// and everything else is rebuilt from the stored request.
func FromSnapshot(snap Snapshot) (*Plan, error) {
	return NewBuilder(WithLogger(slog.New(slog.DiscardHandler))).Restore(context.Background(), snap)
}

// Restore is FromSnapshot with the builder's tracer and logger.
func (b *Builder) Restore(ctx context.Context, snap Snapshot) (*Plan, error) {
	validateErr := snap.Request.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	tree, err := scenario.FromSnapshot(snap.Tree, snap.Request.Limits)
	if err != nil {
		return nil, err
	}

	want := snap.Request.TreeConfig()
	if tree.Branching() != want.Branches || tree.Stages() != want.Stages || tree.StageDuration() != want.StageDuration {
		return nil, &scenario.ConsistencyError{
			Invariant: "snapshot-shape",
			Detail:    "stored tree does not match the stored request",
		}
	}

	return b.assemble(ctx, snap.Request.Key(), snap.Request, tree)
}
