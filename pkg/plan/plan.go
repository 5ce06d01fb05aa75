// Package plan assembles a complete, immutable index-set plan from a Request:
// the scenario tree, every requested coarse resolution with its shifted grids,
// the offset links, the non-anticipativity gate and the probability weights.
//
// Plans are pure values. Reuse across repeated solves goes through an injected
// treecache.Cache keyed by Request.Key.
package plan

import (
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/stochgrid/pkg/nonanticipativity"
	"github.com/Sumatoshi-tech/stochgrid/pkg/resolution"
	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

// Resolution is one built cadence.
type Resolution struct {
	Name string
	Grid *resolution.Grid

	offsets []int
	shifted map[int][]resolution.CoarsePoint
}

// Offsets returns the shifted offsets built for the resolution, in request
// order.
func (r *Resolution) Offsets() []int {
	return slices.Clone(r.offsets)
}

// Shifted returns the shifted grid for offset, aligned with the FullSet.
func (r *Resolution) Shifted(offset int) ([]resolution.CoarsePoint, bool) {
	grid, ok := r.shifted[offset]

	return slices.Clone(grid), ok
}

// Plan is the immutable result of a build.
type Plan struct {
	key     string
	request Request

	tree        *scenario.Tree
	resolutions []*Resolution
	links       map[int][]scenario.Link
	gate        *nonanticipativity.Gate
	weights     *weighting.Weights
}

// Key returns the request key the plan was built for.
func (p *Plan) Key() string { return p.key }

// Request returns the request the plan was built from.
func (p *Plan) Request() Request { return p.request }

// Tree returns the base scenario tree.
func (p *Plan) Tree() *scenario.Tree { return p.tree }

// Gate returns the non-anticipativity gate.
func (p *Plan) Gate() *nonanticipativity.Gate { return p.gate }

// Weights returns the leaf and node weights.
func (p *Plan) Weights() *weighting.Weights { return p.weights }

// Resolutions returns the built resolutions in request order.
func (p *Plan) Resolutions() []*Resolution {
	return slices.Clone(p.resolutions)
}

// Resolution returns the resolution with the given name.
func (p *Plan) Resolution(name string) (*Resolution, bool) {
	for _, r := range p.resolutions {
		if r.Name == name {
			return r, true
		}
	}

	return nil, false
}

// Links returns the precomputed offset links for offset.
func (p *Plan) Links(offset int) ([]scenario.Link, bool) {
	links, ok := p.links[offset]

	return slices.Clone(links), ok
}

// LinkOffsets returns the offsets links were built for, ascending.
func (p *Plan) LinkOffsets() []int {
	offsets := make([]int, 0, len(p.links))
	for off := range p.links {
		offsets = append(offsets, off)
	}

	slices.Sort(offsets)

	return offsets
}

// WithLimits returns p held to limits instead of the limits it was built
// under. The tree is checked against them and the result, which shares every
// index set with p, bounds what Document materializes.
func (p *Plan) WithLimits(limits scenario.Limits) (*Plan, error) {
	if p.request.Limits == limits {
		return p, nil
	}

	err := limits.Admits(p.tree.Config())
	if err != nil {
		return nil, err
	}

	cp := *p
	cp.request.Limits = limits

	return &cp, nil
}

// CompressBreaks returns the run breaks that keep every coarse owner and
// every shifted owner constant within a run: each resolution's blocks, each
// shifted lookup's lagged blocks, and the stage boundaries a lagged lookup
// crosses.
func (p *Plan) CompressBreaks() []scenario.Break {
	var breaks []scenario.Break

	add := func(br scenario.Break) {
		if !slices.Contains(breaks, br) {
			breaks = append(breaks, br)
		}
	}

	stage := p.tree.StageDuration()

	for _, r := range p.resolutions {
		period := r.Grid.Period()
		add(scenario.Break{Period: period})

		for _, off := range r.offsets {
			add(scenario.Break{Period: period, Offset: off % period})

			if off%stage != 0 {
				add(scenario.Break{Period: stage, Offset: off % stage})
			}
		}
	}

	return breaks
}

// Compressed run-length compresses the FullSet at CompressBreaks.
func (p *Plan) Compressed() ([]scenario.GridPoint, error) {
	runs, err := scenario.Compress(p.tree, scenario.CompressOptions{Breaks: p.CompressBreaks()})
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}

	return runs, nil
}

// Snapshot is the persisted form of a plan. Everything but the tree is cheap
// to rebuild, so only the tree is stored alongside the request.
type Snapshot struct {
	Request Request               `json:"request" yaml:"request"`
	Tree    scenario.TreeSnapshot `json:"tree"    yaml:"tree"`
}

// Snapshot captures the plan for persistence.
func (p *Plan) Snapshot() Snapshot {
	return Snapshot{Request: p.request, Tree: p.tree.Snapshot()}
}
