// Package resolution maps coarser temporal resolutions onto the base grid of a
// scenario tree.
//
// A resolution of period P cuts the horizon into blocks [k·P, (k+1)·P). The
// decision for a block is taken at its first base time, so the branch that
// owns a block is the branch active at the block's start. Base points later in
// the block that sit on deeper branches divide their branch down once per
// stage boundary crossed since the block started. The same rule covers periods
// that do not divide the stage duration.
package resolution

import (
	"cmp"
	"slices"

	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/treemath"
)

// CoarsePoint is one decision record of a coarse resolution.
type CoarsePoint struct {
	Branch int `json:"branch" yaml:"branch"`
	Block  int `json:"block"  yaml:"block"`
	// Start is the first base time of the block.
	Start int `json:"start" yaml:"start"`
	// Span is the number of base steps in the block; only the last block of
	// the horizon may be shorter than the period.
	Span int `json:"span" yaml:"span"`
	// Clamped marks a shifted lookup that reached before the horizon start and
	// was mapped onto the root block.
	Clamped bool `json:"clamped,omitempty" yaml:"clamped,omitempty"`
}

// Contains reports whether base time lies inside the block.
func (c CoarsePoint) Contains(time int) bool {
	return time >= c.Start && time < c.Start+c.Span
}

type blockKey struct {
	branch int
	block  int
}

// Grid is a coarsened view of a tree at one period.
type Grid struct {
	tree   *scenario.Tree
	period int

	// coarse is the CoarseSet, branch-major then by block.
	coarse []CoarsePoint
	// overlap[i] owns tree.At(i).
	overlap []CoarsePoint
	index   map[blockKey]int
}

func validatePeriod(period int) error {
	if period < 1 {
		return &scenario.ConfigurationError{Field: "period", Value: period, Reason: "must be at least 1"}
	}

	return nil
}

func validateShift(offset int) error {
	if offset < 0 {
		return &scenario.ConfigurationError{Field: "offset", Value: offset, Reason: "must be non-negative"}
	}

	return nil
}

// Coarsen builds the CoarseSet and OverlapSet of tree at the given period.
func Coarsen(tree *scenario.Tree, period int) (*Grid, error) {
	periodErr := validatePeriod(period)
	if periodErr != nil {
		return nil, periodErr
	}

	grid := &Grid{
		tree:    tree,
		period:  period,
		overlap: make([]CoarsePoint, tree.Len()),
		index:   make(map[blockKey]int),
	}

	blocks := (tree.Horizon() + period - 1) / period

	for block := range blocks {
		start := block * period

		for branch := range tree.BranchesAt(start) {
			grid.coarse = append(grid.coarse, grid.block(branch, block))
		}
	}

	slices.SortFunc(grid.coarse, func(a, b CoarsePoint) int {
		return cmp.Or(cmp.Compare(a.Branch, b.Branch), cmp.Compare(a.Block, b.Block))
	})

	for i, c := range grid.coarse {
		grid.index[blockKey{c.Branch, c.Block}] = i
	}

	for i := range tree.Len() {
		p := tree.At(i)
		grid.overlap[i] = grid.owner(p.Branch, p.Time)
	}

	return grid, nil
}

func (g *Grid) block(branch, block int) CoarsePoint {
	start := block * g.period

	return CoarsePoint{
		Branch: branch,
		Block:  block,
		Start:  start,
		Span:   min(g.period, g.tree.Horizon()-start),
	}
}

// owner assumes (branch, time) is a point of the tree.
func (g *Grid) owner(branch, time int) CoarsePoint {
	start := treemath.BlockStart(time, g.period)
	levels := treemath.Crossings(time, start, g.tree.StageDuration())

	return g.block(treemath.Ancestor(branch, levels, g.tree.Branching()), treemath.BlockIndex(time, g.period))
}

// Period returns P.
func (g *Grid) Period() int { return g.period }

// Tree returns the base tree.
func (g *Grid) Tree() *scenario.Tree { return g.tree }

// Blocks returns the number of blocks covering the horizon.
func (g *Grid) Blocks() int {
	return (g.tree.Horizon() + g.period - 1) / g.period
}

// CoarseSet returns the owning records, branch-major then by block. The
// slice is a copy.
func (g *Grid) CoarseSet() []CoarsePoint {
	return slices.Clone(g.coarse)
}

// Overlap returns the OverlapSet: the owner of every FullSet point, aligned
// positionally with tree.Points(). The slice is a copy.
func (g *Grid) Overlap() []CoarsePoint {
	return slices.Clone(g.overlap)
}

// Owner returns the coarse record owning base point (branch, time).
func (g *Grid) Owner(branch, time int) (CoarsePoint, error) {
	idx, ok := g.tree.Index(branch, time)
	if !ok {
		return CoarsePoint{}, &scenario.ConsistencyError{
			Invariant: "point-in-grid",
			Branch:    branch,
			Time:      time,
			Detail:    "not a point of the full set",
		}
	}

	return g.overlap[idx], nil
}

// Members returns the base points owned by the coarse record (branch, block),
// in FullSet order.
func (g *Grid) Members(branch, block int) []scenario.GridPoint {
	var members []scenario.GridPoint

	for i, o := range g.overlap {
		if o.Branch == branch && o.Block == block {
			members = append(members, g.tree.At(i))
		}
	}

	return members
}

// Has reports whether (branch, block) is a CoarseSet record.
func (g *Grid) Has(branch, block int) bool {
	_, ok := g.index[blockKey{branch, block}]

	return ok
}
