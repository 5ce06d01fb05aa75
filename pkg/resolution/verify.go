package resolution

import (
	"fmt"

	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/treemath"
)

func inconsistent(invariant string, p scenario.GridPoint, format string, args ...any) error {
	return &scenario.ConsistencyError{
		Invariant: invariant,
		Branch:    p.Branch,
		Time:      p.Time,
		Detail:    fmt.Sprintf(format, args...),
	}
}

// Verify checks that the OverlapSet partitions every path's time axis into
// contiguous blocks owned by CoarseSet records, and that no CoarseSet record
// is left without members.
func Verify(grid *Grid) error {
	tree := grid.tree

	if len(grid.overlap) != tree.Len() {
		return &scenario.ConsistencyError{
			Invariant: "overlap-cardinality",
			Detail:    fmt.Sprintf("%d owners for %d points", len(grid.overlap), tree.Len()),
		}
	}

	used := make([]bool, len(grid.coarse))

	for i, link := range tree.Continuity() {
		p := link.Point
		owner := grid.overlap[i]

		idx, ok := grid.index[blockKey{owner.Branch, owner.Block}]
		if !ok {
			return inconsistent("owner-in-coarse-set", p, "owner (%d, block %d) is not a coarse record",
				owner.Branch, owner.Block)
		}

		used[idx] = true

		if !owner.Contains(p.Time) {
			return inconsistent("owner-covers-point", p, "block [%d, %d) does not cover the point",
				owner.Start, owner.Start+owner.Span)
		}

		levels := treemath.Crossings(p.Time, owner.Start, tree.StageDuration())
		if treemath.Ancestor(p.Branch, levels, tree.Branching()) != owner.Branch {
			return inconsistent("owner-on-path", p, "owner branch %d is not on the point's path", owner.Branch)
		}

		if link.IsRoot() {
			continue
		}

		predErr := verifyStep(grid, link, owner)
		if predErr != nil {
			return predErr
		}
	}

	for i, c := range grid.coarse {
		if !used[i] {
			return &scenario.ConsistencyError{
				Invariant: "coarse-record-used",
				Branch:    c.Branch,
				Time:      c.Start,
				Detail:    fmt.Sprintf("block %d owns no base point", c.Block),
			}
		}
	}

	return nil
}

// verifyStep checks that consecutive points of a path either share one owner
// or start the next block.
func verifyStep(grid *Grid, link scenario.Link, owner CoarsePoint) error {
	predIdx, ok := grid.tree.Index(link.Predecessor.Branch, link.Predecessor.Time)
	if !ok {
		return inconsistent("predecessor-in-grid", link.Point, "predecessor is not a point of the full set")
	}

	prev := grid.overlap[predIdx]

	switch {
	case prev.Block == owner.Block:
		if prev.Branch != owner.Branch {
			return inconsistent("single-owner", link.Point, "block %d has owners %d and %d on one path",
				owner.Block, prev.Branch, owner.Branch)
		}
	case prev.Block+1 == owner.Block:
		if link.Point.Time != owner.Start {
			return inconsistent("contiguous-blocks", link.Point, "block %d entered at %d, starts at %d",
				owner.Block, link.Point.Time, owner.Start)
		}
	default:
		return inconsistent("contiguous-blocks", link.Point, "path jumps from block %d to %d",
			prev.Block, owner.Block)
	}

	return nil
}
