package scenario

import (
	"github.com/Sumatoshi-tech/stochgrid/pkg/treemath"
)

// Linker generalizes the predecessor relation to arbitrary look-back
// offsets, including offsets that cross one or more stage boundaries. It
// serves ramping look-back over one base step and transit coupling such as a
// vessel departing at t and arriving at t+journey.
type Linker struct {
	tree *Tree
}

// NewLinker returns a Linker over tree.
func NewLinker(tree *Tree) Linker {
	return Linker{tree: tree}
}

func validateOffset(offset int) error {
	if offset < 1 {
		return configErr("offset", offset, "must be at least 1")
	}

	return nil
}

// Predecessor returns the point offset base steps before (branch, time) on
// the same path. The ancestor branch is divided down once per stage boundary
// crossed between the two instants.
func (l Linker) Predecessor(branch, time, offset int) (GridPoint, error) {
	offsetErr := validateOffset(offset)
	if offsetErr != nil {
		return GridPoint{}, offsetErr
	}

	if !l.tree.Contains(branch, time) {
		return GridPoint{}, consistencyErr("point-in-grid", branch, time, "not a point of the full set")
	}

	target := time - offset
	if target < 0 {
		return GridPoint{}, consistencyErr("offset-in-range", branch, time,
			"offset %d reaches before the start of the horizon", offset)
	}

	ancestor := treemath.Ancestor(branch, treemath.Crossings(time, target, l.tree.StageDuration()), l.tree.Branching())
	if !l.tree.Contains(ancestor, target) {
		return GridPoint{}, consistencyErr("ancestor-in-grid", branch, time,
			"ancestor (%d, %d) is not a point of the full set", ancestor, target)
	}

	return GridPoint{Branch: ancestor, Time: target, RunLength: 1}, nil
}

// Successors returns every point offset base steps after (branch, time)
// whose path passes through (branch, time), ordered by branch.
func (l Linker) Successors(branch, time, offset int) ([]GridPoint, error) {
	offsetErr := validateOffset(offset)
	if offsetErr != nil {
		return nil, offsetErr
	}

	if !l.tree.Contains(branch, time) {
		return nil, consistencyErr("point-in-grid", branch, time, "not a point of the full set")
	}

	target := time + offset
	if target >= l.tree.Horizon() {
		return nil, consistencyErr("offset-in-range", branch, time,
			"offset %d reaches past the horizon %d", offset, l.tree.Horizon())
	}

	width := treemath.MustPow(l.tree.Branching(), treemath.Crossings(target, time, l.tree.StageDuration()))
	successors := make([]GridPoint, 0, width)

	for child := branch * width; child < (branch+1)*width; child++ {
		successors = append(successors, GridPoint{Branch: child, Time: target, RunLength: 1})
	}

	return successors, nil
}

// Links returns the offset continuity set: every FullSet point with
// time ≥ offset paired with its offset predecessor, in FullSet order.
func (l Linker) Links(offset int) ([]Link, error) {
	offsetErr := validateOffset(offset)
	if offsetErr != nil {
		return nil, offsetErr
	}

	links := make([]Link, 0, len(l.tree.points))

	for _, p := range l.tree.points {
		if p.Time < offset {
			continue
		}

		pred, err := l.Predecessor(p.Branch, p.Time, offset)
		if err != nil {
			return nil, err
		}

		links = append(links, Link{Point: p, Predecessor: pred})
	}

	return links, nil
}
