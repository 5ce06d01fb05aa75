package resolution

import (
	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/treemath"
)

// Shifted returns, for every FullSet point in FullSet order, the period-P
// record that owns the point offset base steps back along the same path.
// Lookups that reach before time zero resolve to the root block and are marked
// Clamped, mirroring the root self-loop of the base continuity set. Offset 0
// yields the OverlapSet; period 1 with offset 1 yields the ContinuitySet.
func Shifted(tree *scenario.Tree, period, offset int) ([]CoarsePoint, error) {
	periodErr := validatePeriod(period)
	if periodErr != nil {
		return nil, periodErr
	}

	shiftErr := validateShift(offset)
	if shiftErr != nil {
		return nil, shiftErr
	}

	grid := &Grid{tree: tree, period: period}
	out := make([]CoarsePoint, tree.Len())

	for i := range tree.Len() {
		p := tree.At(i)

		target := p.Time - offset
		if target < 0 {
			root := grid.block(0, 0)
			root.Clamped = true
			out[i] = root

			continue
		}

		branch := treemath.Ancestor(p.Branch, treemath.Crossings(p.Time, target, tree.StageDuration()), tree.Branching())
		out[i] = grid.owner(branch, target)
	}

	return out, nil
}

// Component selects one coordinate of a coupling tuple: the period-P owner of
// the point Offset base steps back.
type Component struct {
	Name   string `json:"name"   yaml:"name"`
	Period int    `json:"period" yaml:"period"`
	Offset int    `json:"offset" yaml:"offset"`
}

// Tuple is one row of a coupling set: a base point and one coarse record per
// requested component, in request order.
type Tuple struct {
	Point scenario.GridPoint `json:"point" yaml:"point"`
	Parts []CoarsePoint      `json:"parts" yaml:"parts"`
}

// Couple zips the FullSet with several shifted grids. A typical request pairs
// the base point with its previous base point, its block, the previous block
// and a transit-departure block, which is exactly what storage and shipping
// balance constraints iterate over.
func Couple(tree *scenario.Tree, components ...Component) ([]Tuple, error) {
	columns := make([][]CoarsePoint, len(components))

	for i, c := range components {
		column, err := Shifted(tree, c.Period, c.Offset)
		if err != nil {
			return nil, err
		}

		columns[i] = column
	}

	tuples := make([]Tuple, tree.Len())

	for i := range tuples {
		parts := make([]CoarsePoint, len(columns))
		for j, column := range columns {
			parts[j] = column[i]
		}

		tuples[i] = Tuple{Point: tree.At(i), Parts: parts}
	}

	return tuples, nil
}
