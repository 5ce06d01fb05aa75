package resolution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stochgrid/pkg/resolution"
	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
)

func refTree(t *testing.T) *scenario.Tree {
	t.Helper()

	tree, err := scenario.Build(scenario.Config{Branches: 2, Stages: 2, StageDuration: 3})
	require.NoError(t, err)

	return tree
}

func sweepTrees(t *testing.T) []*scenario.Tree {
	t.Helper()

	var trees []*scenario.Tree

	for b := 1; b <= 3; b++ {
		for s := 0; s <= 3; s++ {
			for l := 1; l <= 4; l++ {
				tree, err := scenario.Build(scenario.Config{Branches: b, Stages: s, StageDuration: l})
				require.NoError(t, err)

				trees = append(trees, tree)
			}
		}
	}

	return trees
}

func TestCoarsen_PeriodDividesStage(t *testing.T) {
	t.Parallel()

	grid, err := resolution.Coarsen(refTree(t), 3)
	require.NoError(t, err)

	assert.Equal(t, 3, grid.Blocks())
	assert.Len(t, grid.CoarseSet(), 7)

	owner, err := grid.Owner(3, 7)
	require.NoError(t, err)
	assert.Equal(t, resolution.CoarsePoint{Branch: 3, Block: 2, Start: 6, Span: 3}, owner)

	require.NoError(t, resolution.Verify(grid))
}

func TestCoarsen_PeriodNotDividingStage(t *testing.T) {
	t.Parallel()

	grid, err := resolution.Coarsen(refTree(t), 2)
	require.NoError(t, err)

	assert.Equal(t, 5, grid.Blocks())
	assert.Len(t, grid.CoarseSet(), 12)

	owner, err := grid.Owner(1, 3)
	require.NoError(t, err)
	assert.Equal(t, resolution.CoarsePoint{Branch: 0, Block: 1, Start: 2, Span: 2}, owner)

	owner, err = grid.Owner(2, 8)
	require.NoError(t, err)
	assert.Equal(t, resolution.CoarsePoint{Branch: 2, Block: 4, Start: 8, Span: 1}, owner)

	assert.Equal(t, []scenario.GridPoint{
		{Branch: 0, Time: 2, RunLength: 1},
		{Branch: 0, Time: 3, RunLength: 1},
		{Branch: 1, Time: 3, RunLength: 1},
	}, grid.Members(0, 1))

	require.NoError(t, resolution.Verify(grid))
}

func TestCoarsen_BlockSpansTwoStages(t *testing.T) {
	t.Parallel()

	grid, err := resolution.Coarsen(refTree(t), 4)
	require.NoError(t, err)

	owner, err := grid.Owner(3, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, owner.Branch)
	assert.Equal(t, 1, owner.Block)

	assert.True(t, grid.Has(1, 1))
	assert.False(t, grid.Has(2, 1), "branch 2 is not active at time 4")
	assert.True(t, grid.Has(3, 2))

	require.NoError(t, resolution.Verify(grid))
}

func TestCoarsen_PartitionForAllPeriods(t *testing.T) {
	t.Parallel()

	for _, tree := range sweepTrees(t) {
		for period := 1; period <= tree.Horizon()+1; period++ {
			grid, err := resolution.Coarsen(tree, period)
			require.NoError(t, err)
			require.NoError(t, resolution.Verify(grid), "config %+v period %d", tree.Config(), period)

			overlap := grid.Overlap()
			require.Len(t, overlap, tree.Len())

			members := 0
			for _, c := range grid.CoarseSet() {
				members += len(grid.Members(c.Branch, c.Block))
			}

			assert.Equal(t, tree.Len(), members)
		}
	}
}

func TestCoarsen_PeriodOneIsBaseGrid(t *testing.T) {
	t.Parallel()

	tree := refTree(t)

	grid, err := resolution.Coarsen(tree, 1)
	require.NoError(t, err)

	for i, p := range tree.Points() {
		o := grid.Overlap()[i]
		assert.Equal(t, p.Branch, o.Branch)
		assert.Equal(t, p.Time, o.Start)
		assert.Equal(t, 1, o.Span)
	}
}

func TestCoarsen_InvalidPeriod(t *testing.T) {
	t.Parallel()

	_, err := resolution.Coarsen(refTree(t), 0)
	require.ErrorIs(t, err, scenario.ErrConfiguration)
}

func TestGrid_OwnerOutsideGrid(t *testing.T) {
	t.Parallel()

	grid, err := resolution.Coarsen(refTree(t), 3)
	require.NoError(t, err)

	_, err = grid.Owner(2, 4)
	require.ErrorIs(t, err, scenario.ErrConsistency)
}

func TestShifted_UnitLagIsContinuity(t *testing.T) {
	t.Parallel()

	for _, tree := range sweepTrees(t) {
		shifted, err := resolution.Shifted(tree, 1, 1)
		require.NoError(t, err)

		for i, link := range tree.Continuity() {
			assert.Equal(t, link.Predecessor.Branch, shifted[i].Branch)
			assert.Equal(t, link.Predecessor.Time, shifted[i].Start)
			assert.Equal(t, link.IsRoot(), shifted[i].Clamped)
		}
	}
}

func TestShifted_ZeroOffsetIsOverlap(t *testing.T) {
	t.Parallel()

	for _, tree := range sweepTrees(t) {
		for period := 1; period <= tree.Horizon(); period++ {
			grid, err := resolution.Coarsen(tree, period)
			require.NoError(t, err)

			shifted, err := resolution.Shifted(tree, period, 0)
			require.NoError(t, err)

			assert.Equal(t, grid.Overlap(), shifted)
		}
	}
}

func TestShifted_LagAcrossBoundary(t *testing.T) {
	t.Parallel()

	tree := refTree(t)

	shifted, err := resolution.Shifted(tree, 2, 4)
	require.NoError(t, err)

	idx, ok := tree.Index(3, 7)
	require.True(t, ok)
	assert.Equal(t, resolution.CoarsePoint{Branch: 0, Block: 1, Start: 2, Span: 2}, shifted[idx])

	idx, ok = tree.Index(0, 2)
	require.True(t, ok)
	assert.Equal(t, resolution.CoarsePoint{Branch: 0, Block: 0, Start: 0, Span: 2, Clamped: true}, shifted[idx])

	_, err = resolution.Shifted(tree, 2, -1)
	require.ErrorIs(t, err, scenario.ErrConfiguration)
}

func TestCouple(t *testing.T) {
	t.Parallel()

	tree := refTree(t)

	tuples, err := resolution.Couple(tree,
		resolution.Component{Name: "previous", Period: 1, Offset: 1},
		resolution.Component{Name: "block", Period: 3, Offset: 0},
		resolution.Component{Name: "departure", Period: 3, Offset: 4},
	)
	require.NoError(t, err)
	require.Len(t, tuples, tree.Len())

	idx, ok := tree.Index(2, 7)
	require.True(t, ok)

	row := tuples[idx]
	assert.Equal(t, scenario.GridPoint{Branch: 2, Time: 7, RunLength: 1}, row.Point)
	require.Len(t, row.Parts, 3)
	assert.Equal(t, 2, row.Parts[0].Branch)
	assert.Equal(t, 6, row.Parts[0].Start)
	assert.Equal(t, resolution.CoarsePoint{Branch: 2, Block: 2, Start: 6, Span: 3}, row.Parts[1])
	assert.Equal(t, resolution.CoarsePoint{Branch: 1, Block: 1, Start: 3, Span: 3}, row.Parts[2])

	_, err = resolution.Couple(tree, resolution.Component{Name: "bad", Period: 0})
	require.ErrorIs(t, err, scenario.ErrConfiguration)
}
