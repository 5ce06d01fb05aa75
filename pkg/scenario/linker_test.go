package scenario_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
)

// transitOffset spans exactly one stage boundary of the reference tree.
const transitOffset = 4

func TestLinker_TransitAcrossBoundary(t *testing.T) {
	t.Parallel()

	linker := scenario.NewLinker(refTree(t))

	arrivals, err := linker.Successors(1, 3, transitOffset)
	require.NoError(t, err)
	assert.Equal(t, []scenario.GridPoint{
		{Branch: 2, Time: 7, RunLength: 1},
		{Branch: 3, Time: 7, RunLength: 1},
	}, arrivals)

	for _, arrival := range arrivals {
		departure, predErr := linker.Predecessor(arrival.Branch, arrival.Time, transitOffset)
		require.NoError(t, predErr)
		assert.Equal(t, scenario.GridPoint{Branch: 1, Time: 3, RunLength: 1}, departure)
	}

	departure, err := linker.Predecessor(1, 7, transitOffset)
	require.NoError(t, err)
	assert.Equal(t, scenario.GridPoint{Branch: 0, Time: 3, RunLength: 1}, departure)
}

func TestLinker_OffsetBeforeHorizonStart(t *testing.T) {
	t.Parallel()

	linker := scenario.NewLinker(refTree(t))

	_, err := linker.Predecessor(1, 3, transitOffset)
	require.ErrorIs(t, err, scenario.ErrConsistency)

	var consErr *scenario.ConsistencyError
	require.ErrorAs(t, err, &consErr)
	assert.Equal(t, "offset-in-range", consErr.Invariant)

	_, err = linker.Successors(1, 6, transitOffset)
	require.ErrorIs(t, err, scenario.ErrConsistency)
}

func TestLinker_InvalidOffset(t *testing.T) {
	t.Parallel()

	linker := scenario.NewLinker(refTree(t))

	_, err := linker.Predecessor(0, 5, 0)
	require.ErrorIs(t, err, scenario.ErrConfiguration)

	_, err = linker.Links(-2)
	require.ErrorIs(t, err, scenario.ErrConfiguration)

	_, err = linker.Successors(0, 0, 0)
	require.ErrorIs(t, err, scenario.ErrConfiguration)
}

func TestLinker_PointOutsideGrid(t *testing.T) {
	t.Parallel()

	linker := scenario.NewLinker(refTree(t))

	_, err := linker.Predecessor(2, 4, 1)
	require.ErrorIs(t, err, scenario.ErrConsistency)
}

func TestLinker_LinksMatchContinuityWalk(t *testing.T) {
	t.Parallel()

	for _, cfg := range sweepConfigs() {
		tree, err := scenario.Build(cfg)
		require.NoError(t, err)

		linker := scenario.NewLinker(tree)

		for offset := 1; offset < tree.Horizon(); offset++ {
			links, linkErr := linker.Links(offset)
			require.NoError(t, linkErr)

			want := 0

			for _, p := range tree.Points() {
				if p.Time >= offset {
					want++
				}
			}

			require.Len(t, links, want)

			for _, link := range links {
				cur := link.Point

				for range offset {
					cur, err = tree.Predecessor(cur.Branch, cur.Time)
					require.NoError(t, err)
				}

				assert.Equal(t, cur, link.Predecessor, "config %+v offset %d from %+v", cfg, offset, link.Point)
			}
		}
	}
}

func TestLinker_OffsetOneIsContinuity(t *testing.T) {
	t.Parallel()

	tree := refTree(t)

	links, err := scenario.NewLinker(tree).Links(1)
	require.NoError(t, err)

	assert.Equal(t, tree.Continuity()[1:], links)

	for _, link := range links {
		pred, predErr := tree.Predecessor(link.Point.Branch, link.Point.Time)
		require.NoError(t, predErr)
		assert.Equal(t, pred, link.Predecessor)
	}
}

func TestLinker_SuccessorsInvertPredecessor(t *testing.T) {
	t.Parallel()

	tree := refTree(t)
	linker := scenario.NewLinker(tree)

	for offset := 1; offset < tree.Horizon(); offset++ {
		for _, p := range tree.Points() {
			if p.Time+offset >= tree.Horizon() {
				continue
			}

			succ, err := linker.Successors(p.Branch, p.Time, offset)
			require.NoError(t, err)
			require.NotEmpty(t, succ)

			for _, s := range succ {
				require.True(t, tree.Contains(s.Branch, s.Time))

				back, backErr := linker.Predecessor(s.Branch, s.Time, offset)
				require.NoError(t, backErr)
				assert.Equal(t, p, back)
			}
		}
	}
}
