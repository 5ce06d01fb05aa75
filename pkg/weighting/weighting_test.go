package weighting_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

const delta = 1e-12

func buildTree(t *testing.T, branches, stages, duration int) *scenario.Tree {
	t.Helper()

	tree, err := scenario.Build(scenario.Config{Branches: branches, Stages: stages, StageDuration: duration})
	require.NoError(t, err)

	return tree
}

func TestUniform(t *testing.T) {
	t.Parallel()

	for branches := 1; branches <= 3; branches++ {
		for stages := 0; stages <= 5; stages++ {
			tree := buildTree(t, branches, stages, 2)
			weights := weighting.Uniform(tree)

			assert.InDelta(t, 1.0, weights.Sum(), weighting.Tolerance)
			assert.InDelta(t, 1/float64(tree.LeafCount()), weights.Leaf(0), delta)
		}
	}
}

func TestFromTable_PerChoiceRows(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 2, 2, 3)

	weights, err := weighting.FromTable(tree, weighting.Table{Stages: [][]float64{{0.3, 0.7}, {0.6, 0.4}}})
	require.NoError(t, err)

	want := []float64{0.18, 0.12, 0.42, 0.28}
	for s, w := range want {
		assert.InDelta(t, w, weights.Leaf(s), delta, "leaf %d", s)
	}

	assert.InDelta(t, 1.0, weights.Sum(), weighting.Tolerance)

	node, err := weights.Node(1, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, node, delta)

	node, err = weights.Node(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, node, delta)

	table := weights.Table()
	require.Len(t, table, 4)
	assert.Equal(t, scenario.GridPoint{Branch: 2, Time: 8, RunLength: 1}, table[2].Point)
	assert.InDelta(t, 0.42, table[2].Weight, delta)
}

func TestFromTable_PerNodeRows(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 2, 2, 3)

	weights, err := weighting.FromTable(tree, weighting.Table{Stages: [][]float64{{0.3, 0.7}, {0.5, 0.5, 0.1, 0.9}}})
	require.NoError(t, err)

	assert.InDelta(t, 0.15, weights.Leaf(1), delta)
	assert.InDelta(t, 0.07, weights.Leaf(2), delta)
	assert.InDelta(t, 0.63, weights.Leaf(3), delta)
}

func TestWeights_NodeMassPerTime(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 3, 3, 2)

	weights, err := weighting.FromTable(tree, weighting.Table{Stages: [][]float64{
		{0.2, 0.3, 0.5},
		{0.1, 0.1, 0.8},
		{0.25, 0.25, 0.5},
	}})
	require.NoError(t, err)

	nodes := weights.Nodes()
	mass := make(map[int]float64)

	for i, p := range tree.Points() {
		mass[p.Time] += nodes[i]
	}

	for time := range tree.Horizon() {
		assert.InDelta(t, 1.0, mass[time], weighting.Tolerance, "time %d", time)
	}
}

func TestFromTable_Errors(t *testing.T) {
	t.Parallel()

	tree := buildTree(t, 2, 2, 3)

	tests := []struct {
		name   string
		table  weighting.Table
		target error
	}{
		{"mass above one", weighting.Table{Stages: [][]float64{{0.5, 0.6}, {0.5, 0.5}}}, scenario.ErrProbability},
		{"zero entry", weighting.Table{Stages: [][]float64{{0, 1}, {0.5, 0.5}}}, scenario.ErrProbability},
		{"missing stage", weighting.Table{Stages: [][]float64{{0.5, 0.5}}}, scenario.ErrConfiguration},
		{"wrong width", weighting.Table{Stages: [][]float64{{0.5, 0.5}, {0.2, 0.3, 0.5}}}, scenario.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := weighting.FromTable(tree, tt.table)
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestWeights_NodeOutsideGrid(t *testing.T) {
	t.Parallel()

	weights := weighting.Uniform(buildTree(t, 2, 2, 3))

	_, err := weights.Node(3, 3)
	require.ErrorIs(t, err, scenario.ErrConsistency)
	assert.Zero(t, weights.Leaf(7))
}

func TestLoadTable(t *testing.T) {
	t.Parallel()

	table, err := weighting.LoadTable(strings.NewReader(`{"description":"wind bins","stages":[[0.3,0.7],[0.6,0.4]]}`))
	require.NoError(t, err)
	assert.Equal(t, "wind bins", table.Description)
	assert.Equal(t, [][]float64{{0.3, 0.7}, {0.6, 0.4}}, table.Stages)

	_, err = weighting.LoadTable(strings.NewReader(`{"stages":[[0,1]]}`))
	require.ErrorIs(t, err, scenario.ErrConfiguration)

	_, err = weighting.LoadTable(strings.NewReader(`{"rows":[]}`))
	require.ErrorIs(t, err, scenario.ErrConfiguration)

	_, err = weighting.LoadTable(strings.NewReader(`not json`))
	require.Error(t, err)

	assert.Contains(t, string(weighting.Schema()), `"stages"`)
}
