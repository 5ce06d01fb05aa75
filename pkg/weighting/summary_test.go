package weighting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

func TestSummarize_Uniform(t *testing.T) {
	t.Parallel()

	summary := weighting.Uniform(buildTree(t, 3, 2, 1)).Summarize()

	assert.Equal(t, 9, summary.Leaves)
	assert.InDelta(t, 1.0/9, summary.Min, delta)
	assert.InDelta(t, 1.0/9, summary.Max, delta)
	assert.InDelta(t, 1.0/9, summary.Median, delta)
	assert.InDelta(t, 0, summary.StdDev, delta)
	assert.InDelta(t, 9, summary.Effective, 1e-9)
}

func TestSummarize_Table(t *testing.T) {
	t.Parallel()

	weights, err := weighting.FromTable(buildTree(t, 2, 2, 3), weighting.Table{Stages: [][]float64{{0.3, 0.7}, {0.6, 0.4}}})
	require.NoError(t, err)

	// Sorted leaves: 0.12 0.18 0.28 0.42.
	summary := weights.Summarize()

	assert.InDelta(t, 0.12, summary.Min, delta)
	assert.InDelta(t, 0.42, summary.Max, delta)
	assert.InDelta(t, 0.25, summary.Mean, delta)
	assert.InDelta(t, 0.23, summary.Median, delta)
	assert.InDelta(t, 0.399, summary.P95, delta)
	assert.InDelta(t, 1/0.3016, summary.Effective, 1e-9)
	assert.Greater(t, summary.StdDev, 0.0)
}

func TestSummarize_SingleLeaf(t *testing.T) {
	t.Parallel()

	summary := weighting.Uniform(buildTree(t, 2, 0, 4)).Summarize()

	assert.Equal(t, 1, summary.Leaves)
	assert.InDelta(t, 1.0, summary.P95, delta)
	assert.InDelta(t, 1.0, summary.Effective, delta)
}
