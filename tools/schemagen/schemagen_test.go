package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/stochgrid/pkg/plan"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

func samplePlan(t *testing.T) *plan.Plan {
	t.Helper()

	p, err := plan.Build(context.Background(), plan.Request{
		Branches:      2,
		Stages:        2,
		StageDuration: 3,
		Resolutions:   []plan.ResolutionRequest{{Name: "day", Period: 3, Offsets: []int{0, 3}}},
		LinkOffsets:   []int{1},
		Probabilities: &weighting.Table{Stages: [][]float64{{0.3, 0.7}, {0.6, 0.4}}},
	}, plan.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	return p
}

func validate(t *testing.T, schema *Schema, value any) *gojsonschema.Result {
	t.Helper()

	schemaJSON, err := json.Marshal(schema)
	require.NoError(t, err)

	valueJSON, err := json.Marshal(value)
	require.NoError(t, err)

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(valueJSON))
	require.NoError(t, err)

	return result
}

func TestGenerateSchema_ValidatesExports(t *testing.T) {
	t.Parallel()

	p := samplePlan(t)
	snap := p.Snapshot()

	doc, err := p.Document()
	require.NoError(t, err)

	for name, value := range map[string]any{
		"document": doc,
		"snapshot": snap,
		"request":  p.Request(),
	} {
		result := validate(t, generateSchema(name, documents[name]), value)
		assert.True(t, result.Valid(), "%s: %v", name, result.Errors())
	}
}

func TestGenerateSchema_RejectsMissingRequired(t *testing.T) {
	t.Parallel()

	schema := generateSchema("document", documents["document"])

	assert.Contains(t, schema.Required, "key")
	assert.NotContains(t, schema.Required, "points")
	assert.Contains(t, schema.Definitions, "CoarsePoint")

	result := validate(t, schema, map[string]any{"branches": 2})
	assert.False(t, result.Valid())
}

func TestGenerateSchema_SkipsUnexportedAndIgnoredFields(t *testing.T) {
	t.Parallel()

	schema := generateSchema("request", documents["request"])

	assert.NotContains(t, schema.Properties, "Limits")
	assert.Contains(t, schema.Properties, "resolutions")
	assert.Equal(t, []string{"branches", "stages", "stage_duration"}, schema.Required)
}

func TestWriteSchema(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, writeSchema(dir, "snapshot", generateSchema("snapshot", documents["snapshot"])))

	data, err := os.ReadFile(filepath.Join(dir, "snapshot.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"predecessors"`)
}
