package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stochgrid/pkg/config"
	"github.com/Sumatoshi-tech/stochgrid/pkg/plan"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFile_UsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, "empty.yaml", ""))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, config.DefaultTreeBranches, cfg.Tree.Branches)
	assert.Equal(t, config.DefaultTreeStages, cfg.Tree.Stages)
	assert.Equal(t, config.DefaultTreeStageDuration, cfg.Tree.StageDuration)
	assert.Equal(t, config.DefaultMaxLeaves, cfg.Limits.MaxLeaves)
	assert.Equal(t, config.DefaultCacheEntries, cfg.Cache.Entries)
	assert.Equal(t, config.DefaultCacheFormat, cfg.Cache.Format)
	assert.True(t, cfg.Cache.Compress)
	assert.Equal(t, config.DefaultLogLevel, cfg.Logging.Level)
	assert.InDelta(t, config.DefaultSampleRatio, cfg.Telemetry.SampleRatio, 1e-9)
	assert.Equal(t, config.DefaultShutdownTimeout, cfg.Telemetry.ShutdownTimeout)
	assert.Equal(t, config.DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, config.DefaultServerReadTimeout, cfg.Server.ReadTimeout)
	assert.Empty(t, cfg.Resolutions)
}

func TestLoadConfig_ValidFile_Unmarshals(t *testing.T) {
	t.Parallel()

	content := `tree:
  branches: 3
  stages: 2
  stage_duration: 6
resolutions:
  - name: shift
    period: 2
    offsets: [0, 1]
  - name: day
    period: 6
link_offsets: [1, 4]
limits:
  max_leaves: 1000
cache:
  entries: 4
  format: yaml
  compress: false
  dir: /tmp/stochgrid-cache
logging:
  level: debug
  json: true
telemetry:
  otlp_endpoint: localhost:4317
  otlp_headers: "x-team=grid"
  sample_ratio: 0.25
server:
  addr: 127.0.0.1:9090
  read_timeout: 5s
`

	cfg, err := config.LoadConfig(writeConfig(t, ".stochgrid.yaml", content))
	require.NoError(t, err)

	assert.Equal(t, config.TreeConfig{Branches: 3, Stages: 2, StageDuration: 6}, cfg.Tree)
	assert.Equal(t, []plan.ResolutionRequest{
		{Name: "shift", Period: 2, Offsets: []int{0, 1}},
		{Name: "day", Period: 6},
	}, cfg.Resolutions)
	assert.Equal(t, []int{1, 4}, cfg.LinkOffsets)
	assert.Equal(t, 1000, cfg.Limits.MaxLeaves)
	assert.Equal(t, config.DefaultMaxPoints, cfg.Limits.MaxPoints)
	assert.Equal(t, config.DefaultMaxPairs, cfg.Limits.MaxPairs)
	assert.Equal(t, 4, cfg.Cache.Entries)
	assert.Equal(t, "yaml", cfg.Cache.Format)
	assert.False(t, cfg.Cache.Compress)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-9)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STOCHGRID_TREE_BRANCHES", "4")
	t.Setenv("STOCHGRID_LOGGING_LEVEL", "warn")

	cfg, err := config.LoadConfig(writeConfig(t, "env.yaml", "tree:\n  branches: 3\n"))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Tree.Branches)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_MalformedYAML_ReturnsError(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, "bad.yaml", "tree:\n  branches: [invalid yaml\n"))
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		target  error
	}{
		{"negative entries", "cache:\n  entries: -1\n", config.ErrInvalidCacheEntries},
		{"unknown format", "cache:\n  format: xml\n", config.ErrInvalidCacheFormat},
		{"bad size", "cache:\n  max_bytes: lots\n", config.ErrInvalidSize},
		{"bad level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"ratio above one", "telemetry:\n  sample_ratio: 2\n", config.ErrInvalidSampleRatio},
		{"bad addr", "server:\n  addr: nowhere\n", config.ErrInvalidServerAddr},
		{"zero timeout", "server:\n  read_timeout: 0s\n", config.ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, "invalid.yaml", tt.content))
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestLoadConfig_UnknownKeys_NoError(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, "extra.yaml", "unknown_section:\n  key: value\ntree:\n  stages: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Tree.Stages)
}
