// Package config loads stochgrid settings from .stochgrid.yaml, STOCHGRID_*
// environment variables and built-in defaults.
package config

import (
	"time"

	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
)

// Tree defaults describe the smallest useful two-stage binary tree.
const (
	DefaultTreeBranches      = 2
	DefaultTreeStages        = 2
	DefaultTreeStageDuration = 24
)

// Limit defaults.
const (
	DefaultMaxLeaves = scenario.DefaultMaxLeaves
	DefaultMaxPoints = scenario.DefaultMaxPoints
	DefaultMaxPairs  = scenario.DefaultMaxPairs
)

// Cache defaults.
const (
	DefaultCacheEntries  = 16
	DefaultCacheMaxBytes = "512MB"
	DefaultCacheDir      = ""
	DefaultCacheFormat   = "gob"
	DefaultCacheCompress = true
)

// Logging defaults.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false
)

// Telemetry defaults.
const (
	DefaultOTLPEndpoint    = ""
	DefaultOTLPInsecure    = false
	DefaultSampleRatio     = 1.0
	DefaultPrometheus      = true
	DefaultEnvironment     = "development"
	DefaultShutdownTimeout = 5 * time.Second
)

// Server defaults.
const (
	DefaultServerAddr         = ":8080"
	DefaultServerReadTimeout  = 30 * time.Second
	DefaultServerWriteTimeout = 60 * time.Second
	DefaultServerMaxBody      = "1MB"
)
