package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/stochgrid/pkg/observability"
	"github.com/Sumatoshi-tech/stochgrid/pkg/persist"
	"github.com/Sumatoshi-tech/stochgrid/pkg/plan"
	"github.com/Sumatoshi-tech/stochgrid/pkg/safeconv"
	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

// Sentinel validation errors.
var (
	ErrInvalidCacheEntries = errors.New("cache entries must be non-negative")
	ErrInvalidCacheFormat  = errors.New("unknown cache format")
	ErrInvalidSize         = errors.New("invalid byte size")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidSampleRatio  = errors.New("sample ratio must be in [0, 1]")
	ErrInvalidServerAddr   = errors.New("invalid server address")
	ErrInvalidTimeout      = errors.New("timeouts must be positive")
)

// Config holds all stochgrid settings.
type Config struct {
	Tree          TreeConfig               `mapstructure:"tree"`
	Resolutions   []plan.ResolutionRequest `mapstructure:"resolutions"`
	LinkOffsets   []int                    `mapstructure:"link_offsets"`
	Probabilities string                   `mapstructure:"probabilities"`
	Limits        LimitsConfig             `mapstructure:"limits"`
	Cache         CacheConfig              `mapstructure:"cache"`
	Logging       LoggingConfig            `mapstructure:"logging"`
	Telemetry     TelemetryConfig          `mapstructure:"telemetry"`
	Server        ServerConfig             `mapstructure:"server"`
}

// TreeConfig holds the scenario tree shape.
type TreeConfig struct {
	Branches      int `mapstructure:"branches"`
	Stages        int `mapstructure:"stages"`
	StageDuration int `mapstructure:"stage_duration"`
}

// LimitsConfig bounds the size of built trees and exported pair lists.
type LimitsConfig struct {
	MaxLeaves int `mapstructure:"max_leaves"`
	MaxPoints int `mapstructure:"max_points"`
	MaxPairs  int `mapstructure:"max_pairs"`
}

// Scenario returns the limits in the form plan requests carry.
func (l LimitsConfig) Scenario() scenario.Limits {
	return scenario.Limits{MaxLeaves: l.MaxLeaves, MaxPoints: l.MaxPoints, MaxPairs: l.MaxPairs}
}

// CacheConfig holds plan cache settings.
type CacheConfig struct {
	Entries  int    `mapstructure:"entries"`
	MaxBytes string `mapstructure:"max_bytes"`
	// Dir enables the disk tier when set.
	Dir      string `mapstructure:"dir"`
	Format   string `mapstructure:"format"`
	Compress bool   `mapstructure:"compress"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	OTLPEndpoint    string        `mapstructure:"otlp_endpoint"`
	OTLPHeaders     string        `mapstructure:"otlp_headers"`
	OTLPInsecure    bool          `mapstructure:"otlp_insecure"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	Prometheus      bool          `mapstructure:"prometheus"`
	Environment     string        `mapstructure:"environment"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBody      string        `mapstructure:"max_body"`
}

// Validate checks the ambient settings. Tree and resolution settings are
// validated when the plan request is built.
func (c *Config) Validate() error {
	if c.Cache.Entries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheEntries, c.Cache.Entries)
	}

	_, codecErr := persist.ForFormat(c.Cache.Format, c.Cache.Compress)
	if codecErr != nil {
		return fmt.Errorf("%w: %q", ErrInvalidCacheFormat, c.Cache.Format)
	}

	for _, size := range []string{c.Cache.MaxBytes, c.Server.MaxBody} {
		_, sizeErr := humanize.ParseBytes(size)
		if sizeErr != nil {
			return fmt.Errorf("%w: %q", ErrInvalidSize, size)
		}
	}

	_, levelErr := observability.ParseLevel(c.Logging.Level)
	if levelErr != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	_, _, addrErr := net.SplitHostPort(c.Server.Addr)
	if addrErr != nil {
		return fmt.Errorf("%w: %q", ErrInvalidServerAddr, c.Server.Addr)
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Telemetry.ShutdownTimeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// Request builds the plan request described by the configuration. The
// probability table, when configured, is read and schema-checked here.
func (c *Config) Request() (plan.Request, error) {
	req := plan.Request{
		Branches:      c.Tree.Branches,
		Stages:        c.Tree.Stages,
		StageDuration: c.Tree.StageDuration,
		Resolutions:   c.Resolutions,
		LinkOffsets:   c.LinkOffsets,
		Limits:        c.Limits.Scenario(),
	}

	if c.Probabilities != "" {
		f, err := os.Open(c.Probabilities)
		if err != nil {
			return plan.Request{}, fmt.Errorf("open probabilities: %w", err)
		}
		defer f.Close()

		table, loadErr := weighting.LoadTable(f)
		if loadErr != nil {
			return plan.Request{}, fmt.Errorf("%s: %w", c.Probabilities, loadErr)
		}

		req.Probabilities = &table
	}

	validateErr := req.Validate()
	if validateErr != nil {
		return plan.Request{}, validateErr
	}

	return req, nil
}

// PlanCache translates the cache section into plan cache settings.
func (c *Config) PlanCache() (plan.CacheConfig, error) {
	codec, err := persist.ForFormat(c.Cache.Format, c.Cache.Compress)
	if err != nil {
		return plan.CacheConfig{}, fmt.Errorf("%w: %q", ErrInvalidCacheFormat, c.Cache.Format)
	}

	maxBytes, sizeErr := humanize.ParseBytes(c.Cache.MaxBytes)
	if sizeErr != nil {
		return plan.CacheConfig{}, fmt.Errorf("%w: %q", ErrInvalidSize, c.Cache.MaxBytes)
	}

	return plan.CacheConfig{
		MaxEntries: c.Cache.Entries,
		MaxBytes:   safeconv.ClampUint64ToInt64(maxBytes),
		Dir:        c.Cache.Dir,
		Codec:      codec,
	}, nil
}

// MaxBodyBytes returns the server request body limit.
func (c *Config) MaxBodyBytes() int64 {
	n, err := humanize.ParseBytes(c.Server.MaxBody)
	if err != nil {
		return 0
	}

	return safeconv.ClampUint64ToInt64(n)
}

// Observability translates the logging and telemetry sections.
func (c *Config) Observability(version string, mode observability.AppMode) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Environment = c.Telemetry.Environment
	cfg.Mode = mode
	cfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	cfg.OTLPInsecure = c.Telemetry.OTLPInsecure
	cfg.SampleRatio = c.Telemetry.SampleRatio
	cfg.Prometheus = c.Telemetry.Prometheus && mode == observability.ModeServe
	cfg.LogJSON = c.Logging.JSON || mode == observability.ModeMCP
	cfg.ShutdownTimeoutSec = int(c.Telemetry.ShutdownTimeout / time.Second)

	level, err := observability.ParseLevel(c.Logging.Level)
	if err == nil {
		cfg.LogLevel = level
	}

	return cfg
}
