package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

// keyBytes is the number of hash bytes kept in a request key.
const keyBytes = 16

// ResolutionRequest asks for one coarse cadence and the look-back offsets its
// callers zip against the FullSet.
type ResolutionRequest struct {
	Name    string `json:"name"              mapstructure:"name"    yaml:"name"`
	Period  int    `json:"period"            mapstructure:"period"  yaml:"period"`
	Offsets []int  `json:"offsets,omitempty" mapstructure:"offsets" yaml:"offsets,omitempty"`
}

// Request is everything a plan is built from.
type Request struct {
	Branches      int                 `json:"branches"                mapstructure:"branches"       yaml:"branches"`
	Stages        int                 `json:"stages"                  mapstructure:"stages"         yaml:"stages"`
	StageDuration int                 `json:"stage_duration"          mapstructure:"stage_duration" yaml:"stage_duration"`
	Resolutions   []ResolutionRequest `json:"resolutions,omitempty"   mapstructure:"resolutions"    yaml:"resolutions,omitempty"`
	// LinkOffsets lists the ContinuityLinker offsets to precompute.
	LinkOffsets   []int            `json:"link_offsets,omitempty"  mapstructure:"link_offsets" yaml:"link_offsets,omitempty"`
	Probabilities *weighting.Table `json:"probabilities,omitempty" mapstructure:"-"            yaml:"probabilities,omitempty"`

	// Limits only reject oversized builds and are not part of Key.
	Limits scenario.Limits `json:"-" mapstructure:"-" yaml:"-"`
}

// TreeConfig returns the scenario configuration of the request.
func (r Request) TreeConfig() scenario.Config {
	return scenario.Config{
		Branches:      r.Branches,
		Stages:        r.Stages,
		StageDuration: r.StageDuration,
		Limits:        r.Limits,
	}
}

// Validate checks the parts of a request that do not need the tree.
func (r Request) Validate() error {
	cfgErr := r.TreeConfig().Validate()
	if cfgErr != nil {
		return cfgErr
	}

	seen := make(map[string]bool, len(r.Resolutions))

	for i, res := range r.Resolutions {
		field := fmt.Sprintf("resolutions[%d]", i)

		if res.Name == "" {
			return &scenario.ConfigurationError{Field: field + ".name", Value: res.Name, Reason: "must not be empty"}
		}

		if seen[res.Name] {
			return &scenario.ConfigurationError{Field: field + ".name", Value: res.Name, Reason: "duplicate resolution"}
		}

		seen[res.Name] = true

		if res.Period < 1 {
			return &scenario.ConfigurationError{Field: field + ".period", Value: res.Period, Reason: "must be at least 1"}
		}

		for _, off := range res.Offsets {
			if off < 0 {
				return &scenario.ConfigurationError{Field: field + ".offsets", Value: off, Reason: "must be non-negative"}
			}
		}
	}

	for _, off := range r.LinkOffsets {
		if off < 1 {
			return &scenario.ConfigurationError{Field: "link_offsets", Value: off, Reason: "must be at least 1"}
		}
	}

	return nil
}

// Key returns the canonical cache key: a hex digest of the request's JSON
// form. Identical requests always produce identical plans, so they share a key.
func (r Request) Key() string {
	data, err := json.Marshal(r)
	if err != nil {
		// Request holds only ints, strings and float slices.
		panic(fmt.Sprintf("plan: marshal request: %v", err))
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:keyBytes])
}

// IsKey reports whether s has the form Key produces: 32 lowercase hex digits.
func IsKey(s string) bool {
	if len(s) != 2*keyBytes {
		return false
	}

	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}
