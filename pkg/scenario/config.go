// Package scenario builds the base index set of a multi-stage stochastic
// program: the (branch, time) grid of a scenario tree and the temporal
// predecessor relation linking every point to the point before it on the
// same path.
//
// A tree is described by its branching factor B, its number of stages S and
// its stage duration L. Stage w owns base timesteps [w·L, (w+1)·L) and has B^w
// active branches; the horizon is (S+1)·L. The built Tree is immutable.
package scenario

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/stochgrid/pkg/treemath"
)

// Default resource limits. The reference planning model runs at B ≤ 3 and
// S ≤ 5, i.e. at most 243 leaves.
const (
	DefaultMaxLeaves = 1 << 20
	DefaultMaxPoints = 1 << 24
	DefaultMaxPairs  = 1 << 24
)

// Limits bounds the size of a tree and of the index sets derived from it.
// Zero fields take the defaults.
type Limits struct {
	MaxLeaves int
	MaxPoints int
	// MaxPairs bounds materialized non-anticipativity equate pairs, which
	// grow with (S+1)·L·B^S rather than with |FullSet|.
	MaxPairs int
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() Limits {
	return Limits{MaxLeaves: DefaultMaxLeaves, MaxPoints: DefaultMaxPoints, MaxPairs: DefaultMaxPairs}
}

// WithDefaults replaces zero fields with the defaults.
func (l Limits) WithDefaults() Limits {
	if l.MaxLeaves <= 0 {
		l.MaxLeaves = DefaultMaxLeaves
	}

	if l.MaxPoints <= 0 {
		l.MaxPoints = DefaultMaxPoints
	}

	if l.MaxPairs <= 0 {
		l.MaxPairs = DefaultMaxPairs
	}

	return l
}

// Admits reports a *ResourceError when a tree of shape c, already built under
// other limits, exceeds l.
func (l Limits) Admits(c Config) error {
	c.Limits = l

	_, _, err := c.size()

	return err
}

// Config is the scalar description of a scenario tree.
type Config struct {
	Branches      int
	Stages        int
	StageDuration int
	Limits        Limits
}

// Validate rejects out-of-range scalars. It never clamps.
func (c Config) Validate() error {
	if c.Branches < 1 {
		return configErr("branches", c.Branches, "must be at least 1")
	}

	if c.Stages < 0 {
		return configErr("stages", c.Stages, "must be non-negative")
	}

	if c.StageDuration < 1 {
		return configErr("stage_duration", c.StageDuration, "must be at least 1")
	}

	return nil
}

// Horizon returns the number of base timesteps, (S+1)·L.
func (c Config) Horizon() int {
	return (c.Stages + 1) * c.StageDuration
}

// size computes the leaf count and |FullSet| with overflow and limit checks.
func (c Config) size() (leaves, points int, err error) {
	limits := c.Limits.WithDefaults()

	leaves, powErr := treemath.Pow(c.Branches, c.Stages)
	if powErr != nil {
		return 0, 0, &ResourceError{
			Resource:  "leaves",
			Requested: fmt.Sprintf("%d^%d", c.Branches, c.Stages),
			Limit:     humanize.Comma(int64(limits.MaxLeaves)),
		}
	}

	if leaves > limits.MaxLeaves {
		return 0, 0, &ResourceError{
			Resource:  "leaves",
			Requested: humanize.Comma(int64(leaves)),
			Limit:     humanize.Comma(int64(limits.MaxLeaves)),
		}
	}

	width := 1

	for w := 0; w <= c.Stages; w++ {
		if points > limits.MaxPoints || width > limits.MaxPoints/c.StageDuration {
			return 0, 0, &ResourceError{
				Resource:  "points",
				Requested: fmt.Sprintf("more than %s", humanize.Comma(int64(limits.MaxPoints))),
				Limit:     humanize.Comma(int64(limits.MaxPoints)),
			}
		}

		points += width * c.StageDuration
		width *= c.Branches
	}

	if points > limits.MaxPoints {
		return 0, 0, &ResourceError{
			Resource:  "points",
			Requested: humanize.Comma(int64(points)),
			Limit:     humanize.Comma(int64(limits.MaxPoints)),
		}
	}

	return leaves, points, nil
}
