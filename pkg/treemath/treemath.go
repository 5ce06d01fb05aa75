// Package treemath provides the index calculus for base-B scenario trees.
//
// Branches are numbered positionally in base B: the children of branch b at the
// next stage are b·B, b·B+1, ..., b·B+B-1. Under that numbering the ancestor of a
// branch k stages back is a plain integer division by B^k, and the stage of a
// base timestep is a plain division by the stage duration. Every other index
// relation in the module (predecessors, block owners, offset links, master
// branches) is expressed with the few functions in this package.
package treemath

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when an integer power does not fit in an int.
var ErrOverflow = errors.New("treemath: integer overflow")

// Pow returns base^exp. exp must be non-negative.
func Pow(base, exp int) (int, error) {
	if exp < 0 {
		return 0, fmt.Errorf("%w: negative exponent %d", ErrOverflow, exp)
	}

	result := 1

	for range exp {
		if base != 0 && result > math.MaxInt/base {
			return 0, fmt.Errorf("%w: %d^%d", ErrOverflow, base, exp)
		}

		result *= base
	}

	return result, nil
}

// MustPow is Pow for arguments already validated by the caller.
func MustPow(base, exp int) int {
	result, err := Pow(base, exp)
	if err != nil {
		panic(err.Error())
	}

	return result
}

// Ancestor returns the branch that branch descends from levels stages back
// in a tree with the given branching factor.
func Ancestor(branch, levels, branching int) int {
	if levels <= 0 || branching == 1 {
		return branch
	}

	return branch / MustPow(branching, levels)
}

// BlockIndex returns the index of the period-sized block containing time.
// time must be non-negative and period positive.
func BlockIndex(time, period int) int {
	return time / period
}

// BlockStart returns the first base timestep of the block containing time.
func BlockStart(time, period int) int {
	return BlockIndex(time, period) * period
}

// Stage returns the stage owning base timestep time.
func Stage(time, stageDuration int) int {
	return BlockIndex(time, stageDuration)
}

// Crossings returns the number of stage boundaries between the earlier base
// time to and the later base time from. It is zero when both lie in the same
// stage.
func Crossings(from, to, stageDuration int) int {
	return Stage(from, stageDuration) - Stage(to, stageDuration)
}

// Digit returns the branch choice taken at stage boundary w (1 ≤ w ≤ stages)
// by the leaf scenario leaf, i.e. the base-B digit of leaf at that depth.
func Digit(leaf, w, stages, branching int) int {
	return Ancestor(leaf, stages-w, branching) % branching
}
