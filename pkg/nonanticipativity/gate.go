// Package nonanticipativity decides which replicated scenario copies of a
// variable or constraint are canonical.
//
// Decision variables are replicated once per leaf scenario s in [0, B^S). Two
// scenarios share their history up to stage w exactly when they descend from
// the same tree branch at that stage, s / B^(S-w). Each such class has one
// master, the lowest scenario in it. Constraints redundant across a class are
// generated for the master only (Skip mode); replicated variables are chained
// to their lower neighbour so the whole class is equal (Equate mode).
package nonanticipativity

import (
	"fmt"
	"iter"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/treemath"
)

// Mode selects how non-master copies are handled.
type Mode int

// Consumption modes.
const (
	// ModeSkip omits non-master copies.
	ModeSkip Mode = iota + 1
	// ModeEquate ties each non-master copy to its lower neighbour.
	ModeEquate
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSkip:
		return "skip"
	case ModeEquate:
		return "equate"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "skip" or "equate".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "skip":
		return ModeSkip, nil
	case "equate":
		return ModeEquate, nil
	default:
		return 0, &scenario.ConfigurationError{Field: "mode", Value: s, Reason: "must be skip or equate"}
	}
}

// Kind tags a Decision.
type Kind uint8

// Decision kinds.
const (
	Generate Kind = iota + 1
	Skip
	Equate
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Generate:
		return "generate"
	case Skip:
		return "skip"
	case Equate:
		return "equate"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Decision is the policy for one (scenario, stage) copy. Peer is set only for
// Equate and always names the next lower scenario.
type Decision struct {
	Kind Kind `json:"kind"           yaml:"kind"`
	Peer int  `json:"peer,omitempty" yaml:"peer,omitempty"`
}

// Pair is one equality var(Scenario, Time) = var(Peer, Time).
type Pair struct {
	Scenario int `json:"scenario" yaml:"scenario"`
	Peer     int `json:"peer"     yaml:"peer"`
	Time     int `json:"time"     yaml:"time"`
}

// Gate holds the master table of a tree. It is immutable after New.
type Gate struct {
	scenarios     int
	stages        int
	stageDuration int
	horizon       int
	branching     int

	// master[w*scenarios+s] reports whether s is master at stage w.
	master []bool
}

// New precomputes the master table for every (scenario, stage).
func New(tree *scenario.Tree) *Gate {
	g := &Gate{
		scenarios:     tree.LeafCount(),
		stages:        tree.Stages(),
		stageDuration: tree.StageDuration(),
		horizon:       tree.Horizon(),
		branching:     tree.Branching(),
	}

	g.master = make([]bool, (g.stages+1)*g.scenarios)

	for w := 0; w <= g.stages; w++ {
		width := treemath.MustPow(g.branching, g.stages-w)

		for s := 0; s < g.scenarios; s += width {
			g.master[w*g.scenarios+s] = true
		}
	}

	return g
}

// Scenarios returns B^S.
func (g *Gate) Scenarios() int { return g.scenarios }

func (g *Gate) inRange(s, w int) bool {
	return s >= 0 && s < g.scenarios && w >= 0 && w <= g.stages
}

// IsMaster reports whether scenario s is the canonical member of its class at
// stage w, s mod B^(S-w) == 0. Out-of-range arguments are never master.
func (g *Gate) IsMaster(s, w int) bool {
	if !g.inRange(s, w) {
		return false
	}

	return g.master[w*g.scenarios+s]
}

// Class returns the tree branch shared by every scenario in the class of s at
// stage w.
func (g *Gate) Class(s, w int) int {
	return treemath.Ancestor(s, g.stages-w, g.branching)
}

// Decide looks up the policy for scenario s at stage w.
func (g *Gate) Decide(mode Mode, s, w int) (Decision, error) {
	if mode != ModeSkip && mode != ModeEquate {
		return Decision{}, &scenario.ConfigurationError{Field: "mode", Value: int(mode), Reason: "unknown mode"}
	}

	if s < 0 || s >= g.scenarios {
		return Decision{}, &scenario.ConfigurationError{Field: "scenario", Value: s,
			Reason: fmt.Sprintf("must be in [0, %d)", g.scenarios)}
	}

	if w < 0 || w > g.stages {
		return Decision{}, &scenario.ConfigurationError{Field: "stage", Value: w,
			Reason: fmt.Sprintf("must be in [0, %d]", g.stages)}
	}

	if g.master[w*g.scenarios+s] {
		return Decision{Kind: Generate}, nil
	}

	if mode == ModeSkip {
		return Decision{Kind: Skip}, nil
	}

	return Decision{Kind: Equate, Peer: s - 1}, nil
}

// DecideAt looks up the policy for scenario s at base time.
func (g *Gate) DecideAt(mode Mode, s, time int) (Decision, error) {
	if time < 0 || time >= g.horizon {
		return Decision{}, &scenario.ConfigurationError{Field: "time", Value: time,
			Reason: fmt.Sprintf("must be in [0, %d)", g.horizon)}
	}

	return g.Decide(mode, s, treemath.Stage(time, g.stageDuration))
}

// DecideBlock looks up the policy for scenario s at the block of the given
// period. The block is decided at its first base time.
func (g *Gate) DecideBlock(mode Mode, s, block, period int) (Decision, error) {
	if period < 1 {
		return Decision{}, &scenario.ConfigurationError{Field: "period", Value: period, Reason: "must be at least 1"}
	}

	if block < 0 {
		return Decision{}, &scenario.ConfigurationError{Field: "block", Value: block, Reason: "must be non-negative"}
	}

	return g.DecideAt(mode, s, block*period)
}

// Masters returns the master scenarios at stage w in ascending order.
func (g *Gate) Masters(w int) []int {
	if w < 0 || w > g.stages {
		return nil
	}

	width := treemath.MustPow(g.branching, g.stages-w)
	masters := make([]int, 0, g.scenarios/width)

	for s := 0; s < g.scenarios; s += width {
		masters = append(masters, s)
	}

	return masters
}

// PairCount returns the number of Equate-mode equalities without
// enumerating them: L·(B^S - B^w) per stage w.
func (g *Gate) PairCount() int {
	count := 0
	width := 1

	for range g.stages + 1 {
		count += g.stageDuration * (g.scenarios - width)
		width *= g.branching
	}

	return count
}

// Pairs yields every Equate-mode equality, ordered by time and then by
// scenario, without materializing them.
func (g *Gate) Pairs() iter.Seq[Pair] {
	return func(yield func(Pair) bool) {
		for t := range g.horizon {
			w := treemath.Stage(t, g.stageDuration)
			row := g.master[w*g.scenarios : (w+1)*g.scenarios]

			for s, isMaster := range row {
				if !isMaster && !yield(Pair{Scenario: s, Peer: s - 1, Time: t}) {
					return
				}
			}
		}
	}
}

// EquatePairs collects Pairs. It fails with a *scenario.ResourceError before
// allocating when PairCount exceeds maxPairs; zero or less means
// scenario.DefaultMaxPairs.
func (g *Gate) EquatePairs(maxPairs int) ([]Pair, error) {
	if maxPairs <= 0 {
		maxPairs = scenario.DefaultMaxPairs
	}

	count := g.PairCount()
	if count > maxPairs {
		return nil, &scenario.ResourceError{
			Resource:  "equate pairs",
			Requested: humanize.Comma(int64(count)),
			Limit:     humanize.Comma(int64(maxPairs)),
		}
	}

	return slices.AppendSeq(make([]Pair, 0, count), g.Pairs()), nil
}
