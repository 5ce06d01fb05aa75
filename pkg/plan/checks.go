package plan

import (
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/stochgrid/pkg/nonanticipativity"
	"github.com/Sumatoshi-tech/stochgrid/pkg/resolution"
	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/weighting"
)

// Check is the outcome of one structural check. Err is nil when it passed.
type Check struct {
	Name string
	Err  error
}

// Checks re-verifies every part of p: the tree, each resolution, the link
// inverses, the equate chain and the leaf mass.
func (p *Plan) Checks() []Check {
	checks := []Check{{Name: "tree", Err: scenario.Verify(p.tree)}}

	for _, r := range p.resolutions {
		checks = append(checks, Check{Name: "resolution " + r.Name, Err: resolution.Verify(r.Grid)})
	}

	linker := scenario.NewLinker(p.tree)

	for _, off := range p.LinkOffsets() {
		checks = append(checks, Check{
			Name: fmt.Sprintf("links offset %d", off),
			Err:  verifyLinks(linker, p.links[off], off),
		})
	}

	return append(checks,
		Check{Name: "gate", Err: verifyGate(p.gate)},
		Check{Name: "weights", Err: verifyWeights(p.weights)},
	)
}

// Failed counts the checks that did not pass.
func Failed(checks []Check) int {
	failed := 0

	for _, c := range checks {
		if c.Err != nil {
			failed++
		}
	}

	return failed
}

// verifyLinks checks that every link's predecessor lists the point among its
// successors.
func verifyLinks(linker scenario.Linker, links []scenario.Link, offset int) error {
	for _, link := range links {
		if link.IsRoot() || link.Point.Time < offset {
			continue
		}

		succ, err := linker.Successors(link.Predecessor.Branch, link.Predecessor.Time, offset)
		if err != nil {
			return err
		}

		found := false

		for _, s := range succ {
			if s.Branch == link.Point.Branch && s.Time == link.Point.Time {
				found = true

				break
			}
		}

		if !found {
			return &scenario.ConsistencyError{
				Invariant: "link-inverse",
				Branch:    link.Point.Branch,
				Time:      link.Point.Time,
				Detail:    fmt.Sprintf("missing from successors of (%d,%d)", link.Predecessor.Branch, link.Predecessor.Time),
			}
		}
	}

	return nil
}

func verifyGate(gate *nonanticipativity.Gate) error {
	for pair := range gate.Pairs() {
		if pair.Peer != pair.Scenario-1 || pair.Peer < 0 {
			return &scenario.ConsistencyError{
				Invariant: "equate-chain",
				Branch:    pair.Scenario,
				Time:      pair.Time,
				Detail:    fmt.Sprintf("peer %d is not the lower neighbour", pair.Peer),
			}
		}
	}

	return nil
}

func verifyWeights(weights *weighting.Weights) error {
	sum := weights.Sum()
	if math.Abs(sum-1) > weighting.Tolerance {
		return &scenario.ProbabilityError{Sum: sum, Tolerance: weighting.Tolerance, Detail: "leaf mass"}
	}

	return nil
}
