package scenario

import (
	"github.com/Sumatoshi-tech/stochgrid/pkg/treemath"
)

// Verify checks the structural invariants of a tree:
//   - |FullSet| = Σ_{w=0}^{S} B^w·L and every point is addressable by Index;
//   - the root is its own predecessor and is the only self-loop;
//   - every other point has exactly one predecessor, one base step earlier,
//     on the ancestor branch given by the number of boundaries crossed;
//   - every predecessor precedes its point in FullSet order, so following
//     predecessors terminates at the root.
func Verify(tree *Tree) error {
	var want int
	for _, n := range tree.stageBranches {
		want += n * tree.cfg.StageDuration
	}

	if len(tree.points) != want || len(tree.preds) != want {
		return consistencyErr("cardinality", 0, 0, "full set has %d points and %d predecessors, want %d",
			len(tree.points), len(tree.preds), want)
	}

	for i, p := range tree.points {
		idx, ok := tree.Index(p.Branch, p.Time)
		if !ok || idx != i {
			return consistencyErr("addressable", p.Branch, p.Time, "stored at %d, indexed at %d", i, idx)
		}

		verifyErr := tree.verifyPredecessor(i, p)
		if verifyErr != nil {
			return verifyErr
		}
	}

	return nil
}

func (t *Tree) verifyPredecessor(i int, p GridPoint) error {
	predIdx := t.preds[i]
	if predIdx < 0 || predIdx >= len(t.points) {
		return consistencyErr("unique-predecessor", p.Branch, p.Time, "predecessor index %d out of range", predIdx)
	}

	pred := t.points[predIdx]

	if p.Branch == 0 && p.Time == 0 {
		if predIdx != i {
			return consistencyErr("root-self-loop", p.Branch, p.Time, "root predecessor is (%d, %d)", pred.Branch, pred.Time)
		}

		return nil
	}

	if predIdx >= i {
		return consistencyErr("acyclic", p.Branch, p.Time, "predecessor (%d, %d) does not precede the point",
			pred.Branch, pred.Time)
	}

	wantBranch := treemath.Ancestor(p.Branch, treemath.Crossings(p.Time, p.Time-1, t.cfg.StageDuration), t.cfg.Branches)
	if pred.Time != p.Time-1 || pred.Branch != wantBranch {
		return consistencyErr("ancestry", p.Branch, p.Time, "predecessor is (%d, %d), want (%d, %d)",
			pred.Branch, pred.Time, wantBranch, p.Time-1)
	}

	return nil
}
