// Package weighting assigns probability mass to the leaf scenarios of a tree
// and derives the marginal probability of every tree node.
package weighting

import (
	"fmt"
	"math"
	"slices"

	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
	"github.com/Sumatoshi-tech/stochgrid/pkg/treemath"
)

// Tolerance is the accepted deviation of the total leaf mass from one.
const Tolerance = 1e-9

// Table holds conditional branch probabilities. Stages[w-1] is the row for
// the branching at stage w. A row either has B entries, one per branch choice
// shared by every parent, or B^w entries, one per tree node at stage w.
type Table struct {
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Stages      [][]float64 `json:"stages"                yaml:"stages"`
}

// LeafWeight is the probability of one terminal path.
type LeafWeight struct {
	Point  scenario.GridPoint `json:"point"  yaml:"point"`
	Weight float64            `json:"weight" yaml:"weight"`
}

// Weights is an immutable probability assignment over a tree.
type Weights struct {
	tree *scenario.Tree
	leaf []float64
	// node[w][b] is the marginal probability of branch b at stage w.
	node [][]float64
}

// Uniform weights every leaf 1/B^S.
func Uniform(tree *scenario.Tree) *Weights {
	leaf := make([]float64, tree.LeafCount())
	for i := range leaf {
		leaf[i] = 1 / float64(tree.LeafCount())
	}

	return newWeights(tree, leaf)
}

// FromTable multiplies conditional probabilities along every root-to-leaf
// chain. The product over all leaves must sum to one within Tolerance.
func FromTable(tree *scenario.Tree, table Table) (*Weights, error) {
	shapeErr := checkShape(tree, table)
	if shapeErr != nil {
		return nil, shapeErr
	}

	b := tree.Branching()
	leaf := make([]float64, tree.LeafCount())

	for s := range leaf {
		weight := 1.0

		for w := 1; w <= tree.Stages(); w++ {
			row := table.Stages[w-1]

			col := treemath.Digit(s, w, tree.Stages(), b)
			if len(row) != b {
				col = treemath.Ancestor(s, tree.Stages()-w, b)
			}

			weight *= row[col]
		}

		leaf[s] = weight
	}

	sum := kahanSum(leaf)
	if math.Abs(sum-1) > Tolerance {
		return nil, &scenario.ProbabilityError{
			Sum:       sum,
			Tolerance: Tolerance,
			Detail:    "leaf weights do not sum to one",
		}
	}

	return newWeights(tree, leaf), nil
}

func checkShape(tree *scenario.Tree, table Table) error {
	if len(table.Stages) != tree.Stages() {
		return &scenario.ConfigurationError{
			Field:  "probabilities.stages",
			Value:  len(table.Stages),
			Reason: fmt.Sprintf("want one row per branching stage, %d", tree.Stages()),
		}
	}

	widths := tree.StageBranches()

	for i, row := range table.Stages {
		w := i + 1
		if len(row) != tree.Branching() && len(row) != widths[w] {
			return &scenario.ConfigurationError{
				Field:  fmt.Sprintf("probabilities.stages[%d]", i),
				Value:  len(row),
				Reason: fmt.Sprintf("want %d or %d entries", tree.Branching(), widths[w]),
			}
		}

		for j, p := range row {
			if !(p > 0 && p <= 1) {
				return &scenario.ProbabilityError{
					Sum:       p,
					Tolerance: Tolerance,
					Detail:    fmt.Sprintf("stage %d entry %d outside (0, 1]", w, j),
				}
			}
		}
	}

	return nil
}

func newWeights(tree *scenario.Tree, leaf []float64) *Weights {
	node := make([][]float64, tree.Stages()+1)

	for w, count := range tree.StageBranches() {
		node[w] = make([]float64, count)
		levels := tree.Stages() - w

		for s, p := range leaf {
			node[w][treemath.Ancestor(s, levels, tree.Branching())] += p
		}
	}

	return &Weights{tree: tree, leaf: leaf, node: node}
}

// kahanSum keeps the total within Tolerance for large leaf counts.
func kahanSum(values []float64) float64 {
	var sum, c float64

	for _, v := range values {
		y := v - c
		t := sum + y
		c = (t - sum) - y
		sum = t
	}

	return sum
}

// Leaf returns the weight of leaf scenario s, or zero when s is out of range.
func (w *Weights) Leaf(s int) float64 {
	if s < 0 || s >= len(w.leaf) {
		return 0
	}

	return w.leaf[s]
}

// Leaves returns every leaf weight indexed by scenario. The slice is a copy.
func (w *Weights) Leaves() []float64 {
	return slices.Clone(w.leaf)
}

// Sum returns the total leaf mass.
func (w *Weights) Sum() float64 {
	return kahanSum(w.leaf)
}

// Table returns the leaf weights keyed by terminal point.
func (w *Weights) Table() []LeafWeight {
	leaves := w.tree.Leaves()
	out := make([]LeafWeight, len(leaves))

	for i, p := range leaves {
		out[i] = LeafWeight{Point: p, Weight: w.leaf[p.Branch]}
	}

	return out
}

// Node returns the marginal probability of the tree node active at (branch,
// time), i.e. the mass of every leaf descending from it.
func (w *Weights) Node(branch, time int) (float64, error) {
	if !w.tree.Contains(branch, time) {
		return 0, &scenario.ConsistencyError{
			Invariant: "point-in-grid",
			Branch:    branch,
			Time:      time,
			Detail:    "not a point of the full set",
		}
	}

	return w.node[w.tree.StageOf(time)][branch], nil
}

// Nodes returns the node weight of every FullSet point, aligned with
// tree.Points().
func (w *Weights) Nodes() []float64 {
	out := make([]float64, w.tree.Len())

	for i := range out {
		p := w.tree.At(i)
		out[i] = w.node[w.tree.StageOf(p.Time)][p.Branch]
	}

	return out
}
