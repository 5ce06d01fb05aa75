package scenario

import (
	"slices"

	"github.com/Sumatoshi-tech/stochgrid/pkg/treemath"
)

// GridPoint is one record of a grid: a branch, a base time and the number of
// consecutive base timesteps of that branch the record stands for. Base grids
// always carry RunLength 1; Compress produces longer runs.
type GridPoint struct {
	Branch    int `json:"branch"     yaml:"branch"`
	Time      int `json:"time"       yaml:"time"`
	RunLength int `json:"run_length" yaml:"run_length"`
}

// Link pairs a grid point with its temporal predecessor.
type Link struct {
	Point       GridPoint `json:"point"       yaml:"point"`
	Predecessor GridPoint `json:"predecessor" yaml:"predecessor"`
}

// IsRoot reports whether the link is the self-referential root entry.
func (l Link) IsRoot() bool {
	return l.Point == l.Predecessor
}

// Tree is the immutable base index set of a scenario tree.
type Tree struct {
	cfg     Config
	leaves  int
	horizon int

	// points holds the FullSet branch-major, then by time.
	points []GridPoint
	// preds[i] is the index in points of the predecessor of points[i].
	preds []int
	// first[b] is the index in points of branch b's earliest point.
	first []int
	// birth[b] is the first base time at which branch b exists.
	birth []int

	stageBranches []int
}

// Build constructs the base grid and continuity relation for cfg.
func Build(cfg Config) (*Tree, error) {
	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	leaves, total, sizeErr := cfg.size()
	if sizeErr != nil {
		return nil, sizeErr
	}

	tree := &Tree{
		cfg:           cfg,
		leaves:        leaves,
		horizon:       cfg.Horizon(),
		points:        make([]GridPoint, 0, total),
		preds:         make([]int, 0, total),
		first:         make([]int, leaves),
		birth:         make([]int, leaves),
		stageBranches: make([]int, cfg.Stages+1),
	}

	width := 1
	for w := range tree.stageBranches {
		tree.stageBranches[w] = width
		width *= cfg.Branches
	}

	for branch := range leaves {
		tree.birth[branch] = birthStage(branch, cfg.Branches) * cfg.StageDuration
		tree.first[branch] = len(tree.points)

		for time := tree.birth[branch]; time < tree.horizon; time++ {
			tree.preds = append(tree.preds, tree.predecessorIndex(branch, time))
			tree.points = append(tree.points, GridPoint{Branch: branch, Time: time, RunLength: 1})
		}
	}

	return tree, nil
}

// birthStage returns the first stage at which branch is active: the smallest
// w with branch < B^w.
func birthStage(branch, branching int) int {
	if branch == 0 {
		return 0
	}

	stage := 0

	for width := 1; branch >= width; width *= branching {
		stage++
	}

	return stage
}

// predecessorIndex applies the base continuity rule. Branches are generated
// in ascending order, so the predecessor (which never has a larger branch
// number) is already placed.
func (t *Tree) predecessorIndex(branch, time int) int {
	if time == 0 {
		return 0
	}

	parent := treemath.Ancestor(branch, treemath.Crossings(time, time-1, t.cfg.StageDuration), t.cfg.Branches)

	if parent == branch {
		return len(t.points) - 1
	}

	return t.first[parent] + (time - 1 - t.birth[parent])
}

// Config returns the configuration the tree was built from.
func (t *Tree) Config() Config { return t.cfg }

// Branching returns B.
func (t *Tree) Branching() int { return t.cfg.Branches }

// Stages returns S.
func (t *Tree) Stages() int { return t.cfg.Stages }

// StageDuration returns L.
func (t *Tree) StageDuration() int { return t.cfg.StageDuration }

// Horizon returns the number of base timesteps, (S+1)·L.
func (t *Tree) Horizon() int { return t.horizon }

// LeafCount returns B^S.
func (t *Tree) LeafCount() int { return t.leaves }

// Len returns |FullSet|.
func (t *Tree) Len() int { return len(t.points) }

// StageOf returns the stage owning base time.
func (t *Tree) StageOf(time int) int {
	return treemath.Stage(time, t.cfg.StageDuration)
}

// StageBranches returns the per-stage branch count table B^w for w in 0..S.
func (t *Tree) StageBranches() []int {
	return slices.Clone(t.stageBranches)
}

// BranchesAt returns the number of branches active at base time.
func (t *Tree) BranchesAt(time int) int {
	return t.stageBranches[t.StageOf(time)]
}

// Multiplicity returns how many leaf scenarios share the node active at base
// time, B^(S-stage).
func (t *Tree) Multiplicity(time int) int {
	return t.leaves / t.BranchesAt(time)
}

// Points returns the FullSet in branch-major order. The slice is a copy.
func (t *Tree) Points() []GridPoint {
	return slices.Clone(t.points)
}

// At returns the i-th point of the FullSet.
func (t *Tree) At(i int) GridPoint {
	return t.points[i]
}

// Contains reports whether (branch, time) is a point of the FullSet.
func (t *Tree) Contains(branch, time int) bool {
	if time < 0 || time >= t.horizon || branch < 0 || branch >= t.leaves {
		return false
	}

	return time >= t.birth[branch]
}

// Index returns the position of (branch, time) in the FullSet.
func (t *Tree) Index(branch, time int) (int, bool) {
	if !t.Contains(branch, time) {
		return 0, false
	}

	return t.first[branch] + time - t.birth[branch], true
}

// Predecessor returns the ContinuitySet entry for (branch, time). The root
// (0, 0) is its own predecessor; recursive sums starting from it contribute
// nothing.
func (t *Tree) Predecessor(branch, time int) (GridPoint, error) {
	idx, ok := t.Index(branch, time)
	if !ok {
		return GridPoint{}, consistencyErr("point-in-grid", branch, time, "not a point of the full set")
	}

	return t.points[t.preds[idx]], nil
}

// Continuity returns the ContinuitySet in FullSet order, root entry first.
func (t *Tree) Continuity() []Link {
	links := make([]Link, len(t.points))

	for i, p := range t.points {
		links[i] = Link{Point: p, Predecessor: t.points[t.preds[i]]}
	}

	return links
}

// Leaves returns the terminal points (branch, horizon-1) for every leaf
// scenario, ordered by branch.
func (t *Tree) Leaves() []GridPoint {
	leaves := make([]GridPoint, t.leaves)

	for b := range t.leaves {
		leaves[b] = GridPoint{Branch: b, Time: t.horizon - 1, RunLength: 1}
	}

	return leaves
}

// Node is one vertex of the scenario tree: a branch during one stage.
type Node struct {
	Stage  int `json:"stage"  yaml:"stage"`
	Branch int `json:"branch" yaml:"branch"`
	// Parent is the branch at the previous stage, -1 for the root.
	Parent int `json:"parent" yaml:"parent"`
	Start  int `json:"start"  yaml:"start"`
	// End is exclusive.
	End int `json:"end" yaml:"end"`
}

// Nodes lists the tree's vertices stage by stage. Each node is the contiguous
// time segment a sampler fills with one historical window.
func (t *Tree) Nodes() []Node {
	var total int
	for _, n := range t.stageBranches {
		total += n
	}

	nodes := make([]Node, 0, total)

	for stage, count := range t.stageBranches {
		for branch := range count {
			parent := -1
			if stage > 0 {
				parent = treemath.Ancestor(branch, 1, t.cfg.Branches)
			}

			nodes = append(nodes, Node{
				Stage:  stage,
				Branch: branch,
				Parent: parent,
				Start:  stage * t.cfg.StageDuration,
				End:    (stage + 1) * t.cfg.StageDuration,
			})
		}
	}

	return nodes
}
