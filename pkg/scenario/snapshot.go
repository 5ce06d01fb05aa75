package scenario

import (
	"fmt"
	"slices"
)

// TreeSnapshot is the serializable form of a Tree.
type TreeSnapshot struct {
	Branches      int         `json:"branches"       yaml:"branches"`
	Stages        int         `json:"stages"         yaml:"stages"`
	StageDuration int         `json:"stage_duration" yaml:"stage_duration"`
	Points        []GridPoint `json:"points"         yaml:"points"`
	Predecessors  []int       `json:"predecessors"   yaml:"predecessors"`
}

// Snapshot captures the tree for persistence.
func (t *Tree) Snapshot() TreeSnapshot {
	return TreeSnapshot{
		Branches:      t.cfg.Branches,
		Stages:        t.cfg.Stages,
		StageDuration: t.cfg.StageDuration,
		Points:        slices.Clone(t.points),
		Predecessors:  slices.Clone(t.preds),
	}
}

// FromSnapshot restores a tree and re-verifies every structural invariant, so
// a corrupted or hand-edited snapshot never yields a usable tree.
func FromSnapshot(snap TreeSnapshot, limits Limits) (*Tree, error) {
	cfg := Config{
		Branches:      snap.Branches,
		Stages:        snap.Stages,
		StageDuration: snap.StageDuration,
		Limits:        limits,
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	leaves, _, sizeErr := cfg.size()
	if sizeErr != nil {
		return nil, sizeErr
	}

	if len(snap.Points) != len(snap.Predecessors) {
		return nil, consistencyErr("snapshot-shape", 0, 0, "%d points but %d predecessors",
			len(snap.Points), len(snap.Predecessors))
	}

	tree := &Tree{
		cfg:           cfg,
		leaves:        leaves,
		horizon:       cfg.Horizon(),
		points:        slices.Clone(snap.Points),
		preds:         slices.Clone(snap.Predecessors),
		first:         make([]int, leaves),
		birth:         make([]int, leaves),
		stageBranches: make([]int, cfg.Stages+1),
	}

	width := 1
	for w := range tree.stageBranches {
		tree.stageBranches[w] = width
		width *= cfg.Branches
	}

	offset := 0
	for branch := range leaves {
		tree.birth[branch] = birthStage(branch, cfg.Branches) * cfg.StageDuration
		tree.first[branch] = offset
		offset += tree.horizon - tree.birth[branch]
	}

	verifyErr := Verify(tree)
	if verifyErr != nil {
		return nil, fmt.Errorf("restore snapshot: %w", verifyErr)
	}

	return tree, nil
}
