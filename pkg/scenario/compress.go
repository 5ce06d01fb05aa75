package scenario

import (
	"github.com/Sumatoshi-tech/stochgrid/pkg/treemath"
)

// Break forces a run boundary at every base time t with (t-Offset) mod
// Period == 0, so that decisions taken at that cadence still address their
// own record.
type Break struct {
	Period int
	Offset int
}

// CompressOptions controls run-length compression.
type CompressOptions struct {
	Breaks []Break
	// Similar reports whether base times prev and next of branch carry data
	// close enough to share one record. Nil treats every pair as similar.
	Similar func(branch, prev, next int) bool
	// MaxRun caps the run length; zero means unbounded.
	MaxRun int
}

// Compress collapses consecutive points of the same branch into runs. Runs
// never cross a stage boundary or a configured break.
func Compress(tree *Tree, opts CompressOptions) ([]GridPoint, error) {
	for _, br := range opts.Breaks {
		if br.Period < 1 {
			return nil, configErr("break.period", br.Period, "must be at least 1")
		}
	}

	if opts.MaxRun < 0 {
		return nil, configErr("max_run", opts.MaxRun, "must be non-negative")
	}

	runs := make([]GridPoint, 0)

	for i, p := range tree.points {
		if i > 0 && extendsRun(tree, opts, runs[len(runs)-1], p) {
			runs[len(runs)-1].RunLength++

			continue
		}

		runs = append(runs, p)
	}

	return runs, nil
}

func extendsRun(tree *Tree, opts CompressOptions, run, next GridPoint) bool {
	last := run.Time + run.RunLength - 1

	if next.Branch != run.Branch || next.Time != last+1 {
		return false
	}

	if treemath.Crossings(next.Time, last, tree.StageDuration()) != 0 {
		return false
	}

	if opts.MaxRun > 0 && run.RunLength >= opts.MaxRun {
		return false
	}

	for _, br := range opts.Breaks {
		if ((next.Time-br.Offset)%br.Period+br.Period)%br.Period == 0 {
			return false
		}
	}

	return opts.Similar == nil || opts.Similar(next.Branch, last, next.Time)
}

// Expand inverts Compress, returning one RunLength-1 point per base step.
func Expand(runs []GridPoint) []GridPoint {
	var total int
	for _, r := range runs {
		total += r.RunLength
	}

	points := make([]GridPoint, 0, total)

	for _, r := range runs {
		for step := range r.RunLength {
			points = append(points, GridPoint{Branch: r.Branch, Time: r.Time + step, RunLength: 1})
		}
	}

	return points
}
