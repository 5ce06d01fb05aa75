package weighting

import (
	"math"
	"slices"
)

// Percentiles reported by Summarize.
const (
	percentileMedian = 0.50
	percentileP95    = 0.95
)

// Summary describes the distribution of leaf weights.
// StdDev is the population standard deviation.
type Summary struct {
	Leaves int     `json:"leaves"    yaml:"leaves"`
	Min    float64 `json:"min"       yaml:"min"`
	Max    float64 `json:"max"       yaml:"max"`
	Mean   float64 `json:"mean"      yaml:"mean"`
	StdDev float64 `json:"stddev"    yaml:"stddev"`
	Median float64 `json:"median"    yaml:"median"`
	P95    float64 `json:"p95"       yaml:"p95"`
	// Effective is 1/sum(w^2): B^S for uniform weights, approaching 1 as
	// the mass concentrates on a single scenario.
	Effective float64 `json:"effective" yaml:"effective"`
}

// Summarize computes the leaf weight distribution.
func (w *Weights) Summarize() Summary {
	sorted := slices.Clone(w.leaf)
	slices.Sort(sorted)

	mean := kahanSum(sorted) / float64(len(sorted))

	squares := make([]float64, len(sorted))
	deviations := make([]float64, len(sorted))

	for i, v := range sorted {
		squares[i] = v * v
		deviations[i] = (v - mean) * (v - mean)
	}

	return Summary{
		Leaves:    len(sorted),
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      mean,
		StdDev:    math.Sqrt(kahanSum(deviations) / float64(len(sorted))),
		Median:    percentile(sorted, percentileMedian),
		P95:       percentile(sorted, percentileP95),
		Effective: 1 / kahanSum(squares),
	}
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))

	if lower == upper {
		return sorted[lower]
	}

	frac := idx - float64(lower)

	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
