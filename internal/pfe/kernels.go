package pfe

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// sampler wraps the engine's single random source. Every stochastic step in
// the filter draws from it, so a fixed seed reproduces a run exactly.
type sampler struct {
	rng *rand.Rand
}

func newSampler(seed int64) *sampler {
	return &sampler{rng: rand.New(rand.NewSource(seed))}
}

// Uniform draws from the half-open interval [lo, hi).
func (s *sampler) Uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// Gaussian draws from N(mu, sigma^2).
func (s *sampler) Gaussian(mu, sigma float64) float64 {
	return mu + s.rng.NormFloat64()*sigma
}

// linearRegressionSlope returns the least-squares slope of xs over ts.
// Degenerate inputs (fewer than two samples, or zero spread in ts) yield 0.
func linearRegressionSlope(ts, xs []float64) float64 {
	if len(ts) < 2 || len(ts) != len(xs) {
		return 0
	}
	tMean := stat.Mean(ts, nil)
	var den float64
	for _, t := range ts {
		d := t - tMean
		den += d * d
	}
	if den == 0 {
		return 0
	}
	_, slope := stat.LinearRegression(ts, xs, nil, false)
	return slope
}

// argsortDesc returns a permutation of indices ordering ws by descending
// value. Ties keep their original relative order.
func argsortDesc(ws []float64) []int {
	idx := make([]int, len(ws))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return ws[idx[a]] > ws[idx[b]]
	})
	return idx
}

// weightedMean returns the ws-weighted mean of vs. A zero weight sum falls
// through to the unweighted mean.
func weightedMean(vs, ws []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	if ws == nil || floats.Sum(ws) == 0 {
		return stat.Mean(vs, nil)
	}
	return stat.Mean(vs, ws)
}

// stdDev returns the sample standard deviation of vs.
func stdDev(vs []float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	return stat.StdDev(vs, nil)
}
