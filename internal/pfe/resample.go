package pfe

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/fieldtrack-data/fieldtrack.report/internal/monitoring"
)

// resampleLocked replaces the particle set with a modified multinomial
// draw: the top fraction of particles by weight survives verbatim, the
// remaining slots are drawn by inverse-CDF sampling over the normalized
// weights, and all weights reset to 1/P. The pre-gather matrix, whose
// weight column still carries the fused weights, is retained for the
// estimator.
//
// When the weight sum is degenerate the current set is kept untouched so
// the estimator can fall through to an unweighted mean.
func (f *Filter) resampleLocked() {
	weights := f.particles[f.oWeight]
	sum := floats.Sum(weights)

	f.prevParticles = f.particles.clone()
	f.prevWeightSum = sum

	if sum < MinWeightSum {
		monitoring.Logf("pfe: degenerate weight sum %.3g, keeping current particle set", sum)
		return
	}

	perm := f.resamplePermutation(weights, sum)
	f.gatherLocked(perm)
	f.particles.assignCol(f.oWeight, 1.0/float64(f.nParticles))
}

// resamplePermutation builds the source index for every post-resample slot:
// slots below the elite cut take the top-weighted particles in stable
// descending order; the rest are multinomial draws via the inverse CDF.
func (f *Filter) resamplePermutation(weights []float64, sum float64) []int {
	perm := make([]int, f.nParticles)

	order := argsortDesc(weights)
	top := int(f.cur.resampleStartAt * float64(f.nParticles))
	if top > f.nParticles {
		top = f.nParticles
	}
	copy(perm[:top], order[:top])

	if top == f.nParticles {
		return perm
	}

	cdf := make([]float64, f.nParticles)
	acc := 0.0
	for i, w := range weights {
		acc += w / sum
		cdf[i] = acc
	}
	cdf[f.nParticles-1] = 1.0

	for slot := top; slot < f.nParticles; slot++ {
		u := f.smp.Uniform(0, 1)
		idx := sort.SearchFloat64s(cdf, u)
		if idx >= f.nParticles {
			idx = f.nParticles - 1
		}
		perm[slot] = idx
	}
	return perm
}

// gatherLocked rearranges every subset column by perm, sourcing from the
// pre-gather snapshot. Disabled robots' columns are left untouched: their
// subsets stay at the values Init gave them.
func (f *Filter) gatherLocked(perm []int) {
	for r := 0; r < f.nRobots; r++ {
		if !f.robotsUsed[r] {
			continue
		}
		for k := 0; k < statesPerRobot; k++ {
			f.gatherColumn(robotCol(r, k), perm)
		}
	}
	for axis := 0; axis < statesPerTarget; axis++ {
		f.gatherColumn(f.oTarget+axis, perm)
	}
	f.gatherColumn(f.oWeight, perm)
}

func (f *Filter) gatherColumn(c int, perm []int) {
	src := f.prevParticles[c]
	dst := f.particles[c]
	for i, from := range perm {
		dst[i] = src[from]
	}
}
