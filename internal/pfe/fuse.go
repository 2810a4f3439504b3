package pfe

import (
	"math"

	"github.com/fieldtrack-data/fieldtrack.report/internal/monitoring"
)

// predictTargetLocked advances every particle's target block by the current
// velocity estimate over the measured iteration interval, plus velocity
// dispersion noise integrated over the same interval.
func (f *Filter) predictTargetLocked() {
	dt := f.targetDeltaT
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 || dt > TargetIterationTimeMax {
		dt = f.cur.targetIterTime
	}

	noiseSigma := TargetRandStdDev * dt
	for axis := 0; axis < statesPerTarget; axis++ {
		col := f.particles[f.oTarget+axis]
		v := f.target.Vel[axis]
		for p := range col {
			col[p] += v*dt + f.smp.Gaussian(0, noiseSigma)
		}
	}
}

// fuseRobotsLocked multiplies each used robot's landmark likelihood into the
// master weight column. The per-robot factor is kept in weightComponents so
// confidences can be derived and inspected.
func (f *Filter) fuseRobotsLocked() {
	weights := f.particles[f.oWeight]

	for r := 0; r < f.nRobots; r++ {
		if !f.robotsUsed[r] {
			continue
		}

		factor := f.weightComponents[r]
		for p := range factor {
			factor[p] = 1.0
		}

		// The first odometry-noise coefficient inflates the observation
		// covariance so noisier platforms weigh their sightings less.
		inflate := 1.0 + f.cur.alpha[4*r]

		for l := 0; l < f.nLandmarks; l++ {
			obs := f.buf.landmarks[r][l]
			if !obs.Found {
				continue
			}
			covXX := obs.CovXX * inflate
			covYY := obs.CovYY * inflate
			if covXX <= 0 || covYY <= 0 {
				monitoring.Logf("pfe: robot %d landmark %d has non-positive covariance, skipping", r+1, l)
				continue
			}
			lm := f.landmarks[l]
			norm := 1.0 / math.Sqrt(2.0*math.Pi*covXX*covYY)

			for p := 0; p < f.nParticles; p++ {
				pose := f.particles.poseAt(r, p)
				zx, zy := pose.ToBody(lm.X, lm.Y)
				dx := obs.X - zx
				dy := obs.Y - zy
				factor[p] *= norm * math.Exp(-0.5*(dx*dx/covXX+dy*dy/covYY))
			}
		}

		var sum float64
		for p := range factor {
			sum += factor[p]
		}
		f.robots[r].Conf = sum / float64(f.nParticles)

		for p := range weights {
			weights[p] *= factor[p]
		}
	}
}

// fuseTargetLocked multiplies each sighting robot's target likelihood into
// the master weight column. Every particle's target position is projected
// into the sighting robot's body frame using that same particle's robot
// pose, so the joint state is weighted consistently. The z coordinate is
// estimated through the motion model only and carries no likelihood.
func (f *Filter) fuseTargetLocked() {
	weights := f.particles[f.oWeight]
	txCol := f.particles[f.oTarget]
	tyCol := f.particles[f.oTarget+1]

	for r := 0; r < f.nRobots; r++ {
		if !f.robotsUsed[r] {
			continue
		}
		obs := f.buf.target[r]
		if !obs.Found {
			continue
		}
		if obs.CovXX <= 0 || obs.CovYY <= 0 {
			monitoring.Logf("pfe: robot %d target observation has non-positive covariance, skipping", r+1)
			continue
		}
		norm := 1.0 / math.Sqrt(2.0*math.Pi*obs.CovXX*obs.CovYY)

		for p := 0; p < f.nParticles; p++ {
			pose := f.particles.poseAt(r, p)
			zx, zy := pose.ToBody(txCol[p], tyCol[p])
			dx := obs.X - zx
			dy := obs.Y - zy
			weights[p] *= norm * math.Exp(-0.5*(dx*dx/obs.CovXX+dy*dy/obs.CovYY))
		}
	}
}
