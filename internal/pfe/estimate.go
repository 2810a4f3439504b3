package pfe

// estimateLocked computes the posterior estimates from the pre-reset
// weights: weighted-mean pose per used robot, weighted-mean target
// position, and the regression-based target velocity once the sample ring
// is full. Confidences were already filled by the landmark fusion.
func (f *Filter) estimateLocked() {
	src := f.prevParticles
	if src == nil {
		src = f.particles
	}
	weights := src[f.oWeight]

	for r := 0; r < f.nRobots; r++ {
		if !f.robotsUsed[r] {
			continue
		}
		for k := 0; k < statesPerRobot; k++ {
			f.robots[r].Pose[k] = weightedMean(src[robotCol(r, k)], weights)
		}
	}

	for axis := 0; axis < statesPerTarget; axis++ {
		f.target.Pos[axis] = weightedMean(src[f.oTarget+axis], weights)
	}

	now := float64(f.clock.Now().UnixNano()) * 1e-9
	f.vel.insert(now, f.buf.target, f.robots)
	if f.vel.ready() {
		for axis := 0; axis < statesPerTarget; axis++ {
			f.target.Vel[axis] = f.vel.velocity(axis)
		}
	} else {
		f.target.Vel = [3]float64{}
	}
}
