package pfe

// SlopeEstimator fits a per-axis velocity from time and position samples.
// The default is the least-squares regression slope; tests may substitute
// simpler fits.
type SlopeEstimator func(ts, xs []float64) float64

// targetObservationSanityLimit rejects target sightings reported implausibly
// far away in the robot frame before they can enter the velocity estimator.
const targetObservationSanityLimit = 4.0

// velocityEstimator keeps a bounded ring of world-frame target position
// samples and regresses each axis over time once the ring is full.
type velocityEstimator struct {
	times    []float64
	pos      [statesPerTarget][]float64
	maxSize  int
	timeInit float64
	estimate SlopeEstimator
}

func newVelocityEstimator(maxSize int, fn SlopeEstimator) *velocityEstimator {
	if fn == nil {
		fn = linearRegressionSlope
	}
	return &velocityEstimator{maxSize: maxSize, estimate: fn}
}

// insert picks the reporting robot with the highest confidence among those
// that currently see the target inside the sanity box, transforms its
// observation into the world frame with that robot's posterior pose, and
// pushes the sample. When no robot qualifies the sample is skipped.
func (e *velocityEstimator) insert(now float64, obs []TargetObservation, robots []RobotState) {
	chosen := -1
	maxConf := 0.0
	for r := range obs {
		if !obs[r].Found {
			continue
		}
		if obs[r].X >= targetObservationSanityLimit || obs[r].Y >= targetObservationSanityLimit {
			continue
		}
		if robots[r].Conf > maxConf {
			chosen = r
			maxConf = robots[r].Conf
		}
	}
	if chosen < 0 {
		return
	}

	rs := robots[chosen]
	o := obs[chosen]
	pose := Pose{X: rs.Pose[0], Y: rs.Pose[1], Theta: rs.Pose[2]}
	wx, wy := pose.ToWorld(o.X, o.Y)
	sample := [statesPerTarget]float64{wx, wy, o.Z}

	if len(e.times) == 0 {
		e.timeInit = now
	}
	e.times = append(e.times, now-e.timeInit)
	for axis := 0; axis < statesPerTarget; axis++ {
		e.pos[axis] = append(e.pos[axis], sample[axis])
	}

	if len(e.times) > e.maxSize {
		e.times = e.times[1:]
		for axis := 0; axis < statesPerTarget; axis++ {
			e.pos[axis] = e.pos[axis][1:]
		}
	}
}

// ready reports whether the ring holds enough history to regress.
func (e *velocityEstimator) ready() bool {
	return len(e.times) == e.maxSize
}

// velocity returns the regressed velocity for one axis.
func (e *velocityEstimator) velocity(axis int) float64 {
	return e.estimate(e.times, e.pos[axis])
}
