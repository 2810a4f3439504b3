package pfe

import (
	"math"
	"testing"
	"time"

	"github.com/fieldtrack-data/fieldtrack.report/internal/timeutil"
)

// TestSingleRobotConvergence runs the canonical convergence scenario: one
// robot standing at (1, 0, 0) repeatedly observing two known landmarks with
// tight covariance. After 50 iterations the weighted-mean pose estimate
// must be within 0.1 of the truth on every axis.
func TestSingleRobotConvergence(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(0, 0))
	f := newTestFilter(t, InitData{
		MainRobotID:  1,
		NumParticles: 1000,
		NumRobots:    1,
		NumLandmarks: 2,
		RobotsUsed:   []bool{true},
		LandmarksMap: twoLandmarks(),
		Seed:         42,
		Clock:        clock,
	})

	box := []float64{
		0.5, 1.5, // robot x around the truth
		-0.5, 0.5, // robot y
		-0.5, 0.5, // robot theta
		0, 6, -4.5, 4.5, 0, 1, // target anywhere on the field
	}
	if err := f.InitCustom(box, []float64{1, 0, 0}); err != nil {
		t.Fatal(err)
	}

	// Ground truth (1, 0, 0): landmark (2, 0) appears at (1, 0) in the body
	// frame, landmark (0, 1) at (-1, 1).
	obs0 := LandmarkObservation{Found: true, X: 1, Y: 0, CovXX: 0.01, CovYY: 0.01}
	obs1 := LandmarkObservation{Found: true, X: -1, Y: 1, CovXX: 0.01, CovYY: 0.01}

	stamp := time.Unix(0, 0)
	for i := 0; i < 50; i++ {
		stamp = stamp.Add(33 * time.Millisecond)
		clock.Advance(33 * time.Millisecond)
		f.Predict(0, Odometry{}, stamp)
		f.SaveLandmarkObservation(0, 0, obs0)
		f.SaveLandmarkObservation(0, 1, obs1)
		f.MeasurementsDoneLandmarks(0)
		f.MeasurementsDoneTarget(0)
	}

	robots, _ := f.State()
	pose := robots[0].Pose
	if math.Abs(pose[0]-1) > 0.1 || math.Abs(pose[1]) > 0.1 || math.Abs(pose[2]) > 0.1 {
		t.Errorf("estimate %v, want within 0.1 of (1, 0, 0)", pose)
	}
	if robots[0].Conf <= 0 {
		t.Errorf("confidence %v, want positive after landmark fusion", robots[0].Conf)
	}
	if got := f.Iteration(); got != 50 {
		t.Errorf("iteration counter %d, want 50", got)
	}
}

// TestTargetVelocityRecovery tracks a target moving at 1 m/s along x with a
// stationary, perfectly localized robot. Once the estimator ring fills, the
// regressed velocity must recover the true motion.
func TestTargetVelocityRecovery(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(0, 0))
	f := newTestFilter(t, InitData{
		MainRobotID:  1,
		NumParticles: 1000,
		NumRobots:    1,
		RobotsUsed:   []bool{true},
		Seed:         42,
		Clock:        clock,
	})

	// Robot pinned at the origin; target particles start at the origin too.
	if err := f.InitCustom(narrowBox(1), make([]float64, 3)); err != nil {
		t.Fatal(err)
	}

	const dt = 33 * time.Millisecond
	stamp := time.Unix(0, 0)
	for i := 1; i <= 20; i++ {
		stamp = stamp.Add(dt)
		clock.Advance(dt)
		truthX := float64(i) * dt.Seconds()

		f.SaveTargetObservation(0, TargetObservation{
			Found: true,
			X:     truthX, Y: 0, Z: 0,
			CovXX: 0.01, CovYY: 0.01,
		})
		f.UpdateTargetIterationTime(stamp)
		f.MeasurementsDoneTarget(0)
	}

	_, target := f.State()
	if target.Vel[0] < 0.8 || target.Vel[0] > 1.2 {
		t.Errorf("vel.x = %v, want within [0.8, 1.2]", target.Vel[0])
	}
	if math.Abs(target.Vel[1]) > 0.2 || math.Abs(target.Vel[2]) > 0.2 {
		t.Errorf("lateral velocities (%v, %v), want below 0.2", target.Vel[1], target.Vel[2])
	}
}

// TestDegenerateWeightsSafe forces every landmark likelihood to underflow
// and verifies the filter skips resampling, keeps the particle set, and
// still produces finite estimates from the unweighted fallback.
func TestDegenerateWeightsSafe(t *testing.T) {
	f := newTestFilter(t, singleRobotData(100, 42))

	box := []float64{0.5, 1.5, -0.5, 0.5, -0.5, 0.5, 0, 1, 0, 1, 0, 1}
	if err := f.InitCustom(box, []float64{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	before := f.Snapshot().Particles

	// A sighting claiming the landmark is over 100m away with a
	// sub-millimetre standard deviation zeroes every particle's likelihood.
	f.SaveLandmarkObservation(0, 0, LandmarkObservation{
		Found: true, X: 100, Y: 100, CovXX: 1e-8, CovYY: 1e-8,
	})
	f.MeasurementsDoneLandmarks(0)
	f.MeasurementsDoneTarget(0)

	view := f.Snapshot()
	if view.WeightSum != 0 {
		t.Fatalf("weight sum %v, want exact underflow to 0", view.WeightSum)
	}
	if got := f.Iteration(); got != 1 {
		t.Fatalf("iteration %d, want 1 (the degenerate iteration still completes)", got)
	}

	// Robot pose columns were kept, not resampled: no odometry was applied,
	// so only a gather could have moved them, and it must have been skipped.
	for c := 0; c < 3; c++ {
		for p := range before[c] {
			if before[c][p] != view.Particles[c][p] {
				t.Fatalf("column %d changed despite degenerate weights", c)
			}
		}
	}

	robots, target := f.State()
	for _, v := range robots[0].Pose {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite pose estimate %v", robots[0].Pose)
		}
	}
	for _, v := range target.Pos {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite target estimate %v", target.Pos)
		}
	}
	if robots[0].Conf != 0 {
		t.Errorf("confidence %v, want 0 when every likelihood underflows", robots[0].Conf)
	}
}
