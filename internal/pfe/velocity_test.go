package pfe

import (
	"math"
	"testing"
)

func ringRobots(confs ...float64) []RobotState {
	rs := make([]RobotState, len(confs))
	for i, c := range confs {
		rs[i].Conf = c
	}
	return rs
}

func TestVelocityEstimatorPicksHighestConfidence(t *testing.T) {
	e := newVelocityEstimator(5, nil)

	obs := []TargetObservation{
		{Found: true, X: 1, Y: 0},
		{Found: true, X: 2, Y: 0},
	}
	robots := ringRobots(0.2, 0.9)
	robots[1].Pose = [3]float64{10, 0, 0}

	e.insert(0, obs, robots)
	if len(e.times) != 1 {
		t.Fatalf("expected one sample, got %d", len(e.times))
	}
	// Robot 1 at (10, 0, 0) saw the target 2m ahead.
	if got := e.pos[0][0]; math.Abs(got-12) > 1e-12 {
		t.Errorf("world x = %v, want 12 (from the high-confidence robot)", got)
	}
}

func TestVelocityEstimatorSanityBox(t *testing.T) {
	e := newVelocityEstimator(5, nil)

	obs := []TargetObservation{{Found: true, X: 7, Y: 0}}
	e.insert(0, obs, ringRobots(1))
	if len(e.times) != 0 {
		t.Error("out-of-range observation should be skipped")
	}

	obs[0].X = 3.5
	e.insert(0, obs, ringRobots(1))
	if len(e.times) != 1 {
		t.Error("in-range observation should be inserted")
	}
}

func TestVelocityEstimatorSkipsWhenNotFound(t *testing.T) {
	e := newVelocityEstimator(5, nil)
	e.insert(0, []TargetObservation{{Found: false, X: 1}}, ringRobots(1))
	if len(e.times) != 0 {
		t.Error("not-found observation should be skipped")
	}
}

func TestVelocityEstimatorRingBounds(t *testing.T) {
	e := newVelocityEstimator(3, nil)
	obs := []TargetObservation{{Found: true, X: 1, Y: 0}}

	for i := 0; i < 5; i++ {
		e.insert(float64(i), obs, ringRobots(1))
	}
	if len(e.times) != 3 {
		t.Fatalf("ring grew to %d, want capacity 3", len(e.times))
	}
	// Oldest samples dropped: times are relative to the first insert.
	if e.times[0] != 2 || e.times[2] != 4 {
		t.Errorf("ring times = %v, want [2 3 4]", e.times)
	}
}

func TestVelocityEstimatorSlope(t *testing.T) {
	e := newVelocityEstimator(4, nil)
	robots := ringRobots(1)

	// Target moving at 2 m/s along x in the world frame, robot at origin.
	for i := 0; i < 4; i++ {
		obs := []TargetObservation{{Found: true, X: 2 * 0.1 * float64(i), Y: 0}}
		e.insert(0.1*float64(i), obs, robots)
	}

	if !e.ready() {
		t.Fatal("ring should be full")
	}
	if got := e.velocity(0); math.Abs(got-2) > 1e-9 {
		t.Errorf("vx = %v, want 2", got)
	}
	if got := e.velocity(1); math.Abs(got) > 1e-9 {
		t.Errorf("vy = %v, want 0", got)
	}
}

func TestVelocityEstimatorTimeOrigin(t *testing.T) {
	e := newVelocityEstimator(5, nil)
	obs := []TargetObservation{{Found: true, X: 1, Y: 0}}

	e.insert(100.5, obs, ringRobots(1))
	e.insert(101.0, obs, ringRobots(1))
	if e.times[0] != 0 || e.times[1] != 0.5 {
		t.Errorf("times = %v, want origin-relative [0 0.5]", e.times)
	}
}

func TestVelocityEstimatorCustomSlope(t *testing.T) {
	called := false
	e := newVelocityEstimator(1, func(ts, xs []float64) float64 {
		called = true
		return 42
	})
	e.insert(0, []TargetObservation{{Found: true, X: 1}}, ringRobots(1))
	if got := e.velocity(0); got != 42 || !called {
		t.Errorf("custom estimator not used, got %v", got)
	}
}
