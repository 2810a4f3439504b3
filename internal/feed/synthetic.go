package feed

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// SimLandmark is a landmark position in the simulated world.
type SimLandmark struct {
	ID   int
	X, Y float64
}

// SyntheticConfig describes the simulated scenario the generator plays out:
// a team of stationary robots watching a target that circles the field
// centre at constant speed.
type SyntheticConfig struct {
	NumRobots int
	// RobotPoses holds one x, y, theta triple per robot.
	RobotPoses []float64
	Landmarks  []SimLandmark

	TargetRadius float64
	TargetSpeed  float64 // m/s along the circle
	CentreX      float64
	CentreY      float64

	// Noise sigmas applied to the generated observations.
	OdometryNoise    float64
	ObservationNoise float64

	// Interval between target frames; odometry and landmark frames share it.
	Interval time.Duration
}

// DefaultSyntheticConfig returns a two-robot scenario on the standard field.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		NumRobots:  2,
		RobotPoses: []float64{1, 0, 0, 5, 0, math.Pi},
		Landmarks: []SimLandmark{
			{0, 0, 2.5}, {1, 3, 2.5}, {2, 6, 2.5},
			{3, 0, -2.5}, {4, 3, -2.5}, {5, 6, -2.5},
		},
		TargetRadius:     1.5,
		TargetSpeed:      1.0,
		CentreX:          3,
		CentreY:          0,
		OdometryNoise:    0.002,
		ObservationNoise: 0.02,
		Interval:         33 * time.Millisecond,
	}
}

// Synthetic generates sensor frames for the configured scenario. It is the
// demo-mode producer and the integration-test workload.
type Synthetic struct {
	cfg   SyntheticConfig
	noise distuv.Normal
	odom  distuv.Normal
	step  int
	start time.Time
}

// NewSynthetic creates a generator starting at start.
func NewSynthetic(cfg SyntheticConfig, start time.Time) *Synthetic {
	return &Synthetic{
		cfg:   cfg,
		noise: distuv.Normal{Mu: 0, Sigma: cfg.ObservationNoise},
		odom:  distuv.Normal{Mu: 0, Sigma: cfg.OdometryNoise},
		step:  0,
		start: start,
	}
}

// targetAt returns the target's world position at step s.
func (g *Synthetic) targetAt(s int) (x, y, z float64) {
	t := float64(s) * g.cfg.Interval.Seconds()
	angle := g.cfg.TargetSpeed * t / g.cfg.TargetRadius
	x = g.cfg.CentreX + g.cfg.TargetRadius*math.Cos(angle)
	y = g.cfg.CentreY + g.cfg.TargetRadius*math.Sin(angle)
	return x, y, 0.35
}

// NextStep produces all frames for the next simulation tick: per robot an
// odometry frame, a landmarks frame and a target frame. The main robot is
// robot 1 by convention, so its target frame arrives last and closes the
// iteration.
func (g *Synthetic) NextStep() []Frame {
	stamp := g.start.Add(time.Duration(g.step) * g.cfg.Interval).UnixNano()
	tx, ty, tz := g.targetAt(g.step)
	g.step++

	frames := make([]Frame, 0, 3*g.cfg.NumRobots)
	// Emit the non-main robots first so the main target frame is the
	// barrier for everything in this tick.
	for robot := g.cfg.NumRobots; robot >= 1; robot-- {
		px := g.cfg.RobotPoses[3*(robot-1)]
		py := g.cfg.RobotPoses[3*(robot-1)+1]
		ptheta := g.cfg.RobotPoses[3*(robot-1)+2]

		frames = append(frames, Frame{
			Type: FrameOdometry, Robot: robot, UnixNanos: stamp,
			X: g.odom.Rand(), Y: g.odom.Rand(), Theta: g.odom.Rand(),
		})

		sightings := make([]LandmarkSighting, 0, len(g.cfg.Landmarks))
		for _, lm := range g.cfg.Landmarks {
			bx, by := toBody(px, py, ptheta, lm.X, lm.Y)
			if math.Hypot(bx, by) > 4.0 {
				sightings = append(sightings, LandmarkSighting{ID: lm.ID, Found: false})
				continue
			}
			sightings = append(sightings, LandmarkSighting{
				ID: lm.ID, Found: true,
				X: bx + g.noise.Rand(), Y: by + g.noise.Rand(),
				AreaRatio: 0.95,
			})
		}
		frames = append(frames, Frame{
			Type: FrameLandmarks, Robot: robot, UnixNanos: stamp,
			Landmarks: sightings,
		})

		bx, by := toBody(px, py, ptheta, tx, ty)
		target := Frame{Type: FrameTarget, Robot: robot, UnixNanos: stamp}
		if math.Hypot(bx, by) <= 4.0 {
			target.Found = true
			target.X = bx + g.noise.Rand()
			target.Y = by + g.noise.Rand()
			target.Z = tz
			target.Mismatch = 1
		}
		frames = append(frames, target)
	}
	return frames
}

func toBody(px, py, ptheta, wx, wy float64) (bx, by float64) {
	sin, cos := math.Sincos(ptheta)
	dx := wx - px
	dy := wy - py
	return dx*cos + dy*sin, -dx*sin + dy*cos
}
