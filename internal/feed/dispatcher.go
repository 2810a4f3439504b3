package feed

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldtrack-data/fieldtrack.report/internal/monitoring"
	"github.com/fieldtrack-data/fieldtrack.report/internal/pfe"
)

// Engine is the subset of the particle filter the feed drives. *pfe.Filter
// satisfies it; tests substitute a recorder.
type Engine interface {
	Predict(robot int, odom pfe.Odometry, stamp time.Time)
	SaveLandmarkObservation(robot, landmark int, obs pfe.LandmarkObservation)
	SetLandmarkFound(robot, landmark int, found bool)
	MeasurementsDoneLandmarks(robot int)
	SaveTargetObservation(robot int, obs pfe.TargetObservation)
	SetTargetFound(robot int, found bool)
	MeasurementsDoneTarget(robot int)
	UpdateTargetIterationTime(stamp time.Time)
}

// DispatcherConfig configures frame routing into the engine.
type DispatcherConfig struct {
	NumRobots   int
	MainRobotID int // 1-based
	// QueueDepth bounds each robot's frame queue; a full queue drops the
	// oldest frame so producers never block on a slow iteration.
	QueueDepth int
	Covariance CovarianceModel
}

// Dispatcher routes parsed frames to the engine. One worker goroutine per
// robot preserves per-robot arrival order; ordering across robots is
// unconstrained, matching the engine's contract.
type Dispatcher struct {
	engine    Engine
	cov       CovarianceModel
	mainRobot int // 0-based

	queues  []chan Frame
	dropped []int64

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewDispatcher creates a dispatcher and starts its per-robot workers.
func NewDispatcher(engine Engine, cfg DispatcherConfig) *Dispatcher {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 32
	}
	d := &Dispatcher{
		engine:    engine,
		cov:       cfg.Covariance,
		mainRobot: cfg.MainRobotID - 1,
		queues:    make([]chan Frame, cfg.NumRobots),
		dropped:   make([]int64, cfg.NumRobots),
		stop:      make(chan struct{}),
	}
	for r := range d.queues {
		d.queues[r] = make(chan Frame, depth)
		d.wg.Add(1)
		go d.worker(r)
	}
	return d
}

// Enqueue hands a frame to its robot's worker. Frames for robots outside
// the configured team are dropped with a log line; when a robot's queue is
// full the oldest queued frame is discarded first.
func (d *Dispatcher) Enqueue(f Frame) {
	r := f.Robot - 1
	if r < 0 || r >= len(d.queues) {
		monitoring.Logf("feed: dropping frame for unknown robot %d", f.Robot)
		return
	}
	for {
		select {
		case d.queues[r] <- f:
			return
		default:
		}
		select {
		case <-d.queues[r]:
			atomic.AddInt64(&d.dropped[r], 1)
		default:
		}
	}
}

// Close stops the workers after draining the queued frames.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.stop) })
	d.wg.Wait()
}

func (d *Dispatcher) worker(robot int) {
	defer d.wg.Done()
	for {
		select {
		case f := <-d.queues[robot]:
			d.apply(f)
		case <-d.stop:
			// Drain whatever arrived before the stop.
			for {
				select {
				case f := <-d.queues[robot]:
					d.apply(f)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) apply(f Frame) {
	robot := f.Robot - 1
	stamp := time.Unix(0, f.UnixNanos)

	switch f.Type {
	case FrameOdometry:
		d.engine.Predict(robot, pfe.Odometry{X: f.X, Y: f.Y, Theta: f.Theta}, stamp)

	case FrameLandmarks:
		for _, s := range f.Landmarks {
			if s.Found {
				d.engine.SaveLandmarkObservation(robot, s.ID, d.cov.Landmark(s))
			} else {
				d.engine.SetLandmarkFound(robot, s.ID, false)
			}
		}
		d.engine.MeasurementsDoneLandmarks(robot)

	case FrameTarget:
		if f.Found {
			d.engine.SaveTargetObservation(robot, d.cov.Target(f.X, f.Y, f.Z, f.Mismatch))
		} else {
			d.engine.SetTargetFound(robot, false)
		}
		if robot == d.mainRobot {
			d.engine.UpdateTargetIterationTime(stamp)
		}
		d.engine.MeasurementsDoneTarget(robot)
	}
}

// Dropped returns how many frames were discarded for a robot because its
// queue was full.
func (d *Dispatcher) Dropped(robot int) int64 {
	if robot < 0 || robot >= len(d.dropped) {
		return 0
	}
	return atomic.LoadInt64(&d.dropped[robot])
}
