// Package pfe implements the joint particle filter for cooperative
// multi-robot localization and single-target tracking. One filter instance
// estimates every teammate's planar pose and the target's 3-D position and
// velocity from asynchronous odometry, landmark and target observations.
package pfe

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/fieldtrack-data/fieldtrack.report/internal/monitoring"
	"github.com/fieldtrack-data/fieldtrack.report/internal/timeutil"
)

// Filter tuning constants. ResampleStartAt and the target iteration time are
// runtime-reconfigurable through Params; the rest are fixed for a run.
const (
	// MaxEstimatorStackSize bounds the velocity estimator's sample ring.
	MaxEstimatorStackSize = 15
	// TargetRandStdDev is the target velocity dispersion (m/s) applied in
	// the target prediction step, integrated over the iteration interval.
	TargetRandStdDev = 20.0
	// DefaultResampleStartAt is the fraction of top-weighted particles
	// copied verbatim through the resampler.
	DefaultResampleStartAt = 0.5
	// MinWeightSum is the degenerate-weight threshold below which the
	// resampler keeps the current particle set.
	MinWeightSum = 1e-10
	// TargetIterationTimeDefault replaces unusable measured iteration
	// intervals (seconds).
	TargetIterationTimeDefault = 0.0333
	// TargetIterationTimeMax is the largest credible interval between two
	// target callbacks (seconds).
	TargetIterationTimeMax = 1.0
)

// Default sampling box for the pose and target dimensions when Init runs
// without custom bounds, matching the field the landmark maps describe.
const (
	defaultFieldMinX = 0.0
	defaultFieldMaxX = 6.0
	defaultFieldMinY = -4.5
	defaultFieldMaxY = 4.5
)

// defaultAlphaPerRobot is repeated per robot when InitData carries no alpha.
var defaultAlphaPerRobot = [4]float64{0.015, 0.1, 0.5, 0.001}

// RobotState is the posterior belief for one robot: weighted-mean pose and
// the confidence scalar from the latest landmark fusion.
type RobotState struct {
	Pose [3]float64
	Conf float64
}

// TargetState is the posterior belief for the target.
type TargetState struct {
	Pos [3]float64
	Vel [3]float64
}

// IterationView is the read-only snapshot handed to the publication sink
// after each completed iteration.
type IterationView struct {
	Iteration uint64
	WeightSum float64
	Robots    []RobotState
	Target    TargetState
	// Spread holds, per robot, the standard deviation of the x, y and
	// theta subparticle sets after resampling.
	Spread [][3]float64
	// Particles is a copy of the full matrix, subset-major.
	Particles [][]float64
}

// IterationSink receives the per-iteration snapshot. The default sink
// discards it; the binary wires sinks that persist and serve the estimates.
type IterationSink func(*IterationView)

// InitData carries everything needed to construct a Filter.
type InitData struct {
	// MainRobotID is 1-based; that robot's target-done notification drives
	// the filter iteration.
	MainRobotID  int
	NumParticles int
	NumRobots    int
	NumLandmarks int
	// RobotsUsed marks which of the NumRobots slots actually play.
	RobotsUsed []bool
	// LandmarksMap is the fixed, known landmark set; read-only after New.
	LandmarksMap []Landmark
	// Alpha holds 4 odometry-noise coefficients per robot; empty selects
	// the defaults.
	Alpha []float64
	Seed  int64
	Clock timeutil.Clock
	Sink  IterationSink
	// VelocityEstimator overrides the least-squares slope fit used for the
	// target velocity; nil keeps the default.
	VelocityEstimator SlopeEstimator
}

// Params is a partial update to the runtime-tunable knobs. Nil fields keep
// their current value; changes apply atomically at the next iteration
// boundary.
type Params struct {
	Alpha                      []float64
	ResampleStartAt            *float64
	TargetIterationTimeDefault *float64
	Publish                    *bool
}

type knobs struct {
	alpha           []float64
	resampleStartAt float64
	targetIterTime  float64
	publish         bool
}

// Filter is the particle filter engine. All exported methods are safe for
// concurrent use; a single coarse lock serializes every operation.
type Filter struct {
	mu sync.Mutex

	mainRobot  int // 0-based
	nParticles int
	nRobots    int
	nLandmarks int
	nSubsets   int // total columns including the weight column
	oTarget    int // first target column
	oWeight    int // weight column

	robotsUsed []bool
	landmarks  []Landmark

	particles matrix
	// weightComponents keeps each robot's landmark-likelihood factor from
	// the current iteration; the robot's confidence is derived from it. It
	// is not used to renormalize the next iteration's prior.
	weightComponents matrix

	smp   *sampler
	clock timeutil.Clock
	sink  IterationSink

	cur     knobs
	pending *Params

	initialized bool
	started     []bool

	buf    *obsBuffers
	robots []RobotState
	target TargetState
	vel    *velocityEstimator

	targetDeltaT   float64
	lastTargetTime time.Time
	haveTargetTime bool

	iteration uint64

	// Estimator inputs snapshotted by the resampler: the pre-gather matrix
	// whose weight column still holds the fused, pre-reset weights.
	prevParticles matrix
	prevWeightSum float64
}

// New validates data and constructs an uninitialized Filter. The particle
// matrix dimensions are fixed for the life of the filter.
func New(data InitData) (*Filter, error) {
	if data.NumParticles <= 0 {
		return nil, fmt.Errorf("pfe: NumParticles must be positive, got %d", data.NumParticles)
	}
	if data.NumRobots <= 0 {
		return nil, fmt.Errorf("pfe: NumRobots must be positive, got %d", data.NumRobots)
	}
	if len(data.RobotsUsed) != data.NumRobots {
		return nil, fmt.Errorf("pfe: RobotsUsed has %d entries, want %d", len(data.RobotsUsed), data.NumRobots)
	}
	if data.MainRobotID < 1 || data.MainRobotID > data.NumRobots {
		return nil, fmt.Errorf("pfe: MainRobotID %d out of range [1, %d]", data.MainRobotID, data.NumRobots)
	}
	if !data.RobotsUsed[data.MainRobotID-1] {
		return nil, fmt.Errorf("pfe: main robot %d is not marked used", data.MainRobotID)
	}
	if len(data.LandmarksMap) != data.NumLandmarks {
		return nil, fmt.Errorf("pfe: LandmarksMap has %d entries, want %d", len(data.LandmarksMap), data.NumLandmarks)
	}

	alpha := data.Alpha
	if len(alpha) == 0 {
		alpha = make([]float64, 0, 4*data.NumRobots)
		for r := 0; r < data.NumRobots; r++ {
			alpha = append(alpha, defaultAlphaPerRobot[:]...)
		}
	}
	if len(alpha) != 4*data.NumRobots {
		return nil, fmt.Errorf("pfe: alpha has %d entries, want %d", len(alpha), 4*data.NumRobots)
	}

	clock := data.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	nSubsets := data.NumRobots*statesPerRobot + statesPerTarget + 1

	f := &Filter{
		mainRobot:  data.MainRobotID - 1,
		nParticles: data.NumParticles,
		nRobots:    data.NumRobots,
		nLandmarks: data.NumLandmarks,
		nSubsets:   nSubsets,
		oTarget:    data.NumRobots * statesPerRobot,
		oWeight:    nSubsets - 1,

		robotsUsed: append([]bool(nil), data.RobotsUsed...),
		landmarks:  append([]Landmark(nil), data.LandmarksMap...),

		particles:        newMatrix(nSubsets, data.NumParticles),
		weightComponents: newMatrix(data.NumRobots, data.NumParticles),

		smp:   newSampler(data.Seed),
		clock: clock,
		sink:  data.Sink,

		cur: knobs{
			alpha:           append([]float64(nil), alpha...),
			resampleStartAt: DefaultResampleStartAt,
			targetIterTime:  TargetIterationTimeDefault,
			publish:         true,
		},

		started: make([]bool, data.NumRobots),
		buf:     newObsBuffers(data.NumRobots, data.NumLandmarks),
		robots:  make([]RobotState, data.NumRobots),
		vel:     newVelocityEstimator(MaxEstimatorStackSize, data.VelocityEstimator),

		targetDeltaT: TargetIterationTimeDefault,
	}
	return f, nil
}

// Size returns the number of subparticle sets (state dimensions plus the
// weight column), not the particle count.
func (f *Filter) Size() int { return f.nSubsets }

// NumParticles returns the particle count P.
func (f *Filter) NumParticles() int { return f.nParticles }

// IsInitialized reports whether an Init has completed.
func (f *Filter) IsInitialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

// Iteration returns the number of completed filter iterations.
func (f *Filter) Iteration() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.iteration
}

// Column returns a copy of subparticle set index.
func (f *Filter) Column(index int) []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.particles[index]...)
}

// ResetWeights assigns v to every particle weight.
func (f *Filter) ResetWeights(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.particles.assignCol(f.oWeight, v)
}

// Assign sets every element of every subparticle set to v.
func (f *Filter) Assign(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.particles.assign(v)
}

// AssignSubset sets every element of one subparticle set to v.
func (f *Filter) AssignSubset(v float64, subset int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.particles.assignCol(subset, v)
}

// Init initializes the particle set over the default field box: each robot
// pose and the target position are drawn uniformly over the field, headings
// over (-pi, pi], and weights set to 1/P. The first successful Init is final.
func (f *Filter) Init() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initDefaultLocked()
}

func (f *Filter) initDefaultLocked() {
	if f.initialized {
		return
	}
	box := make([]float64, 0, 2*(f.nSubsets-1))
	for r := 0; r < f.nRobots+1; r++ { // robots plus the target block
		box = append(box,
			defaultFieldMinX, defaultFieldMaxX,
			defaultFieldMinY, defaultFieldMaxY,
			-math.Pi, math.Pi,
		)
	}
	pos := make([]float64, statesPerRobot*f.nRobots)
	if err := f.initCustomLocked(box, pos); err != nil {
		monitoring.Logf("pfe: default init failed: %v", err)
	}
}

// InitCustom initializes the particle set with per-dimension uniform bounds
// and per-robot initial pose estimates. randBox holds [lo, hi] pairs for
// every state dimension (3 per robot plus 3 for the target); posInit holds
// one x, y, theta triple per robot used as the initial posterior estimate.
func (f *Filter) InitCustom(randBox, posInit []float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCustomLocked(randBox, posInit)
}

func (f *Filter) initCustomLocked(randBox, posInit []float64) error {
	if f.initialized {
		return nil
	}
	wantBox := 2 * (f.nSubsets - 1)
	if len(randBox) != wantBox {
		return fmt.Errorf("pfe: randBox has %d values, want %d", len(randBox), wantBox)
	}
	if len(posInit) != statesPerRobot*f.nRobots {
		return fmt.Errorf("pfe: posInit has %d values, want %d", len(posInit), statesPerRobot*f.nRobots)
	}

	for dim := 0; dim < f.nSubsets-1; dim++ {
		lo, hi := randBox[2*dim], randBox[2*dim+1]
		if hi < lo {
			return fmt.Errorf("pfe: randBox dimension %d has hi %v < lo %v", dim, hi, lo)
		}
		col := f.particles[dim]
		for p := range col {
			col[p] = f.smp.Uniform(lo, hi)
		}
	}
	f.particles.assignCol(f.oWeight, 1.0/float64(f.nParticles))

	for r := 0; r < f.nRobots; r++ {
		copy(f.robots[r].Pose[:], posInit[statesPerRobot*r:statesPerRobot*(r+1)])
	}

	f.initialized = true
	monitoring.Logf("pfe: filter initialized with %d particles over %d dimensions", f.nParticles, f.nSubsets-1)
	return nil
}

// Predict propagates robot's pose block by the odometry increment, applied
// as a body-frame rigid composition to every particle. Before initialization
// the update is suppressed; the call marks the robot as started and opens
// the init gate once every used robot has reported odometry.
func (f *Filter) Predict(robot int, odom Odometry, stamp time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.usableRobot(robot) {
		return
	}
	f.started[robot] = true
	if !f.initialized {
		f.tryInitializeLocked()
		return
	}

	delta := Pose{X: odom.X, Y: odom.Y, Theta: odom.Theta}
	for p := 0; p < f.nParticles; p++ {
		f.particles.setPoseAt(robot, p, f.particles.poseAt(robot, p).Compose(delta))
	}
}

// tryInitializeLocked opens the gate once every used robot has produced at
// least one odometry message, then runs the default Init exactly once.
func (f *Filter) tryInitializeLocked() {
	for r := 0; r < f.nRobots; r++ {
		if f.robotsUsed[r] && !f.started[r] {
			return
		}
	}
	monitoring.Logf("pfe: all %d used robots reporting, initializing particle set", f.usedCount())
	f.initDefaultLocked()
}

func (f *Filter) usedCount() int {
	n := 0
	for _, u := range f.robotsUsed {
		if u {
			n++
		}
	}
	return n
}

func (f *Filter) usableRobot(robot int) bool {
	return robot >= 0 && robot < f.nRobots && f.robotsUsed[robot]
}

// SaveLandmarkObservation stores robot's latest observation of one landmark.
// Writes are last-wins; the slot is read when the iteration barrier fires.
func (f *Filter) SaveLandmarkObservation(robot, landmark int, obs LandmarkObservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.usableRobot(robot) || landmark < 0 || landmark >= f.nLandmarks {
		return
	}
	f.buf.landmarks[robot][landmark] = obs
}

// SetLandmarkFound updates only the found flag of a landmark slot.
func (f *Filter) SetLandmarkFound(robot, landmark int, found bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.usableRobot(robot) || landmark < 0 || landmark >= f.nLandmarks {
		return
	}
	f.buf.landmarks[robot][landmark].Found = found
}

// MeasurementsDoneLandmarks records that robot finished its landmark batch.
func (f *Filter) MeasurementsDoneLandmarks(robot int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.usableRobot(robot) {
		return
	}
	f.buf.landmarksDone[robot] = true
}

// SaveTargetObservation stores robot's latest target observation.
func (f *Filter) SaveTargetObservation(robot int, obs TargetObservation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.usableRobot(robot) {
		return
	}
	f.buf.target[robot] = obs
}

// SetTargetFound updates only the found flag of a robot's target slot.
func (f *Filter) SetTargetFound(robot int, found bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.usableRobot(robot) {
		return
	}
	f.buf.target[robot].Found = found
}

// MeasurementsDoneTarget records that robot finished its target measurement.
// When robot is the main robot this is the iteration barrier: it runs the
// full predict-fuse-resample-estimate sequence under the filter lock.
func (f *Filter) MeasurementsDoneTarget(robot int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.usableRobot(robot) {
		return
	}
	f.buf.targetDone[robot] = true
	if robot != f.mainRobot {
		return
	}
	if !f.initialized {
		return
	}
	f.runIterationLocked()
}

// UpdateTargetIterationTime refreshes the measured interval between the main
// robot's target callbacks. Intervals outside (0, TargetIterationTimeMax]
// or non-finite are replaced by the configured default.
func (f *Filter) UpdateTargetIterationTime(stamp time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.haveTargetTime {
		diff := stamp.Sub(f.lastTargetTime).Seconds()
		if math.IsNaN(diff) || math.IsInf(diff, 0) || diff <= 0 || diff > TargetIterationTimeMax {
			diff = f.cur.targetIterTime
		}
		f.targetDeltaT = diff
	}
	f.lastTargetTime = stamp
	f.haveTargetTime = true
}

// SetParams queues a partial knob update; it takes effect atomically at the
// next iteration boundary.
func (f *Filter) SetParams(p Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p.Alpha != nil && len(p.Alpha) != 4*f.nRobots {
		return fmt.Errorf("pfe: alpha has %d entries, want %d", len(p.Alpha), 4*f.nRobots)
	}
	if p.ResampleStartAt != nil && (*p.ResampleStartAt < 0 || *p.ResampleStartAt > 1) {
		return fmt.Errorf("pfe: resample_start_at %v outside [0, 1]", *p.ResampleStartAt)
	}
	if p.TargetIterationTimeDefault != nil && *p.TargetIterationTimeDefault <= 0 {
		return fmt.Errorf("pfe: target_iteration_time_default must be positive, got %v", *p.TargetIterationTimeDefault)
	}

	if f.pending == nil {
		f.pending = &Params{}
	}
	if p.Alpha != nil {
		f.pending.Alpha = append([]float64(nil), p.Alpha...)
	}
	if p.ResampleStartAt != nil {
		v := *p.ResampleStartAt
		f.pending.ResampleStartAt = &v
	}
	if p.TargetIterationTimeDefault != nil {
		v := *p.TargetIterationTimeDefault
		f.pending.TargetIterationTimeDefault = &v
	}
	if p.Publish != nil {
		v := *p.Publish
		f.pending.Publish = &v
	}
	return nil
}

// CurrentParams returns the knob values in effect for the next iteration
// start, with queued updates already folded in.
func (f *Filter) CurrentParams() Params {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := f.cur
	alpha := append([]float64(nil), k.alpha...)
	if f.pending != nil {
		if f.pending.Alpha != nil {
			alpha = append([]float64(nil), f.pending.Alpha...)
		}
		if f.pending.ResampleStartAt != nil {
			k.resampleStartAt = *f.pending.ResampleStartAt
		}
		if f.pending.TargetIterationTimeDefault != nil {
			k.targetIterTime = *f.pending.TargetIterationTimeDefault
		}
		if f.pending.Publish != nil {
			k.publish = *f.pending.Publish
		}
	}
	rs, ti, pub := k.resampleStartAt, k.targetIterTime, k.publish
	return Params{
		Alpha:                      alpha,
		ResampleStartAt:            &rs,
		TargetIterationTimeDefault: &ti,
		Publish:                    &pub,
	}
}

func (f *Filter) applyPendingLocked() {
	if f.pending == nil {
		return
	}
	if f.pending.Alpha != nil {
		f.cur.alpha = f.pending.Alpha
	}
	if f.pending.ResampleStartAt != nil {
		f.cur.resampleStartAt = *f.pending.ResampleStartAt
	}
	if f.pending.TargetIterationTimeDefault != nil {
		f.cur.targetIterTime = *f.pending.TargetIterationTimeDefault
	}
	if f.pending.Publish != nil {
		f.cur.publish = *f.pending.Publish
	}
	f.pending = nil
}

// runIterationLocked is the per-iteration sequence driven by the main
// robot's target-done notification.
func (f *Filter) runIterationLocked() {
	f.applyPendingLocked()

	f.predictTargetLocked()
	f.fuseRobotsLocked()
	f.fuseTargetLocked()
	f.resampleLocked()
	f.estimateLocked()

	f.iteration++

	if f.cur.publish && f.sink != nil {
		f.sink(f.viewLocked())
	}

	for r := range f.buf.landmarksDone {
		f.buf.landmarksDone[r] = false
		f.buf.targetDone[r] = false
	}
}

// State returns the current posterior estimates.
func (f *Filter) State() ([]RobotState, TargetState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RobotState(nil), f.robots...), f.target
}

// Snapshot returns a full iteration view outside the iteration cycle, for
// the HTTP surface.
func (f *Filter) Snapshot() *IterationView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked()
}

func (f *Filter) viewLocked() *IterationView {
	spread := make([][3]float64, f.nRobots)
	for r := 0; r < f.nRobots; r++ {
		if !f.robotsUsed[r] {
			continue
		}
		for k := 0; k < statesPerRobot; k++ {
			spread[r][k] = stdDev(f.particles[robotCol(r, k)])
		}
	}
	return &IterationView{
		Iteration: f.iteration,
		WeightSum: f.prevWeightSum,
		Robots:    append([]RobotState(nil), f.robots...),
		Target:    f.target,
		Spread:    spread,
		Particles: f.particles.clone(),
	}
}
