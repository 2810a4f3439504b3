package pfe

// Odometry is an incremental rigid transform in the reporting robot's body
// frame, accumulated between two consecutive odometry messages.
type Odometry struct {
	X, Y, Theta float64
}

// LandmarkObservation is a robot's latest sighting of one known landmark, in
// the robot's body frame. Covariances are axis-aligned; CovDD/CovPP are the
// polar (distance/bearing) terms they were derived from.
type LandmarkObservation struct {
	Found bool
	X, Y  float64
	D     float64
	Phi   float64
	CovDD float64
	CovPP float64
	CovXX float64
	CovYY float64
}

// TargetObservation is a robot's latest sighting of the tracked target, in
// the robot's body frame. Z rides along for the height estimate but carries
// no likelihood weight.
type TargetObservation struct {
	Found   bool
	X, Y, Z float64
	D       float64
	Phi     float64
	CovDD   float64
	CovPP   float64
	CovXX   float64
	CovYY   float64
}

// Landmark is one fixed, known landmark on the field.
type Landmark struct {
	ID int
	X  float64
	Y  float64
}

// obsBuffers holds the per-robot observation slots. Writes are last-wins;
// slots carry no history and are read whenever the iteration barrier fires.
type obsBuffers struct {
	landmarks     [][]LandmarkObservation // [robot][landmark]
	target        []TargetObservation     // [robot]
	landmarksDone []bool
	targetDone    []bool
}

func newObsBuffers(nRobots, nLandmarks int) *obsBuffers {
	b := &obsBuffers{
		landmarks:     make([][]LandmarkObservation, nRobots),
		target:        make([]TargetObservation, nRobots),
		landmarksDone: make([]bool, nRobots),
		targetDone:    make([]bool, nRobots),
	}
	for r := range b.landmarks {
		b.landmarks[r] = make([]LandmarkObservation, nLandmarks)
	}
	return b
}
