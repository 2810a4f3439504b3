package pfe

import "math"

// Pose is a 2-D rigid pose (position plus heading) in some reference frame.
// Angles are in radians and are not wrapped; all frame operations go through
// rotation terms so any representative of the angle class behaves the same.
type Pose struct {
	X, Y, Theta float64
}

// Compose applies the incremental rigid transform delta, expressed in the
// body frame of p, and returns the resulting pose.
func (p Pose) Compose(delta Pose) Pose {
	sin, cos := math.Sincos(p.Theta)
	return Pose{
		X:     p.X + delta.X*cos - delta.Y*sin,
		Y:     p.Y + delta.X*sin + delta.Y*cos,
		Theta: p.Theta + delta.Theta,
	}
}

// Inverse returns the transform that undoes p: p.Compose(p.Inverse()) is the
// identity up to floating-point error.
func (p Pose) Inverse() Pose {
	sin, cos := math.Sincos(p.Theta)
	return Pose{
		X:     -(p.X*cos + p.Y*sin),
		Y:     -(-p.X*sin + p.Y*cos),
		Theta: -p.Theta,
	}
}

// ToWorld maps a point from the body frame of p into the world frame.
func (p Pose) ToWorld(bx, by float64) (wx, wy float64) {
	sin, cos := math.Sincos(p.Theta)
	wx = p.X + bx*cos - by*sin
	wy = p.Y + bx*sin + by*cos
	return wx, wy
}

// ToBody maps a world-frame point into the body frame of p.
func (p Pose) ToBody(wx, wy float64) (bx, by float64) {
	sin, cos := math.Sincos(p.Theta)
	dx := wx - p.X
	dy := wy - p.Y
	bx = dx*cos + dy*sin
	by = -dx*sin + dy*cos
	return bx, by
}
