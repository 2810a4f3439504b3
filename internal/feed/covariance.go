package feed

import (
	"math"

	"github.com/fieldtrack-data/fieldtrack.report/internal/pfe"
)

// minAxisCovariance floors the derived covariances so a perfect sighting
// cannot produce a singular likelihood.
const minAxisCovariance = 1e-6

// CovarianceModel derives axis-aligned observation covariances from the
// polar measurement geometry: distance noise grows with range and blob
// mismatch, bearing noise shrinks with range.
type CovarianceModel struct {
	K1 float64 // landmark distance term
	K2 float64 // landmark bearing term
	K3 float64 // target linear distance term
	K4 float64 // target quadratic distance term
	K5 float64 // target bearing term
}

// DefaultCovarianceModel returns the coefficients tuned for the standard
// field dataset.
func DefaultCovarianceModel() CovarianceModel {
	return CovarianceModel{K1: 2.0, K2: 0.5, K3: 0.2, K4: 0.05, K5: 0.1}
}

// Landmark builds a LandmarkObservation from a body-frame sighting.
func (m CovarianceModel) Landmark(s LandmarkSighting) pfe.LandmarkObservation {
	d := math.Hypot(s.X, s.Y)
	phi := math.Atan2(s.Y, s.X)

	covDD := m.K1 * math.Abs(1.0-s.AreaRatio) * d * d
	covPP := m.K2 / (d + 1)
	covXX, covYY := polarToAxisCovariance(d, phi, covDD, covPP)

	return pfe.LandmarkObservation{
		Found: true,
		X:     s.X, Y: s.Y,
		D: d, Phi: phi,
		CovDD: covDD, CovPP: covPP,
		CovXX: covXX, CovYY: covYY,
	}
}

// Target builds a TargetObservation from a body-frame sighting. A
// non-positive mismatch factor is treated as a perfect detection.
func (m CovarianceModel) Target(x, y, z, mismatch float64) pfe.TargetObservation {
	if mismatch <= 0 {
		mismatch = 1
	}
	d := math.Hypot(x, y)
	phi := math.Atan2(y, x)

	covDD := (1.0 / mismatch) * (m.K3*d + m.K4*d*d)
	covPP := m.K5 / (d + 1)
	covXX, covYY := polarToAxisCovariance(d, phi, covDD, covPP)

	return pfe.TargetObservation{
		Found: true,
		X:     x, Y: y, Z: z,
		D: d, Phi: phi,
		CovDD: covDD, CovPP: covPP,
		CovXX: covXX, CovYY: covYY,
	}
}

// polarToAxisCovariance projects polar measurement noise onto the body axes.
func polarToAxisCovariance(d, phi, covDD, covPP float64) (covXX, covYY float64) {
	sin, cos := math.Sincos(phi)
	cross := d*d*covPP + covDD*covPP
	covXX = cos*cos*covDD + sin*sin*cross
	covYY = sin*sin*covDD + cos*cos*cross
	if covXX < minAxisCovariance {
		covXX = minAxisCovariance
	}
	if covYY < minAxisCovariance {
		covYY = minAxisCovariance
	}
	return covXX, covYY
}
