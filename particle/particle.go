// Package particle defines the interface implemented by particle filters.
package particle

import (
	filter "github.com/milosgajdos/go-vibid"
	"gonum.org/v1/gonum/mat"
)

// Particle is Particle Filter.
// Unlike Kalman filters it carries its own state representation: a weighted
// cloud of particles, so its recursion does not take the state vector as input.
type Particle interface {
	// Predict propagates particles to the next step given input u
	Predict(u mat.Vector) (filter.Estimate, error)
	// Update reweights particles using measurement z given input u
	Update(u, z mat.Vector) (filter.Estimate, error)
	// Estimate returns weighted mean and covariance of the particles
	Estimate() (filter.Estimate, error)
	// Resample resamples the particles according to the filter resampling policy.
	// It reports whether the particles were resampled.
	Resample() (bool, error)
	// Particles returns filter particles stored in matrix columns
	Particles() mat.Matrix
	// Weights returns particle weights
	Weights() mat.Vector
}
