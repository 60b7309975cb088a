// Package kalman defines the interface shared by Kalman filters.
package kalman

import (
	filter "github.com/milosgajdos/go-vibid"
	"gonum.org/v1/gonum/mat"
)

// Kalman is Kalman Filter
type Kalman interface {
	// filter.Filter is dynamical system filter
	filter.Filter
	// Run runs one predict-update step of the filter
	Run(x, u, z mat.Vector) (filter.Estimate, error)
	// Cov returns Kalman filter state covariance
	Cov() mat.Symmetric
	// SetCov sets Kalman filter state covariance
	SetCov(mat.Symmetric) error
	// Gain returns Kalman filter gain
	Gain() mat.Matrix
}
