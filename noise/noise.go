// Package noise implements noise models used to build filter process and measurement noise.
package noise

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SoftDiscretize scales continuous-time noise intensity qc by the integration step h
// and returns the resulting discrete-time covariance.
// It returns error if h is not positive.
func SoftDiscretize(qc mat.Symmetric, h float64) (*mat.SymDense, error) {
	if h <= 0 {
		return nil, fmt.Errorf("invalid step size: %v", h)
	}

	q := mat.NewSymDense(qc.SymmetricDim(), nil)
	q.ScaleSym(h, qc)

	return q, nil
}

// Diag returns a diagonal covariance matrix with the given variances.
func Diag(vars ...float64) *mat.SymDense {
	cov := mat.NewSymDense(len(vars), nil)
	for i, v := range vars {
		cov.SetSym(i, i, v)
	}

	return cov
}
