package noise

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Zero is noise whose every sample is zero.
// It stands in for measurement noise when simulated measurements are noise free.
type Zero struct {
	dim int
}

// NewZero creates zero noise of dimension dim.
// It returns error if dim is not positive.
func NewZero(dim int) (*Zero, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", dim)
	}

	return &Zero{dim: dim}, nil
}

// Sample returns zero vector.
func (z *Zero) Sample() mat.Vector {
	return mat.NewVecDense(z.dim, nil)
}

// Cov returns zero covariance.
func (z *Zero) Cov() mat.Symmetric {
	return mat.NewSymDense(z.dim, nil)
}

// Mean returns zero mean.
func (z *Zero) Mean() []float64 {
	return make([]float64, z.dim)
}

// String implements the Stringer interface.
func (z *Zero) String() string {
	return fmt.Sprintf("Zero{Dim=%d}", z.dim)
}
