package estimate

import (
	"fmt"

	filter "github.com/milosgajdos/go-vibid"
	"gonum.org/v1/gonum/mat"
)

// Trajectory is a sequence of filter estimates indexed by time step.
// Storage for all steps is allocated up front in contiguous slices.
// Vectors and matrices returned by Trajectory are views into its storage
// and must not be modified.
type Trajectory struct {
	// dim is state dimension
	dim int
	// n is number of stored steps
	n int
	// mean stores estimate means; one row per step
	mean []float64
	// cov stores full dim x dim estimate covariances; one block per step
	cov []float64
}

// NewTrajectory creates new Trajectory with capacity for steps estimates of dimension dim.
// It returns error if either steps or dim is not positive.
func NewTrajectory(steps, dim int) (*Trajectory, error) {
	if steps <= 0 || dim <= 0 {
		return nil, fmt.Errorf("invalid trajectory size: [%d x %d]", steps, dim)
	}

	return &Trajectory{
		dim:  dim,
		mean: make([]float64, steps*dim),
		cov:  make([]float64, steps*dim*dim),
	}, nil
}

// Append stores estimate est as the next step of the trajectory.
// It returns error if the trajectory is full or est dimensions are invalid.
func (t *Trajectory) Append(est filter.Estimate) error {
	if t.n == t.Cap() {
		return fmt.Errorf("trajectory full: %d steps", t.n)
	}

	val, cov := est.Val(), est.Cov()
	if val.Len() != t.dim || cov.SymmetricDim() != t.dim {
		return fmt.Errorf("invalid estimate dimensions. Val: %d, Cov: %d", val.Len(), cov.SymmetricDim())
	}

	m := t.mean[t.n*t.dim : (t.n+1)*t.dim]
	for i := range m {
		m[i] = val.AtVec(i)
	}

	c := t.cov[t.n*t.dim*t.dim : (t.n+1)*t.dim*t.dim]
	for i := 0; i < t.dim; i++ {
		for j := 0; j < t.dim; j++ {
			c[i*t.dim+j] = cov.At(i, j)
		}
	}
	t.n++

	return nil
}

// Len returns number of stored steps
func (t *Trajectory) Len() int { return t.n }

// Cap returns number of steps the trajectory was allocated for
func (t *Trajectory) Cap() int { return len(t.mean) / t.dim }

// Dim returns state dimension
func (t *Trajectory) Dim() int { return t.dim }

// Mean returns estimate mean at step k.
// It panics if k is out of range.
func (t *Trajectory) Mean(k int) mat.Vector {
	t.check(k)
	return mat.NewVecDense(t.dim, t.mean[k*t.dim:(k+1)*t.dim])
}

// Cov returns estimate covariance at step k.
// It panics if k is out of range.
func (t *Trajectory) Cov(k int) mat.Symmetric {
	t.check(k)
	return mat.NewSymDense(t.dim, t.cov[k*t.dim*t.dim:(k+1)*t.dim*t.dim])
}

// At returns a copy of the estimate at step k.
// It panics if k is out of range.
func (t *Trajectory) At(k int) filter.Estimate {
	b, _ := NewBaseWithCov(t.Mean(k), t.Cov(k))
	return b
}

// Means returns stored means as a matrix with one row per step.
// It returns nil if the trajectory is empty.
func (t *Trajectory) Means() *mat.Dense {
	if t.n == 0 {
		return nil
	}

	return mat.NewDense(t.n, t.dim, t.mean[:t.n*t.dim])
}

// Component returns a copy of the time series of i-th state component.
func (t *Trajectory) Component(i int) []float64 {
	return column(t.mean, t.n, t.dim, i)
}

// Std returns standard deviation time series of i-th state component.
func (t *Trajectory) Std(i int) []float64 {
	std := make([]float64, t.n)
	for k := range std {
		std[k] = sqrt(t.cov[k*t.dim*t.dim+i*t.dim+i])
	}

	return std
}

func (t *Trajectory) check(k int) {
	if k < 0 || k >= t.n {
		panic(fmt.Sprintf("estimate: step %d out of range [0, %d)", k, t.n))
	}
}

func column(data []float64, rows, cols, i int) []float64 {
	if i < 0 || i >= cols {
		panic(fmt.Sprintf("estimate: component %d out of range [0, %d)", i, cols))
	}

	out := make([]float64, rows)
	for k := range out {
		out[k] = data[k*cols+i]
	}

	return out
}
