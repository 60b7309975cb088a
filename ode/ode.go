// Package ode implements fixed-step integration of continuous-time models
// using the classical fourth order Runge-Kutta method:
// https://en.wikipedia.org/wiki/Runge–Kutta_methods
package ode

import (
	"fmt"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/milosgajdos/go-vibid/matrix"
	"gonum.org/v1/gonum/mat"
)

// Func returns state derivative dx/dt at state x given input u
type Func func(x, u mat.Vector) (mat.Vector, error)

// RK4 advances state x by a single step of size h with input u held constant over the step.
// RK4 does not modify x. If any of the stages or the result contain NaN or Inf the
// (non-finite) result is returned together with error which wraps filter.ErrNonFinite.
// It returns error which wraps filter.ErrInvalidConfig if h is not positive.
func RK4(f Func, x, u mat.Vector, h float64) (*mat.VecDense, error) {
	if !(h > 0) {
		return nil, fmt.Errorf("%w: invalid step size: %v", filter.ErrInvalidConfig, h)
	}

	n := x.Len()
	tmp := mat.NewVecDense(n, nil)

	k1, err := stage(f, x, u, n, 1)
	if err != nil {
		return nil, err
	}

	tmp.AddScaledVec(x, h/2, k1)
	k2, err := stage(f, tmp, u, n, 2)
	if err != nil {
		return nil, err
	}

	tmp.AddScaledVec(x, h/2, k2)
	k3, err := stage(f, tmp, u, n, 3)
	if err != nil {
		return nil, err
	}

	tmp.AddScaledVec(x, h, k3)
	k4, err := stage(f, tmp, u, n, 4)
	if err != nil {
		return nil, err
	}

	// k1 + 2k2 + 2k3 + k4
	sum := mat.NewVecDense(n, nil)
	sum.AddVec(k1, k4)
	sum.AddScaledVec(sum, 2, k2)
	sum.AddScaledVec(sum, 2, k3)

	out := mat.NewVecDense(n, nil)
	out.AddScaledVec(x, h/6, sum)

	if !matrix.IsFinite(out) || !matrix.IsFinite(sum) {
		return out, fmt.Errorf("%w: rk4 step produced %v", filter.ErrNonFinite, mat.Formatted(out.T()))
	}

	return out, nil
}

func stage(f Func, x, u mat.Vector, n, k int) (mat.Vector, error) {
	dx, err := f(x, u)
	if err != nil {
		return nil, fmt.Errorf("stage %d: %w", k, err)
	}

	if dx.Len() != n {
		return nil, fmt.Errorf("%w: stage %d derivative dimension %d, expected %d",
			filter.ErrInvalidConfig, k, dx.Len(), n)
	}

	return dx, nil
}

// Discrete is a discrete-time model which propagates continuous-time model
// over a fixed step using RK4. It implements filter.Model.
type Discrete struct {
	model filter.ContinuousModel
	h     float64
}

// Discretize wraps continuous-time model m into discrete-time model with step h.
// It returns error which wraps filter.ErrInvalidConfig if m is nil or h is not positive.
func Discretize(m filter.ContinuousModel, h float64) (*Discrete, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: missing model", filter.ErrInvalidConfig)
	}

	if !(h > 0) {
		return nil, fmt.Errorf("%w: invalid step size: %v", filter.ErrInvalidConfig, h)
	}

	return &Discrete{model: m, h: h}, nil
}

// Propagate propagates x to the next step given input u.
func (d *Discrete) Propagate(x, u mat.Vector) (mat.Vector, error) {
	return RK4(d.model.Derivative, x, u, d.h)
}

// Observe returns model output given state x and input u.
func (d *Discrete) Observe(x, u mat.Vector) (mat.Vector, error) {
	return d.model.Observe(x, u)
}

// SystemDims returns state, input and output dimensions of the model.
func (d *Discrete) SystemDims() (nx, nu, ny int) {
	return d.model.SystemDims()
}

// Step returns integration step size.
func (d *Discrete) Step() float64 {
	return d.h
}
