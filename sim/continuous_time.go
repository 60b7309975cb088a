package sim

import (
	"fmt"

	"github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Continuous is a basic model of a linear, continuous-time, dynamical system.
// It implements filter.ContinuousModel.
type Continuous struct {
	System
}

// NewContinuous creates a linear continuous-time model based on the control theory equations.
//
//	dx/dt = A*x + B*u
//	y = C*x + D*u
func NewContinuous(A, B, C, D *mat.Dense) (*Continuous, error) {
	sys, err := newSystem(A, B, C, D)
	if err != nil {
		return nil, err
	}

	return &Continuous{System: sys}, nil
}

// ToDiscrete creates a discrete-time model from a continuous time model
// using Ts as the sampling time and zero-order hold on the input.
func (ct *Continuous) ToDiscrete(Ts float64) (*Discrete, error) {
	if !(Ts > 0) {
		return nil, fmt.Errorf("invalid sampling time: %v", Ts)
	}

	nx, _, _ := ct.SystemDims()
	dsys, err := newSystem(ct.A, ct.B, ct.C, ct.D)
	if err != nil {
		return nil, err
	}

	// continuous -> discrete time conversion
	// See Discrete-Time Control Systems by Katsuhiko Ogata
	// Eq. (5-73) p. 315  Second Edition (Spanish)
	dsys.A.Scale(Ts, dsys.A)
	dsys.A.Exp(dsys.A)

	if ct.B == nil {
		return &Discrete{dsys}, nil
	}

	// shorthand name for discrete B matrix
	Bd := dsys.B
	Aaux := mat.NewDense(nx, nx, nil)
	// Given A is not singular, the following is valid
	// Bd(Ts) = (exp(A*Ts) - I)*inv(A)*B  Eq. (5-74 bis) Ogata
	eye, err := matrix.NewDenseValIdentity(nx, 1.0)
	if err != nil {
		return nil, err
	}

	Aaux.Sub(dsys.A, eye)
	Ainv := mat.NewDense(nx, nx, nil)
	if err := Ainv.Inverse(ct.A); err == nil {
		Aaux.Mul(Aaux, Ainv)
		Bd.Mul(Aaux, ct.B)
		return &Discrete{dsys}, nil
	}

	// if A matrix is singular we integrate exp(A*t) from 0 to Ts
	// using the trapezoidal rule.
	// Bd = integrate( exp(A*t)dt, 0, Ts ) * B   Eq. (5-74) Ogata
	const n = 1000
	Asum := mat.NewDense(nx, nx, nil)
	dt := Ts / float64(n)
	for i := 0; i <= n; i++ {
		Aaux.Scale(dt*float64(i), ct.A)
		Aaux.Exp(Aaux)
		w := dt
		if i == 0 || i == n {
			w = dt / 2
		}
		Aaux.Scale(w, Aaux)
		Asum.Add(Asum, Aaux)
	}
	Bd.Mul(Asum, ct.B)

	return &Discrete{dsys}, nil
}

// Derivative returns the state derivative dx/dt = A*x + B*u.
func (ct *Continuous) Derivative(x, u mat.Vector) (mat.Vector, error) {
	return ct.affine(ct.A, ct.B, x, u)
}
