package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SDOF is a single degree of freedom mass-spring-damper system
//
//	m*x'' + c*x' + k*x = u
//
// Its state is [x, v] and its output is the acceleration of the mass.
// SDOF implements filter.ContinuousModel.
type SDOF struct {
	// M is mass
	M float64
	// C is damping coefficient
	C float64
	// K is stiffness
	K float64
}

// Accel returns the acceleration of the mass at position x and velocity v given force u.
func (s SDOF) Accel(x, v, u float64) float64 {
	return (u - s.C*v - s.K*x) / s.M
}

// Derivative returns [v, a] for state [x, v] given force u.
func (s SDOF) Derivative(x, u mat.Vector) (mat.Vector, error) {
	if x.Len() != 2 {
		return nil, fmt.Errorf("invalid state vector")
	}

	v := x.AtVec(1)
	return mat.NewVecDense(2, []float64{v, s.Accel(x.AtVec(0), v, force(u))}), nil
}

// Observe returns the acceleration of the mass.
func (s SDOF) Observe(x, u mat.Vector) (mat.Vector, error) {
	if x.Len() != 2 {
		return nil, fmt.Errorf("invalid state vector")
	}

	return mat.NewVecDense(1, []float64{s.Accel(x.AtVec(0), x.AtVec(1), force(u))}), nil
}

// SystemDims returns state, input and output dimensions.
func (s SDOF) SystemDims() (nx, nu, ny int) { return 2, 1, 1 }

// AugmentedSDOF is SDOF with stiffness and damping appended to its state:
// [x, v, k, c]. The parameters have zero derivative. Mass M is known.
// AugmentedSDOF implements filter.ContinuousModel.
type AugmentedSDOF struct {
	// M is mass
	M float64
}

// Derivative returns [v, a, 0, 0] for state [x, v, k, c] given force u.
func (s AugmentedSDOF) Derivative(x, u mat.Vector) (mat.Vector, error) {
	if x.Len() != 4 {
		return nil, fmt.Errorf("invalid state vector")
	}

	v := x.AtVec(1)
	a := s.sdof(x).Accel(x.AtVec(0), v, force(u))

	return mat.NewVecDense(4, []float64{v, a, 0, 0}), nil
}

// Observe returns the acceleration of the mass.
func (s AugmentedSDOF) Observe(x, u mat.Vector) (mat.Vector, error) {
	if x.Len() != 4 {
		return nil, fmt.Errorf("invalid state vector")
	}

	a := s.sdof(x).Accel(x.AtVec(0), x.AtVec(1), force(u))

	return mat.NewVecDense(1, []float64{a}), nil
}

// SystemDims returns state, input and output dimensions.
func (s AugmentedSDOF) SystemDims() (nx, nu, ny int) { return 4, 1, 1 }

func (s AugmentedSDOF) sdof(x mat.Vector) SDOF {
	return SDOF{M: s.M, K: x.AtVec(2), C: x.AtVec(3)}
}

// TwoDOF is a two degree of freedom chain: mass M1 is attached to the ground
// by spring K1 and damper C1 and to mass M2 by spring K2 and damper C2.
// The force acts on M2. Its state is [x1, v1, x2, v2] and its output is the
// acceleration of both masses. TwoDOF implements filter.ContinuousModel.
type TwoDOF struct {
	M1, M2 float64
	K1, K2 float64
	C1, C2 float64
}

// Accel returns accelerations of both masses given positions, velocities and force u.
func (s TwoDOF) Accel(x1, v1, x2, v2, u float64) (a1, a2 float64) {
	f2 := s.K2*(x2-x1) + s.C2*(v2-v1)
	a1 = (f2 - s.K1*x1 - s.C1*v1) / s.M1
	a2 = (u - f2) / s.M2

	return a1, a2
}

// Derivative returns [v1, a1, v2, a2] for state [x1, v1, x2, v2] given force u.
func (s TwoDOF) Derivative(x, u mat.Vector) (mat.Vector, error) {
	if x.Len() != 4 {
		return nil, fmt.Errorf("invalid state vector")
	}

	v1, v2 := x.AtVec(1), x.AtVec(3)
	a1, a2 := s.Accel(x.AtVec(0), v1, x.AtVec(2), v2, force(u))

	return mat.NewVecDense(4, []float64{v1, a1, v2, a2}), nil
}

// Observe returns accelerations of both masses.
func (s TwoDOF) Observe(x, u mat.Vector) (mat.Vector, error) {
	if x.Len() != 4 {
		return nil, fmt.Errorf("invalid state vector")
	}

	a1, a2 := s.Accel(x.AtVec(0), x.AtVec(1), x.AtVec(2), x.AtVec(3), force(u))

	return mat.NewVecDense(2, []float64{a1, a2}), nil
}

// SystemDims returns state, input and output dimensions.
func (s TwoDOF) SystemDims() (nx, nu, ny int) { return 4, 1, 2 }

// AugmentedTwoDOF is TwoDOF with stiffnesses and dampings appended to its state:
// [x1, v1, x2, v2, k1, k2, c1, c2]. Masses are known.
// AugmentedTwoDOF implements filter.ContinuousModel.
type AugmentedTwoDOF struct {
	M1, M2 float64
}

// Derivative returns [v1, a1, v2, a2, 0, 0, 0, 0] for the augmented state given force u.
func (s AugmentedTwoDOF) Derivative(x, u mat.Vector) (mat.Vector, error) {
	if x.Len() != 8 {
		return nil, fmt.Errorf("invalid state vector")
	}

	v1, v2 := x.AtVec(1), x.AtVec(3)
	a1, a2 := s.twoDOF(x).Accel(x.AtVec(0), v1, x.AtVec(2), v2, force(u))

	dx := mat.NewVecDense(8, nil)
	dx.SetVec(0, v1)
	dx.SetVec(1, a1)
	dx.SetVec(2, v2)
	dx.SetVec(3, a2)

	return dx, nil
}

// Observe returns accelerations of both masses.
func (s AugmentedTwoDOF) Observe(x, u mat.Vector) (mat.Vector, error) {
	if x.Len() != 8 {
		return nil, fmt.Errorf("invalid state vector")
	}

	a1, a2 := s.twoDOF(x).Accel(x.AtVec(0), x.AtVec(1), x.AtVec(2), x.AtVec(3), force(u))

	return mat.NewVecDense(2, []float64{a1, a2}), nil
}

// SystemDims returns state, input and output dimensions.
func (s AugmentedTwoDOF) SystemDims() (nx, nu, ny int) { return 8, 1, 2 }

func (s AugmentedTwoDOF) twoDOF(x mat.Vector) TwoDOF {
	return TwoDOF{
		M1: s.M1, M2: s.M2,
		K1: x.AtVec(4), K2: x.AtVec(5),
		C1: x.AtVec(6), C2: x.AtVec(7),
	}
}

// force returns the scalar force stored in u; nil or empty u means no force
func force(u mat.Vector) float64 {
	if u == nil || u.Len() == 0 {
		return 0
	}

	return u.AtVec(0)
}
