package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// System defines a linear model of a plant using
// traditional matrices of modern control theory.
//
// It contains the System (A), input (B), Observation/Output (C)
// and Feedthrough (D) matrices.
type System struct {
	// System/State matrix A
	A *mat.Dense
	// Control/Input Matrix B
	B *mat.Dense
	// Observation/Output Matrix C
	C *mat.Dense
	// Feedthrough matrix D
	D *mat.Dense
}

func newSystem(A, B, C, D *mat.Dense) (System, error) {
	if A == nil {
		return System{}, fmt.Errorf("system matrix must be defined for a model")
	}

	nx, cx := A.Dims()
	if nx != cx {
		return System{}, fmt.Errorf("invalid system matrix dimensions: [%d x %d]", nx, cx)
	}

	if C == nil {
		return System{}, fmt.Errorf("output matrix must be defined for a model")
	}

	if _, c := C.Dims(); c != nx {
		return System{}, fmt.Errorf("invalid output matrix columns: %d", c)
	}

	sys := System{A: mat.DenseCopyOf(A), C: mat.DenseCopyOf(C)}
	if B != nil {
		if r, _ := B.Dims(); r != nx {
			return System{}, fmt.Errorf("invalid control matrix rows: %d", r)
		}
		sys.B = mat.DenseCopyOf(B)
	}
	if D != nil {
		ny, _ := C.Dims()
		if r, _ := D.Dims(); r != ny {
			return System{}, fmt.Errorf("invalid feedthrough matrix rows: %d", r)
		}
		sys.D = mat.DenseCopyOf(D)
	}

	return sys, nil
}

// SystemDims returns internal state length (nx), input vector length (nu)
// and external/observable/output state length (ny).
func (s System) SystemDims() (nx, nu, ny int) {
	nx, _ = s.A.Dims()
	if s.B != nil {
		_, nu = s.B.Dims()
	}
	ny, _ = s.C.Dims()

	return nx, nu, ny
}

// SystemMatrix returns state propagation matrix `A`.
func (s System) SystemMatrix() (A mat.Matrix) { return s.A }

// ControlMatrix returns state propagation control matrix `B`
func (s System) ControlMatrix() (B mat.Matrix) {
	if s.B == nil {
		return nil
	}
	return s.B
}

// OutputMatrix returns observation matrix `C`
func (s System) OutputMatrix() (C mat.Matrix) { return s.C }

// FeedForwardMatrix returns observation control matrix `D`
func (s System) FeedForwardMatrix() (D mat.Matrix) {
	if s.D == nil {
		return nil
	}
	return s.D
}

// Observe returns external/observable state given internal state x and input u.
func (s System) Observe(x, u mat.Vector) (mat.Vector, error) {
	if err := s.check(x, u); err != nil {
		return nil, err
	}

	ny, _ := s.C.Dims()
	out := mat.NewVecDense(ny, nil)
	out.MulVec(s.C, x)

	if u != nil && s.D != nil {
		outU := mat.NewVecDense(ny, nil)
		outU.MulVec(s.D, u)
		out.AddVec(out, outU)
	}

	return out, nil
}

// affine returns M*x + N*u; N*u is skipped if either N or u is nil
func (s System) affine(M, N *mat.Dense, x, u mat.Vector) (*mat.VecDense, error) {
	if err := s.check(x, u); err != nil {
		return nil, err
	}

	nx, _ := M.Dims()
	out := mat.NewVecDense(nx, nil)
	out.MulVec(M, x)

	if u != nil && N != nil {
		outU := mat.NewVecDense(nx, nil)
		outU.MulVec(N, u)
		out.AddVec(out, outU)
	}

	return out, nil
}

func (s System) check(x, u mat.Vector) error {
	nx, nu, _ := s.SystemDims()
	if u != nil && u.Len() != nu {
		return fmt.Errorf("invalid input vector")
	}

	if x.Len() != nx {
		return fmt.Errorf("invalid state vector")
	}

	return nil
}
