// Package matrix provides covariance matrix helpers used by the filters.
package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultTol is the default relative eigenvalue floor used by NearestPD.
const DefaultTol = 1e-12

// Symmetrize stores (a + a')/2 in dst.
// It panics if a is not square or dst does not match a in size.
func Symmetrize(dst *mat.SymDense, a mat.Matrix) {
	r, c := a.Dims()
	if r != c {
		panic(mat.ErrShape)
	}
	if dst.SymmetricDim() != r {
		panic(mat.ErrShape)
	}

	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			dst.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
}

// NearestPD returns a positive definite copy of a whose eigenvalues are floored to
// tol times the largest eigenvalue of a. If a has no positive eigenvalue tol is used
// as an absolute floor. The returned bool is true if any eigenvalue had to be floored.
// It returns error if a fails to be decomposed.
func NearestPD(a mat.Symmetric, tol float64) (*mat.SymDense, bool, error) {
	n := a.SymmetricDim()

	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		return nil, false, fmt.Errorf("eigen decomposition failed")
	}

	// eigenvalues are returned in ascending order
	vals := eig.Values(nil)
	floor := tol * vals[n-1]
	if floor <= 0 {
		floor = tol
	}

	repaired := false
	for i := range vals {
		if vals[i] < floor || math.IsNaN(vals[i]) {
			vals[i] = floor
			repaired = true
		}
	}

	out := mat.NewSymDense(n, nil)
	if !repaired {
		out.CopySym(a)
		return out, false, nil
	}

	v := new(mat.Dense)
	eig.VectorsTo(v)

	vd := new(mat.Dense)
	vd.Mul(v, mat.NewDiagDense(n, vals))
	vdv := new(mat.Dense)
	vdv.Mul(vd, v.T())
	Symmetrize(out, vdv)

	return out, true, nil
}

// IsPSD reports whether a is positive semidefinite within tol, relative
// to the magnitude of its largest eigenvalue.
func IsPSD(a mat.Symmetric, tol float64) bool {
	n := a.SymmetricDim()
	if n == 0 {
		return true
	}

	if !IsFinite(a) {
		return false
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(a, false); !ok {
		return false
	}
	vals := eig.Values(nil)

	return vals[0] >= -tol*math.Max(1, math.Abs(vals[n-1]))
}

// IsFinite reports whether all elements of m are finite.
func IsFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	return true
}

// SqrtSym returns matrix S such that S*S' equals a with its eigenvalues floored the same
// way as NearestPD does. S is computed from eigen decomposition of a as V*sqrt(D).
// The returned bool is true if any eigenvalue had to be floored.
// It returns error if a fails to be decomposed.
func SqrtSym(a mat.Symmetric, tol float64) (*mat.Dense, bool, error) {
	n := a.SymmetricDim()

	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		return nil, false, fmt.Errorf("eigen decomposition failed")
	}

	vals := eig.Values(nil)
	floor := tol * vals[n-1]
	if floor <= 0 {
		floor = tol
	}

	repaired := false
	for i := range vals {
		if vals[i] < floor || math.IsNaN(vals[i]) {
			vals[i] = floor
			repaired = true
		}
		vals[i] = math.Sqrt(vals[i])
	}

	s := new(mat.Dense)
	eig.VectorsTo(s)
	s.Mul(s, mat.NewDiagDense(n, vals))

	return s, repaired, nil
}
