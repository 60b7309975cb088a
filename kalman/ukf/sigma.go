package ukf

import (
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/milosgajdos/go-vibid/matrix"
	"gonum.org/v1/gonum/mat"
)

// Weights are unscented transform weights of 2n+1 sigma points
type Weights struct {
	// N is state dimension
	N int
	// Lambda is the unitless spread parameter alpha^2*(n+kappa)-n
	Lambda float64
	// Wm0 is mean sigma point weight
	Wm0 float64
	// Wc0 is mean sigma point covariance weight
	Wc0 float64
	// W is weight of the rest of sigma points and covariances
	W float64
}

// SigmaPoints are sigma points generated around a mean
type SigmaPoints struct {
	// X stores sigma point vectors in columns; the mean is in column 0
	X *mat.Dense
	// Repaired is set if the covariance had to be floored to compute its square root
	Repaired bool
}

// NewWeights computes unscented transform weights for state dimension n.
// It returns error which wraps filter.ErrInvalidConfig if n is not positive, Alpha is
// not positive or n+lambda is not positive.
func NewWeights(n int, c *Config) (*Weights, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: invalid state dimension: %d", filter.ErrInvalidConfig, n)
	}

	if !(c.Alpha > 0) || math.IsInf(c.Alpha, 0) || math.IsNaN(c.Beta) || math.IsNaN(c.Kappa) {
		return nil, fmt.Errorf("%w: invalid config supplied: %+v", filter.ErrInvalidConfig, *c)
	}

	nf := float64(n)
	lambda := c.Alpha*c.Alpha*(nf+c.Kappa) - nf
	if !(nf+lambda > 0) || math.IsInf(lambda, 0) {
		return nil, fmt.Errorf("%w: invalid sigma point spread n+lambda: %v", filter.ErrInvalidConfig, nf+lambda)
	}

	wm0 := lambda / (nf + lambda)

	return &Weights{
		N:      n,
		Lambda: lambda,
		Wm0:    wm0,
		Wc0:    wm0 + (1 - c.Alpha*c.Alpha + c.Beta),
		W:      1 / (2 * (nf + lambda)),
	}, nil
}

// SigmaPoints generates 2n+1 sigma points around mean m using covariance p.
// The square root of (n+lambda)*p is computed using Cholesky factorization; if that
// fails the covariance eigenvalues are floored and eigen square root is used instead.
// It returns error if dimensions do not match or m or p contain NaN or Inf values.
func (w *Weights) SigmaPoints(m mat.Vector, p mat.Symmetric) (*SigmaPoints, error) {
	n := w.N
	if m.Len() != n || p.SymmetricDim() != n {
		return nil, fmt.Errorf("%w: invalid dimensions. Mean: %d, Cov: %d", filter.ErrInvalidConfig, m.Len(), p.SymmetricDim())
	}

	if !matrix.IsFinite(m) || !matrix.IsFinite(p) {
		return nil, fmt.Errorf("%w: sigma point mean or covariance", filter.ErrNonFinite)
	}

	scaled := mat.NewSymDense(n, nil)
	scaled.ScaleSym(float64(n)+w.Lambda, p)

	var (
		sqrt     mat.Matrix
		repaired bool
		chol     mat.Cholesky
	)

	if ok := chol.Factorize(scaled); ok {
		l := new(mat.TriDense)
		chol.LTo(l)
		sqrt = l
	} else {
		s, _, err := matrix.SqrtSym(scaled, matrix.DefaultTol)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", filter.ErrNumericalInstability, err)
		}
		sqrt, repaired = s, true
	}

	x := mat.NewDense(n, 2*n+1, nil)
	for j := 0; j < 2*n+1; j++ {
		for i := 0; i < n; i++ {
			x.Set(i, j, m.AtVec(i))
		}
	}

	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			s := sqrt.At(i, j)
			x.Set(i, 1+j, x.At(i, 1+j)+s)
			x.Set(i, 1+n+j, x.At(i, 1+n+j)-s)
		}
	}

	return &SigmaPoints{X: x, Repaired: repaired}, nil
}

// weight returns mean and covariance weights of i-th sigma point
func (w *Weights) weight(i int) (wm, wc float64) {
	if i == 0 {
		return w.Wm0, w.Wc0
	}

	return w.W, w.W
}

// Mean returns weighted mean of points stored in columns of x.
func (w *Weights) Mean(x mat.Matrix) *mat.VecDense {
	r, c := x.Dims()
	mean := mat.NewVecDense(r, nil)

	for j := 0; j < c; j++ {
		wm, _ := w.weight(j)
		for i := 0; i < r; i++ {
			mean.SetVec(i, mean.AtVec(i)+wm*x.At(i, j))
		}
	}

	return mean
}

// Cov returns weighted covariance of points stored in columns of x around mean.
func (w *Weights) Cov(x mat.Matrix, mean mat.Vector) *mat.SymDense {
	r, c := x.Dims()
	cov := mat.NewSymDense(r, nil)
	d := mat.NewVecDense(r, nil)

	for j := 0; j < c; j++ {
		_, wc := w.weight(j)
		for i := 0; i < r; i++ {
			d.SetVec(i, x.At(i, j)-mean.AtVec(i))
		}
		cov.SymRankOne(cov, wc, d)
	}

	return cov
}

// CrossCov returns weighted cross covariance of points stored in columns of x and y
// around their respective means xMean and yMean.
func (w *Weights) CrossCov(x mat.Matrix, xMean mat.Vector, y mat.Matrix, yMean mat.Vector) *mat.Dense {
	rx, c := x.Dims()
	ry, _ := y.Dims()

	cov := mat.NewDense(rx, ry, nil)
	dx := mat.NewVecDense(rx, nil)
	dy := mat.NewVecDense(ry, nil)

	for j := 0; j < c; j++ {
		_, wc := w.weight(j)
		for i := 0; i < rx; i++ {
			dx.SetVec(i, x.At(i, j)-xMean.AtVec(i))
		}
		for i := 0; i < ry; i++ {
			dy.SetVec(i, y.At(i, j)-yMean.AtVec(i))
		}
		cov.RankOne(cov, wc, dx, dy)
	}

	return cov
}
