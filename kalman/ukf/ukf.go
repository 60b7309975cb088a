// Package ukf implements the unscented transform and the Unscented (aka Sigma Point) Kalman Filter.
package ukf

import (
	"context"
	"errors"
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/milosgajdos/go-vibid/estimate"
	"github.com/milosgajdos/go-vibid/internal/parallel"
	"github.com/milosgajdos/go-vibid/matrix"
	metrics "github.com/rcrowley/go-metrics"
	"gonum.org/v1/gonum/mat"
)

const (
	// psdTol is tolerance used when validating noise and initial covariances
	psdTol = 1e-9
	// MetricSigmaRepaired counts covariances floored before sigma point generation
	MetricSigmaRepaired = "ukf.sigma.repaired"
	// MetricCovRepaired counts posterior covariances floored after update
	MetricCovRepaired = "ukf.cov.repaired"
)

// ErrSingularInnovation is returned when innovation covariance can not be factorized
var ErrSingularInnovation = fmt.Errorf("singular innovation covariance: %w", filter.ErrNumericalInstability)

// Config contains UKF configuration parameters
type Config struct {
	// Alpha is alpha parameter (0,1]
	Alpha float64
	// Beta is beta parameter (2 is optimal choice for Gaussian)
	Beta float64
	// Kappa is kappa parameter
	Kappa float64
	// Workers is the number of goroutines which propagate and observe sigma points.
	// GOMAXPROCS is used if Workers is not positive.
	Workers int
	// Metrics is registry which UKF counters are registered with.
	// New private registry is created if Metrics is nil.
	Metrics metrics.Registry
}

// DefaultConfig returns default UKF configuration
func DefaultConfig() *Config {
	return &Config{
		Alpha: 1.0,
		Beta:  2.0,
		Kappa: 0.0,
	}
}

// Diagnostics reports numerical conditions encountered in the last filter step
type Diagnostics struct {
	// SigmaRepaired is set if covariance had to be floored before generating sigma points
	SigmaRepaired bool
	// CovRepaired is set if posterior covariance was not positive definite and had to be floored
	CovRepaired bool
	// RCond is reciprocal condition number of the last innovation covariance
	RCond float64
}

// UKF is Unscented (aka Sigma Point) Kalman Filter
type UKF struct {
	// model is UKF model
	model filter.Model
	// w are unscented transform weights
	w *Weights
	// q is process noise covariance
	q *mat.SymDense
	// r is measurement noise covariance
	r *mat.SymDense
	// p is the UKF covariance matrix
	p *mat.SymDense
	// ppred is the UKF predicted covariance matrix
	ppred *mat.SymDense
	// s is innovation covariance
	s *mat.SymDense
	// inn is innovation vector
	inn *mat.VecDense
	// k is Kalman gain
	k *mat.Dense
	// workers is number of sigma point workers
	workers int
	// diag are diagnostics of the last step
	diag Diagnostics
	// sigmaRepaired counts sigma point covariance repairs
	sigmaRepaired metrics.Counter
	// covRepaired counts posterior covariance repairs
	covRepaired metrics.Counter
}

// New creates new UKF and returns it.
// It accepts the following arguments:
//   - model:  dynamical system filter model
//   - init:   initial condition of the filter
//   - q:      process noise covariance
//   - r:      measurement noise covariance
//   - c:      filter configuration; DefaultConfig is used if c is nil
//
// It returns error which wraps filter.ErrInvalidConfig if the dimensions do not match
// the model, any of the covariances is not positive semi-definite or c is invalid.
func New(model filter.Model, init filter.InitCond, q, r mat.Symmetric, c *Config) (*UKF, error) {
	if model == nil || init == nil || q == nil || r == nil {
		return nil, fmt.Errorf("%w: missing model, initial condition or noise", filter.ErrInvalidConfig)
	}

	if c == nil {
		c = DefaultConfig()
	}

	nx, _, ny := model.SystemDims()
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: invalid model dimensions: [%d x %d]", filter.ErrInvalidConfig, nx, ny)
	}

	x0, p0 := init.State(), init.Cov()
	if x0.Len() != nx || p0.SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid initial condition dimensions. State: %d, Cov: %d",
			filter.ErrInvalidConfig, x0.Len(), p0.SymmetricDim())
	}

	if q.SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid process noise dimension: %d != %d", filter.ErrInvalidConfig, q.SymmetricDim(), nx)
	}

	if r.SymmetricDim() != ny {
		return nil, fmt.Errorf("%w: invalid measurement noise dimension: %d != %d", filter.ErrInvalidConfig, r.SymmetricDim(), ny)
	}

	for name, cov := range map[string]mat.Symmetric{"initial": p0, "process noise": q, "measurement noise": r} {
		if !matrix.IsPSD(cov, psdTol) {
			return nil, fmt.Errorf("%w: %s covariance is not positive semi-definite", filter.ErrInvalidConfig, name)
		}
	}

	w, err := NewWeights(nx, c)
	if err != nil {
		return nil, err
	}

	reg := c.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	return &UKF{
		model:         model,
		w:             w,
		q:             copySym(q),
		r:             copySym(r),
		p:             copySym(p0),
		ppred:         copySym(p0),
		s:             mat.NewSymDense(ny, nil),
		inn:           mat.NewVecDense(ny, nil),
		k:             mat.NewDense(nx, ny, nil),
		workers:       c.Workers,
		sigmaRepaired: metrics.GetOrRegisterCounter(MetricSigmaRepaired, reg),
		covRepaired:   metrics.GetOrRegisterCounter(MetricCovRepaired, reg),
	}, nil
}

// Predict predicts the next state of the system given the state x and input u and returns its estimate.
// Sigma points generated around x are propagated through the model in parallel.
// It returns error if it either fails to generate or propagate sigma points to the next state.
// Filter state is not modified if error is returned.
func (k *UKF) Predict(x, u mat.Vector) (filter.Estimate, error) {
	nx, _, _ := k.model.SystemDims()
	if err := k.checkInput(x, u); err != nil {
		return nil, err
	}

	sp, err := k.w.SigmaPoints(x, k.p)
	if err != nil {
		return nil, fmt.Errorf("failed to generate sigma points: %w", err)
	}

	_, cols := sp.X.Dims()
	xPred := mat.NewDense(nx, cols, nil)

	err = parallel.For(context.Background(), cols, k.workers, func(i int) error {
		next, err := k.model.Propagate(sp.X.ColView(i), u)
		if err != nil {
			return fmt.Errorf("failed to propagate sigma point %d: %w", i, err)
		}

		if next.Len() != nx {
			return fmt.Errorf("%w: propagated sigma point %d dimension: %d", filter.ErrInvalidConfig, i, next.Len())
		}

		if !matrix.IsFinite(next) {
			return fmt.Errorf("%w: propagated sigma point %d", filter.ErrNonFinite, i)
		}

		for j := 0; j < nx; j++ {
			xPred.Set(j, i, next.AtVec(j))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	xMean := k.w.Mean(xPred)
	pPred := k.w.Cov(xPred, xMean)
	pPred.AddSym(pPred, k.q)

	if !matrix.IsFinite(pPred) {
		return nil, fmt.Errorf("%w: predicted covariance", filter.ErrNonFinite)
	}

	est, err := estimate.NewBaseWithCov(xMean, pPred)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate next state: %w", err)
	}

	// it's safe to update the filter state
	k.ppred.CopySym(pPred)
	k.diag = Diagnostics{SigmaRepaired: sp.Repaired}
	if sp.Repaired {
		k.sigmaRepaired.Inc(1)
	}

	return est, nil
}

// Update corrects the predicted state x using the measurement z, given control input u and returns corrected estimate.
// Sigma points are regenerated around x using the predicted covariance and observed in parallel.
// It returns error which wraps ErrSingularInnovation if innovation covariance can not be factorized.
// Filter state is not modified if error is returned.
func (k *UKF) Update(x, u, z mat.Vector) (filter.Estimate, error) {
	nx, _, ny := k.model.SystemDims()
	if err := k.checkInput(x, u); err != nil {
		return nil, err
	}

	if z.Len() != ny {
		return nil, fmt.Errorf("%w: invalid measurement dimension: %d", filter.ErrInvalidConfig, z.Len())
	}

	sp, err := k.w.SigmaPoints(x, k.ppred)
	if err != nil {
		return nil, fmt.Errorf("failed to generate sigma points: %w", err)
	}

	_, cols := sp.X.Dims()
	yPred := mat.NewDense(ny, cols, nil)

	err = parallel.For(context.Background(), cols, k.workers, func(i int) error {
		y, err := k.model.Observe(sp.X.ColView(i), u)
		if err != nil {
			return fmt.Errorf("failed to observe sigma point %d: %w", i, err)
		}

		if y.Len() != ny {
			return fmt.Errorf("%w: observed sigma point %d dimension: %d", filter.ErrInvalidConfig, i, y.Len())
		}

		if !matrix.IsFinite(y) {
			return fmt.Errorf("%w: observed sigma point %d", filter.ErrNonFinite, i)
		}

		for j := 0; j < ny; j++ {
			yPred.Set(j, i, y.AtVec(j))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	yMean := k.w.Mean(yPred)
	s := k.w.Cov(yPred, yMean)
	s.AddSym(s, k.r)
	pxy := k.w.CrossCov(sp.X, x, yPred, yMean)

	var chol mat.Cholesky
	if ok := chol.Factorize(s); !ok {
		return nil, fmt.Errorf("%w: factorization failed", ErrSingularInnovation)
	}

	rcond := 1 / chol.Cond()
	if !(rcond >= eps) {
		return nil, fmt.Errorf("%w: reciprocal condition number: %g", ErrSingularInnovation, rcond)
	}

	// K = Pxy * S^-1 <=> S * K' = Pxy'
	kt := new(mat.Dense)
	if err := chol.SolveTo(kt, pxy.T()); err != nil {
		var cerr mat.Condition
		if !errors.As(err, &cerr) {
			return nil, fmt.Errorf("%w: %v", ErrSingularInnovation, err)
		}
	}
	gain := mat.DenseCopyOf(kt.T())

	// innovation vector
	inn := mat.NewVecDense(ny, nil)
	inn.SubVec(z, yMean)

	// correct state x
	xCorr := mat.NewVecDense(nx, nil)
	xCorr.MulVec(gain, inn)
	xCorr.AddVec(x, xCorr)

	// P = P- - K*S*K'
	ks := new(mat.Dense)
	ks.Mul(gain, s)
	ksk := new(mat.Dense)
	ksk.Mul(ks, gain.T())
	ksk.Sub(k.ppred, ksk)

	p := mat.NewSymDense(nx, nil)
	matrix.Symmetrize(p, ksk)

	if !matrix.IsFinite(xCorr) || !matrix.IsFinite(p) {
		return nil, fmt.Errorf("%w: corrected state or covariance", filter.ErrNonFinite)
	}

	p, repaired, err := matrix.NearestPD(p, matrix.DefaultTol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", filter.ErrNumericalInstability, err)
	}

	est, err := estimate.NewBaseWithCov(xCorr, p)
	if err != nil {
		return nil, fmt.Errorf("failed to update estimate: %w", err)
	}

	// update UKF state
	k.p.CopySym(p)
	k.s.CopySym(s)
	k.inn.CopyVec(inn)
	k.k.Copy(gain)
	k.diag.SigmaRepaired = k.diag.SigmaRepaired || sp.Repaired
	k.diag.CovRepaired = repaired
	k.diag.RCond = rcond
	if sp.Repaired {
		k.sigmaRepaired.Inc(1)
	}
	if repaired {
		k.covRepaired.Inc(1)
	}

	return est, nil
}

// Run runs one step of UKF for given state x, input u and measurement z.
// It predicts the next state of x and corrects it using measurement z and returns the corrected estimate.
// It returns error if it either fails to propagate or correct state x.
func (k *UKF) Run(x, u, z mat.Vector) (filter.Estimate, error) {
	pred, err := k.Predict(x, u)
	if err != nil {
		return nil, err
	}

	return k.Update(pred.Val(), u, z)
}

// Cov returns UKF covariance
func (k *UKF) Cov() mat.Symmetric {
	return copySym(k.p)
}

// SetCov sets UKF covariance matrix to cov.
// It returns error if cov is nil, its dimensions do not match the UKF covariance
// or if it is not positive semi-definite.
func (k *UKF) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return fmt.Errorf("%w: invalid covariance matrix: %v", filter.ErrInvalidConfig, cov)
	}

	if cov.SymmetricDim() != k.p.SymmetricDim() {
		return fmt.Errorf("%w: invalid covariance matrix dims: [%d x %d]", filter.ErrInvalidConfig, cov.SymmetricDim(), cov.SymmetricDim())
	}

	if !matrix.IsPSD(cov, psdTol) {
		return fmt.Errorf("%w: covariance is not positive semi-definite", filter.ErrInvalidConfig)
	}

	k.p.CopySym(cov)

	return nil
}

// Gain returns Kalman gain
func (k *UKF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}

// Innovation returns the last innovation vector
func (k *UKF) Innovation() mat.Vector {
	return mat.VecDenseCopyOf(k.inn)
}

// InnovationCov returns the last innovation covariance
func (k *UKF) InnovationCov() mat.Symmetric {
	return copySym(k.s)
}

// Weights returns unscented transform weights used by the filter
func (k *UKF) Weights() Weights {
	return *k.w
}

// Diagnostics returns diagnostics of the last filter step
func (k *UKF) Diagnostics() Diagnostics {
	return k.diag
}

func (k *UKF) checkInput(x, u mat.Vector) error {
	nx, nu, _ := k.model.SystemDims()
	if x.Len() != nx {
		return fmt.Errorf("%w: invalid state dimension: %d", filter.ErrInvalidConfig, x.Len())
	}

	if u != nil && u.Len() != nu {
		return fmt.Errorf("%w: invalid input dimension: %d", filter.ErrInvalidConfig, u.Len())
	}

	return nil
}

// eps is machine epsilon
var eps = math.Nextafter(1, 2) - 1

func copySym(a mat.Symmetric) *mat.SymDense {
	s := mat.NewSymDense(a.SymmetricDim(), nil)
	s.CopySym(a)

	return s
}
