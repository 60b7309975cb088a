// Package kf implements the linear Kalman Filter.
package kf

import (
	"fmt"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/milosgajdos/go-vibid/estimate"
	"github.com/milosgajdos/go-vibid/matrix"
	"gonum.org/v1/gonum/mat"
)

// LinearModel is a linear discrete-time model of a dynamical system
type LinearModel interface {
	// filter.Model is dynamical system model
	filter.Model
	// SystemMatrix returns state propagation matrix
	SystemMatrix() mat.Matrix
	// ControlMatrix returns state propagation control matrix
	ControlMatrix() mat.Matrix
	// OutputMatrix returns observation matrix
	OutputMatrix() mat.Matrix
	// FeedForwardMatrix returns observation control matrix
	FeedForwardMatrix() mat.Matrix
}

// KF is Kalman Filter
type KF struct {
	// m is KF system model
	m LinearModel
	// q is process noise covariance
	q *mat.SymDense
	// r is measurement noise covariance
	r *mat.SymDense
	// p is the KF covariance matrix
	p *mat.SymDense
	// pNext is the KF predicted covariance matrix
	pNext *mat.SymDense
	// inn is innovation vector
	inn *mat.VecDense
	// k is Kalman gain
	k *mat.Dense
}

// New creates new KF and returns it.
// It accepts the following parameters:
//   - m:      linear dynamical system model
//   - init:   initial condition of the filter
//   - q:      process noise covariance
//   - r:      measurement noise covariance
//
// It returns error which wraps filter.ErrInvalidConfig if either of the following conditions is met:
//   - invalid model is given: model dimensions must be positive integers
//   - initial condition or noise covariances do not match the model dimensions
func New(m LinearModel, init filter.InitCond, q, r mat.Symmetric) (*KF, error) {
	// size of the input and output vectors
	nx, _, ny := m.SystemDims()
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: invalid model dimensions: [%d x %d]", filter.ErrInvalidConfig, nx, ny)
	}

	if q == nil || q.SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid process noise", filter.ErrInvalidConfig)
	}

	if r == nil || r.SymmetricDim() != ny {
		return nil, fmt.Errorf("%w: invalid measurement noise", filter.ErrInvalidConfig)
	}

	if init.State().Len() != nx || init.Cov().SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid initial condition dimensions", filter.ErrInvalidConfig)
	}

	rows, cols := m.SystemMatrix().Dims()
	if rows != nx || cols != nx {
		return nil, fmt.Errorf("%w: invalid propagation matrix dimensions: [%d x %d]", filter.ErrInvalidConfig, rows, cols)
	}

	rows, cols = m.OutputMatrix().Dims()
	if rows != ny || cols != nx {
		return nil, fmt.Errorf("%w: invalid observation matrix dimensions: [%d x %d]", filter.ErrInvalidConfig, rows, cols)
	}

	// initialize covariance matrix to initial condition covariance
	p := mat.NewSymDense(nx, nil)
	p.CopySym(init.Cov())

	qc := mat.NewSymDense(nx, nil)
	qc.CopySym(q)

	rc := mat.NewSymDense(ny, nil)
	rc.CopySym(r)

	return &KF{
		m:     m,
		q:     qc,
		r:     rc,
		p:     p,
		pNext: mat.NewSymDense(nx, nil),
		inn:   mat.NewVecDense(ny, nil),
		k:     mat.NewDense(nx, ny, nil),
	}, nil
}

// Predict calculates the next system state given the state x and input u and returns its estimate.
// It returns error if it fails to propagate x to the next step.
func (k *KF) Predict(x, u mat.Vector) (filter.Estimate, error) {
	// propagate input state to the next step
	xNext, err := k.m.Propagate(x, u)
	if err != nil {
		return nil, fmt.Errorf("system state propagation failed: %w", err)
	}

	// A*P*A' + Q
	cov := &mat.Dense{}
	cov.Mul(k.m.SystemMatrix(), k.p)
	cov.Mul(cov, k.m.SystemMatrix().T())
	cov.Add(cov, k.q)

	// update KF predicted covariance matrix
	matrix.Symmetrize(k.pNext, cov)

	return estimate.NewBaseWithCov(xNext, k.pNext)
}

// Update corrects state x using the measurement z, given control input u and returns corrected estimate.
// It returns error if either invalid measurement was supplied or if it fails to calculate system output estimate.
func (k *KF) Update(x, u, z mat.Vector) (filter.Estimate, error) {
	nx, _, ny := k.m.SystemDims()

	if z.Len() != ny {
		return nil, fmt.Errorf("%w: invalid measurement supplied: %v", filter.ErrInvalidConfig, z)
	}

	// observe system output in the next step
	yNext, err := k.m.Observe(x, u)
	if err != nil {
		return nil, fmt.Errorf("failed to observe system output: %w", err)
	}

	pxy := mat.NewDense(nx, ny, nil)
	pyy := mat.NewDense(ny, ny, nil)

	// P*H'
	pxy.Mul(k.pNext, k.m.OutputMatrix().T())

	// Note: pxy = P * H' so we reuse the result here
	// H*P*H' + R
	pyy.Mul(k.m.OutputMatrix(), pxy)
	pyy.Add(pyy, k.r)

	// calculate Kalman gain
	pyyInv := &mat.Dense{}
	if err := pyyInv.Inverse(pyy); err != nil {
		return nil, fmt.Errorf("%w: failed to calculate Pyy inverse: %v", filter.ErrNumericalInstability, err)
	}
	gain := &mat.Dense{}
	gain.Mul(pxy, pyyInv)

	// innovation vector
	inn := &mat.VecDense{}
	inn.SubVec(z, yNext)

	// update state x
	xCorr := mat.NewVecDense(nx, nil)
	xCorr.MulVec(gain, inn)
	xCorr.AddVec(x, xCorr)

	// Joseph form update: (I-K*H)*P*(I-K*H)' + K*R*K'
	eye := mat.NewDiagDense(nx, nil)
	for i := 0; i < nx; i++ {
		eye.SetDiag(i, 1.0)
	}
	a := &mat.Dense{}
	// K*H
	a.Mul(gain, k.m.OutputMatrix())
	// eye - K*H
	a.Sub(eye, a)

	// K*R*K'
	kr := &mat.Dense{}
	kr.Mul(gain, k.r)
	pkrk := &mat.Dense{}
	pkrk.Mul(kr, gain.T())

	ap := &mat.Dense{}
	ap.Mul(a, k.pNext)
	apa := &mat.Dense{}
	apa.Mul(ap, a.T())

	pCorr := &mat.Dense{}
	pCorr.Add(apa, pkrk)

	// update KF innovation vector
	k.inn.CopyVec(inn)
	k.k.Copy(gain)
	// update KF covariance matrix
	matrix.Symmetrize(k.p, pCorr)

	return estimate.NewBaseWithCov(xCorr, k.p)
}

// Run runs one step of KF for given state x, input u and measurement z.
// It corrects system state x using measurement z and returns new system estimate.
// It returns error if it either fails to propagate or correct state x.
func (k *KF) Run(x, u, z mat.Vector) (filter.Estimate, error) {
	pred, err := k.Predict(x, u)
	if err != nil {
		return nil, err
	}

	est, err := k.Update(pred.Val(), u, z)
	if err != nil {
		return nil, err
	}

	return est, nil
}

// Model returns KF model
func (k *KF) Model() LinearModel {
	return k.m
}

// Cov returns KF covariance
func (k *KF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov sets KF covariance matrix to cov.
// It returns error if either cov is nil or its dimensions are not the same as KF covariance dimensions.
func (k *KF) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return fmt.Errorf("%w: invalid covariance matrix: %v", filter.ErrInvalidConfig, cov)
	}

	if cov.SymmetricDim() != k.p.SymmetricDim() {
		return fmt.Errorf("%w: invalid covariance matrix dims: [%d x %d]", filter.ErrInvalidConfig, cov.SymmetricDim(), cov.SymmetricDim())
	}

	k.p.CopySym(cov)

	return nil
}

// Gain returns Kalman gain
func (k *KF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}

// Innovation returns the last innovation vector
func (k *KF) Innovation() mat.Vector {
	return mat.VecDenseCopyOf(k.inn)
}
