package kf

import (
	"errors"
	"os"
	"testing"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/milosgajdos/go-vibid/noise"
	"github.com/milosgajdos/go-vibid/sim"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

type invalidModel struct {
	*sim.Discrete
	nx int
	nu int
	ny int
}

func (m *invalidModel) SystemDims() (nx, nu, ny int) {
	return m.nx, m.nu, m.ny
}

var (
	okModel  *sim.Discrete
	badModel *invalidModel
	ic       *sim.InitCond
	q        *mat.SymDense
	r        *mat.SymDense
	u        *mat.VecDense
	z        *mat.VecDense
)

func setup() {
	u = mat.NewVecDense(1, []float64{-1.0})
	z = mat.NewVecDense(1, []float64{-1.5})

	// initial condition
	initState := mat.NewVecDense(2, []float64{1.0, 3.0})
	initCov := mat.NewSymDense(2, []float64{0.25, 0, 0, 0.25})
	ic = sim.NewInitCond(initState, initCov)

	// state and output noise
	q = noise.Diag(0.25, 0.25)
	r = noise.Diag(0.25)

	A := mat.NewDense(2, 2, []float64{1.0, 1.0, 0.0, 1.0})
	B := mat.NewDense(2, 1, []float64{0.5, 1.0})
	C := mat.NewDense(1, 2, []float64{1.0, 0.0})
	D := mat.NewDense(1, 1, []float64{0.0})

	okModel, _ = sim.NewDiscrete(A, B, C, D)
	badModel = &invalidModel{Discrete: okModel, nx: 10, ny: 10}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestKFNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r)
	assert.NoError(err)
	assert.NotNil(f)

	// invalid model: negative dimensions
	badModel.nx, badModel.ny = -10, 20
	f, err = New(badModel, ic, q, r)
	assert.Nil(f)
	assert.True(errors.Is(err, filter.ErrInvalidConfig))

	// invalid model: dimensions do not match matrices
	badModel.nx, badModel.ny = 3, 1
	f, err = New(badModel, ic, noise.Diag(1, 1, 1), r)
	assert.Nil(f)
	assert.Error(err)

	// invalid state noise dimension
	f, err = New(okModel, ic, noise.Diag(1, 1, 1), r)
	assert.Nil(f)
	assert.Error(err)

	// invalid output noise dimension
	f, err = New(okModel, ic, q, noise.Diag(1, 1))
	assert.Nil(f)
	assert.Error(err)

	// invalid initial condition
	f, err = New(okModel, sim.NewInitCond(mat.NewVecDense(3, nil), noise.Diag(1, 1, 1)), q, r)
	assert.Nil(f)
	assert.Error(err)
}

func TestKFPredict(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r)
	assert.NotNil(f)
	assert.NoError(err)

	x := mat.VecDenseCopyOf(ic.State())
	est, err := f.Predict(x, u)
	assert.NotNil(est)
	assert.NoError(err)

	// [1 1; 0 1]*[1; 3] + [0.5; 1]*-1
	assert.InDelta(3.5, est.Val().AtVec(0), 1e-12)
	assert.InDelta(2.0, est.Val().AtVec(1), 1e-12)
	// A*P*A' + Q
	assert.InDelta(0.75, est.Cov().At(0, 0), 1e-12)
	assert.InDelta(0.25, est.Cov().At(0, 1), 1e-12)
	assert.InDelta(0.5, est.Cov().At(1, 1), 1e-12)

	// invalid input vector
	_u := mat.NewVecDense(3, nil)
	est, err = f.Predict(x, _u)
	assert.Nil(est)
	assert.Error(err)
}

func TestKFUpdate(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r)
	assert.NotNil(f)
	assert.NoError(err)

	x := mat.VecDenseCopyOf(ic.State())
	pred, err := f.Predict(x, u)
	assert.NoError(err)

	est, err := f.Update(pred.Val(), u, z)
	assert.NotNil(est)
	assert.NoError(err)

	// S = 0.75 + 0.25, K = [0.75; 0.25]
	gain := f.Gain()
	assert.InDelta(0.75, gain.At(0, 0), 1e-12)
	assert.InDelta(0.25, gain.At(1, 0), 1e-12)
	assert.InDelta(-5.0, f.Innovation().AtVec(0), 1e-12)
	assert.InDelta(3.5-0.75*5, est.Val().AtVec(0), 1e-12)
	// (I-K*H)*P-
	assert.InDelta(0.1875, est.Cov().At(0, 0), 1e-12)
	assert.InDelta(0.0625, est.Cov().At(0, 1), 1e-12)
	assert.InDelta(0.4375, est.Cov().At(1, 1), 1e-12)

	// invalid input vector
	_u := mat.NewVecDense(3, nil)
	est, err = f.Update(x, _u, z)
	assert.Nil(est)
	assert.Error(err)

	// invalid measurement vector
	_z := mat.NewVecDense(3, nil)
	est, err = f.Update(x, u, _z)
	assert.Nil(est)
	assert.Error(err)
}

func TestKFRun(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r)
	assert.NotNil(f)
	assert.NoError(err)

	x := mat.VecDenseCopyOf(ic.State())
	est, err := f.Run(x, u, z)
	assert.NotNil(est)
	assert.NoError(err)

	// invalid input vector
	_u := mat.NewVecDense(3, nil)
	est, err = f.Run(x, _u, z)
	assert.Nil(est)
	assert.Error(err)

	// invalid measurement vector
	_z := mat.NewVecDense(3, nil)
	est, err = f.Run(x, u, _z)
	assert.Nil(est)
	assert.Error(err)
}

func TestKFModel(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r)
	assert.NotNil(f)
	assert.NoError(err)

	m := f.Model()
	assert.NotNil(m)
}

func TestKFCov(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r)
	assert.NotNil(f)
	assert.NoError(err)

	cov := f.Cov()
	assert.NotNil(cov)
	assert.True(mat.Equal(ic.Cov(), cov))

	err = f.SetCov(nil)
	assert.Error(err)

	err = f.SetCov(mat.NewSymDense(30, nil))
	assert.Error(err)

	err = f.SetCov(mat.NewSymDense(f.p.SymmetricDim(), nil))
	assert.NoError(err)
}

func TestKFGain(t *testing.T) {
	assert := assert.New(t)

	f, err := New(okModel, ic, q, r)
	assert.NotNil(f)
	assert.NoError(err)

	gain := f.Gain()
	assert.NotNil(gain)
}
