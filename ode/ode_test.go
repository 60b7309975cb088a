package ode

import (
	"errors"
	"math"
	"os"
	"testing"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

var (
	// damped oscillator: m = 1, c = 0.3, k = 9
	A  *mat.Dense
	x0 *mat.VecDense
)

func setup() {
	A = mat.NewDense(2, 2, []float64{
		0, 1,
		-9, -0.3,
	})
	x0 = mat.NewVecDense(2, []float64{1, 0})
}

func TestMain(m *testing.M) {
	setup()
	retCode := m.Run()
	os.Exit(retCode)
}

func linear(x, u mat.Vector) (mat.Vector, error) {
	dx := mat.NewVecDense(x.Len(), nil)
	dx.MulVec(A, x)
	return dx, nil
}

type linearModel struct{}

func (linearModel) Derivative(x, u mat.Vector) (mat.Vector, error) { return linear(x, u) }

func (linearModel) Observe(x, u mat.Vector) (mat.Vector, error) {
	return mat.NewVecDense(1, []float64{x.AtVec(0)}), nil
}

func (linearModel) SystemDims() (int, int, int) { return 2, 1, 1 }

func integrate(h float64, steps int) (*mat.VecDense, error) {
	x := mat.VecDenseCopyOf(x0)
	for i := 0; i < steps; i++ {
		var err error
		x, err = RK4(linear, x, nil, h)
		if err != nil {
			return nil, err
		}
	}

	return x, nil
}

func TestRK4Order(t *testing.T) {
	assert := assert.New(t)

	T := 1.0
	var expAT mat.Dense
	expAT.Scale(T, A)
	expAT.Exp(&expAT)

	exact := mat.NewVecDense(2, nil)
	exact.MulVec(&expAT, x0)

	var errs []float64
	for _, steps := range []int{20, 40, 80} {
		x, err := integrate(T/float64(steps), steps)
		assert.NoError(err)

		diff := mat.NewVecDense(2, nil)
		diff.SubVec(x, exact)
		errs = append(errs, mat.Norm(diff, 2))
	}

	// halving the step reduces the global error approx. 16 times
	for i := 1; i < len(errs); i++ {
		ratio := errs[i-1] / errs[i]
		assert.True(ratio > 12 && ratio < 20, "error ratio: %v", ratio)
	}
	assert.True(errs[len(errs)-1] < 1e-6)
}

func TestRK4(t *testing.T) {
	assert := assert.New(t)

	// dx/dt = u has exact solution x + h*u
	f := func(x, u mat.Vector) (mat.Vector, error) {
		return mat.VecDenseCopyOf(u), nil
	}
	x := mat.NewVecDense(2, []float64{1, 2})
	u := mat.NewVecDense(2, []float64{3, -1})

	out, err := RK4(f, x, u, 0.5)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{2.5, 1.5}, out.RawVector().Data, 1e-12)
	// input state is not modified
	assert.Equal(1.0, x.AtVec(0))

	for _, h := range []float64{0, -0.1, math.NaN()} {
		out, err = RK4(f, x, u, h)
		assert.Nil(out)
		assert.True(errors.Is(err, filter.ErrInvalidConfig))
	}
}

func TestRK4Errors(t *testing.T) {
	assert := assert.New(t)

	x := mat.NewVecDense(1, []float64{1})

	inf := func(x, u mat.Vector) (mat.Vector, error) {
		return mat.NewVecDense(1, []float64{math.Inf(1)}), nil
	}
	out, err := RK4(inf, x, nil, 0.1)
	assert.NotNil(out)
	assert.True(errors.Is(err, filter.ErrNonFinite))
	assert.True(math.IsInf(out.AtVec(0), 1) || math.IsNaN(out.AtVec(0)))

	errModel := errors.New("model")
	bad := func(x, u mat.Vector) (mat.Vector, error) {
		return nil, errModel
	}
	out, err = RK4(bad, x, nil, 0.1)
	assert.Nil(out)
	assert.True(errors.Is(err, errModel))

	dims := func(x, u mat.Vector) (mat.Vector, error) {
		return mat.NewVecDense(2, nil), nil
	}
	out, err = RK4(dims, x, nil, 0.1)
	assert.Nil(out)
	assert.True(errors.Is(err, filter.ErrInvalidConfig))
}

func TestDiscretize(t *testing.T) {
	assert := assert.New(t)

	d, err := Discretize(nil, 0.1)
	assert.Nil(d)
	assert.Error(err)

	d, err = Discretize(linearModel{}, 0)
	assert.Nil(d)
	assert.Error(err)

	d, err = Discretize(linearModel{}, 0.01)
	assert.NoError(err)
	assert.Equal(0.01, d.Step())

	nx, nu, ny := d.SystemDims()
	assert.Equal(2, nx)
	assert.Equal(1, nu)
	assert.Equal(1, ny)

	want, err := RK4(linear, x0, nil, 0.01)
	assert.NoError(err)
	got, err := d.Propagate(x0, nil)
	assert.NoError(err)
	assert.True(mat.Equal(want, got))

	y, err := d.Observe(x0, nil)
	assert.NoError(err)
	assert.Equal(1.0, y.AtVec(0))

	var _ filter.Model = d
}
