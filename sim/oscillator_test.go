package sim

import (
	"testing"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestSDOF(t *testing.T) {
	assert := assert.New(t)

	s := SDOF{M: 2, C: 0.5, K: 8}
	var _ filter.ContinuousModel = s

	state := mat.NewVecDense(2, []float64{0.1, -0.2})
	force := mat.NewVecDense(1, []float64{1.0})

	// (1 - 0.5*-0.2 - 8*0.1) / 2
	want := 0.15
	assert.InDelta(want, s.Accel(0.1, -0.2, 1.0), 1e-12)

	dx, err := s.Derivative(state, force)
	assert.NoError(err)
	assert.InDelta(-0.2, dx.AtVec(0), 1e-12)
	assert.InDelta(want, dx.AtVec(1), 1e-12)

	y, err := s.Observe(state, force)
	assert.NoError(err)
	assert.InDelta(want, y.AtVec(0), 1e-12)

	// no force
	y, err = s.Observe(state, nil)
	assert.NoError(err)
	assert.InDelta(-0.35, y.AtVec(0), 1e-12)

	_, err = s.Derivative(mat.NewVecDense(3, nil), force)
	assert.Error(err)
	_, err = s.Observe(mat.NewVecDense(3, nil), force)
	assert.Error(err)

	nx, nu, ny := s.SystemDims()
	assert.Equal([]int{2, 1, 1}, []int{nx, nu, ny})
}

func TestAugmentedSDOF(t *testing.T) {
	assert := assert.New(t)

	s := SDOF{M: 1, C: 0.3, K: 9}
	aug := AugmentedSDOF{M: 1}
	var _ filter.ContinuousModel = aug

	state := mat.NewVecDense(2, []float64{0.1, -0.2})
	augState := mat.NewVecDense(4, []float64{0.1, -0.2, 9, 0.3})
	force := mat.NewVecDense(1, []float64{0.7})

	dx, err := s.Derivative(state, force)
	assert.NoError(err)
	adx, err := aug.Derivative(augState, force)
	assert.NoError(err)

	assert.Equal(4, adx.Len())
	assert.InDelta(dx.AtVec(0), adx.AtVec(0), 1e-12)
	assert.InDelta(dx.AtVec(1), adx.AtVec(1), 1e-12)
	// parameters are constant
	assert.Equal(0.0, adx.AtVec(2))
	assert.Equal(0.0, adx.AtVec(3))

	y, err := s.Observe(state, force)
	assert.NoError(err)
	ay, err := aug.Observe(augState, force)
	assert.NoError(err)
	assert.InDelta(y.AtVec(0), ay.AtVec(0), 1e-12)

	_, err = aug.Derivative(state, force)
	assert.Error(err)
	_, err = aug.Observe(state, force)
	assert.Error(err)

	nx, nu, ny := aug.SystemDims()
	assert.Equal([]int{4, 1, 1}, []int{nx, nu, ny})
}

func TestTwoDOF(t *testing.T) {
	assert := assert.New(t)

	s := TwoDOF{M1: 1, M2: 2, K1: 10, K2: 5, C1: 0.2, C2: 0.1}
	var _ filter.ContinuousModel = s

	state := mat.NewVecDense(4, []float64{0.1, 0.0, 0.3, -0.1})
	force := mat.NewVecDense(1, []float64{1.0})

	// f2 = 5*(0.3-0.1) + 0.1*(-0.1-0) = 0.99
	a1, a2 := s.Accel(0.1, 0.0, 0.3, -0.1, 1.0)
	assert.InDelta(0.99-1.0, a1, 1e-12)
	assert.InDelta((1.0-0.99)/2, a2, 1e-12)

	dx, err := s.Derivative(state, force)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{0.0, a1, -0.1, a2}, dx.(*mat.VecDense).RawVector().Data, 1e-12)

	y, err := s.Observe(state, force)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{a1, a2}, y.(*mat.VecDense).RawVector().Data, 1e-12)

	nx, nu, ny := s.SystemDims()
	assert.Equal([]int{4, 1, 2}, []int{nx, nu, ny})
}

func TestAugmentedTwoDOF(t *testing.T) {
	assert := assert.New(t)

	s := TwoDOF{M1: 1, M2: 2, K1: 10, K2: 5, C1: 0.2, C2: 0.1}
	aug := AugmentedTwoDOF{M1: 1, M2: 2}
	var _ filter.ContinuousModel = aug

	state := mat.NewVecDense(4, []float64{0.1, 0.0, 0.3, -0.1})
	augState := mat.NewVecDense(8, []float64{0.1, 0.0, 0.3, -0.1, 10, 5, 0.2, 0.1})
	force := mat.NewVecDense(1, []float64{1.0})

	dx, err := s.Derivative(state, force)
	assert.NoError(err)
	adx, err := aug.Derivative(augState, force)
	assert.NoError(err)
	for i := 0; i < 4; i++ {
		assert.InDelta(dx.AtVec(i), adx.AtVec(i), 1e-12)
	}
	for i := 4; i < 8; i++ {
		assert.Equal(0.0, adx.AtVec(i))
	}

	y, err := s.Observe(state, force)
	assert.NoError(err)
	ay, err := aug.Observe(augState, force)
	assert.NoError(err)
	assert.True(mat.EqualApprox(y, ay, 1e-12))

	_, err = aug.Derivative(state, force)
	assert.Error(err)

	nx, nu, ny := aug.SystemDims()
	assert.Equal([]int{8, 1, 2}, []int{nx, nu, ny})
}
