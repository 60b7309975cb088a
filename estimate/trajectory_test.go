package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewTrajectory(t *testing.T) {
	assert := assert.New(t)

	tr, err := NewTrajectory(10, 2)
	assert.NoError(err)
	assert.Equal(0, tr.Len())
	assert.Equal(10, tr.Cap())
	assert.Equal(2, tr.Dim())
	assert.Nil(tr.Means())

	tr, err = NewTrajectory(0, 2)
	assert.Nil(tr)
	assert.Error(err)

	tr, err = NewTrajectory(1, -1)
	assert.Nil(tr)
	assert.Error(err)
}

func TestTrajectoryAppend(t *testing.T) {
	assert := assert.New(t)

	tr, err := NewTrajectory(2, 2)
	assert.NoError(err)

	for k := 0; k < 2; k++ {
		f := float64(k + 1)
		est, err := NewBaseWithCov(
			mat.NewVecDense(2, []float64{f, 2 * f}),
			mat.NewSymDense(2, []float64{f, 0.5, 0.5, 4 * f}),
		)
		assert.NoError(err)
		assert.NoError(tr.Append(est))
	}
	assert.Equal(2, tr.Len())

	assert.Equal(2.0, tr.Mean(1).AtVec(0))
	assert.Equal(4.0, tr.Mean(1).AtVec(1))
	assert.Equal(0.5, tr.Cov(0).At(1, 0))
	assert.Equal(8.0, tr.Cov(1).At(1, 1))
	assert.Equal([]float64{2, 4}, tr.Component(1))
	assert.InDeltaSlice([]float64{1, 2}, tr.Std(1), 1e-12)

	means := tr.Means()
	r, c := means.Dims()
	assert.Equal(2, r)
	assert.Equal(2, c)
	assert.Equal(4.0, means.At(1, 1))

	est := tr.At(0)
	assert.True(mat.Equal(tr.Mean(0), est.Val()))
	assert.True(mat.Equal(tr.Cov(0), est.Cov()))

	// full trajectory
	extra, _ := NewBase(mat.NewVecDense(2, nil))
	assert.Error(tr.Append(extra))

	assert.Panics(func() { tr.Mean(2) })
	assert.Panics(func() { tr.Cov(-1) })
}

func TestTrajectoryAppendInvalid(t *testing.T) {
	assert := assert.New(t)

	tr, err := NewTrajectory(2, 2)
	assert.NoError(err)

	est, _ := NewBase(mat.NewVecDense(3, nil))
	assert.Error(tr.Append(est))
	assert.Equal(0, tr.Len())
}
