package rnd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestWithCovN(t *testing.T) {
	assert := assert.New(t)

	data := []float64{1.0, 0.0, 0.0, 1.0}
	covTest := mat.NewSymDense(2, data)
	covR, _ := covTest.Dims()
	src := rand.NewSource(1)

	// n must be bigger than 1
	nTest := -3
	res, err := WithCovN(covTest, nTest, src)
	assert.Error(err)
	assert.Nil(res)

	// source must be supplied
	res, err = WithCovN(covTest, 2, nil)
	assert.Error(err)
	assert.Nil(res)

	nTest = 1
	res, err = WithCovN(covTest, nTest, src)
	assert.NoError(err)
	assert.NotNil(res)

	// 2 samples
	nTest = 2
	res, err = WithCovN(covTest, nTest, src)
	assert.NoError(err)
	assert.NotNil(res)
	r, c := res.Dims()
	assert.Equal(r, covR)
	assert.Equal(c, nTest)

	// singular covariance is fine
	res, err = WithCovN(mat.NewSymDense(2, []float64{1, 0, 0, 0}), 10, src)
	assert.NoError(err)
	for c := 0; c < 10; c++ {
		assert.InDelta(0.0, res.At(1, c), 1e-12)
	}
}

func TestWithCovNStatistics(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(2, []float64{4.0, 1.0, 1.0, 2.0})
	n := 20000

	res, err := WithCovN(cov, n, rand.NewSource(42))
	assert.NoError(err)

	sampleCov := mat.NewSymDense(2, nil)
	stat.CovarianceMatrix(sampleCov, res.T(), nil)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(cov.At(i, j), sampleCov.At(i, j), 0.15)
		}
	}
}

func TestWithCovNReproducible(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(2, []float64{1.0, 0.2, 0.2, 1.0})

	a, err := WithCovN(cov, 5, rand.NewSource(7))
	assert.NoError(err)
	b, err := WithCovN(cov, 5, rand.NewSource(7))
	assert.NoError(err)
	assert.True(mat.Equal(a, b))
}

func TestRouletteDrawN(t *testing.T) {
	assert := assert.New(t)
	src := rand.NewSource(1)

	// p can't be nil or empty
	indices, err := RouletteDrawN(nil, 10, src)
	assert.Error(err)
	assert.Nil(indices)

	// negative weights
	indices, err = RouletteDrawN([]float64{0.1, -0.1}, 10, src)
	assert.Error(err)
	assert.Nil(indices)

	// zero weights
	indices, err = RouletteDrawN([]float64{0, 0}, 10, src)
	assert.Error(err)
	assert.Nil(indices)

	// negative number of draws
	indices, err = RouletteDrawN([]float64{0.5, 0.5}, -1, src)
	assert.Error(err)
	assert.Nil(indices)

	indices, err = RouletteDrawN([]float64{0.5, 0.5}, 0, src)
	assert.NoError(err)
	assert.Empty(indices)

	p := []float64{0.1, 0.7, 0.3, 0.4}
	n := 10
	indices, err = RouletteDrawN(p, n, src)
	assert.NoError(err)
	assert.NotNil(indices)
	assert.Equal(n, len(indices))
	for _, i := range indices {
		assert.True(i >= 0 && i < len(p))
	}

	// degenerate pmf always returns the same index
	indices, err = RouletteDrawN([]float64{0, 0, 1, 0}, 20, src)
	assert.NoError(err)
	for _, i := range indices {
		assert.Equal(2, i)
	}
}

func TestSystematicDrawN(t *testing.T) {
	assert := assert.New(t)
	src := rand.NewSource(1)

	indices, err := SystematicDrawN(nil, 10, src)
	assert.Error(err)
	assert.Nil(indices)

	indices, err = SystematicDrawN([]float64{1}, 10, nil)
	assert.Error(err)
	assert.Nil(indices)

	indices, err = SystematicDrawN([]float64{1}, -1, src)
	assert.Error(err)
	assert.Nil(indices)

	indices, err = SystematicDrawN([]float64{1}, 0, src)
	assert.NoError(err)
	assert.Empty(indices)

	// uniform weights keep every particle exactly once
	p := []float64{0.25, 0.25, 0.25, 0.25}
	indices, err = SystematicDrawN(p, 4, src)
	assert.NoError(err)
	assert.Equal([]int{0, 1, 2, 3}, indices)

	// counts are within one of n*p
	p = []float64{0.1, 0.5, 0.15, 0.25}
	n := 100
	indices, err = SystematicDrawN(p, n, src)
	assert.NoError(err)
	assert.Equal(n, len(indices))

	counts := make([]int, len(p))
	for i, idx := range indices {
		counts[idx]++
		if i > 0 {
			assert.True(indices[i-1] <= idx)
		}
	}
	for i := range p {
		assert.InDelta(p[i]*float64(n), float64(counts[i]), 1.0)
	}

	// degenerate pmf
	indices, err = SystematicDrawN([]float64{0, 0, 1, 0}, 5, src)
	assert.NoError(err)
	assert.Equal([]int{2, 2, 2, 2, 2}, indices)
}
