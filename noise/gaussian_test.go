package noise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestNewGaussian(t *testing.T) {
	assert := assert.New(t)
	for _, test := range []struct {
		mean []float64
		cov  *mat.SymDense
		src  rand.Source
		ok   bool
	}{
		{
			mean: []float64{2, 3},
			cov:  mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1}),
			src:  rand.NewSource(1),
			ok:   true,
		},
		{
			mean: []float64{2, 3},
			cov:  mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1}),
			src:  nil,
			ok:   false,
		},
		{
			mean: []float64{2},
			cov:  mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1}),
			src:  rand.NewSource(1),
			ok:   false,
		},
		{
			mean: []float64{0, 0},
			cov:  mat.NewSymDense(2, []float64{1, 2, 2, 1}),
			src:  rand.NewSource(1),
			ok:   false,
		},
	} {
		g, err := NewGaussian(test.mean, test.cov, test.src)
		if test.ok {
			assert.NotNil(g)
			assert.NoError(err)
		} else {
			assert.Nil(g)
			assert.Error(err)
		}
	}
}

func TestGaussianMeanCov(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov, rand.NewSource(1))
	assert.NotNil(g)
	assert.NoError(err)

	gCov := g.Cov()
	assert.Equal(cov.SymmetricDim(), gCov.SymmetricDim())
	assert.True(mat.Equal(cov, gCov))

	gMean := g.Mean()
	assert.EqualValues(mean, gMean)

	// returned values are copies
	gMean[0] = 100
	assert.EqualValues(mean, g.Mean())
}

func TestGaussianSample(t *testing.T) {
	assert := assert.New(t)

	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g1, err := NewGaussian(mean, cov, rand.NewSource(5))
	assert.NoError(err)
	g2, err := NewGaussian(mean, cov, rand.NewSource(5))
	assert.NoError(err)

	s1 := g1.Sample()
	assert.Equal(len(mean), s1.Len())

	// same seed, same samples
	assert.True(mat.Equal(s1, g2.Sample()))
	assert.False(mat.Equal(s1, g1.Sample()))
}

func TestGaussianString(t *testing.T) {
	assert := assert.New(t)

	str := `Gaussian{
Mean=[2 3]
Cov=⎡  1  0.1⎤
    ⎣0.1    1⎦
}`
	mean := []float64{2, 3}
	cov := mat.NewSymDense(2, []float64{1, 0.1, 0.1, 1})

	g, err := NewGaussian(mean, cov, rand.NewSource(1))
	assert.NotNil(g)
	assert.NoError(err)
	assert.Equal(str, g.String())
}

func TestSoftDiscretize(t *testing.T) {
	assert := assert.New(t)

	qc := Diag(1e-2, 4)
	q, err := SoftDiscretize(qc, 0.01)
	assert.NoError(err)
	assert.InDelta(1e-4, q.At(0, 0), 1e-15)
	assert.InDelta(0.04, q.At(1, 1), 1e-15)
	assert.Equal(0.0, q.At(0, 1))

	q, err = SoftDiscretize(qc, 0)
	assert.Nil(q)
	assert.Error(err)
}
