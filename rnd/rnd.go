// Package rnd implements random draws used by particle filters.
// All functions take an explicit random source so that runs can be reproduced.
package rnd

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// It returns matrix which contains the randomly generated samples stored in its columns.
// It fails with error if n is non-positive, src is nil or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, src rand.Source) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	if src == nil {
		return nil, fmt.Errorf("invalid random source: %v", src)
	}

	// Use SVD instead of Cholesky as Cholesky fails if cov is (almost) singular
	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	U.Mul(U, mat.NewDiagDense(len(vals), vals))

	rng := rand.New(src)
	rows := cov.SymmetricDim()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// RouletteDrawN draws n numbers randomly from a probability mass function (PMF) defined by weights in p.
// RouletteDrawN implements the Roulette Wheel Draw a.k.a. Fitness Proportionate Selection:
// - https://en.wikipedia.org/wiki/Fitness_proportionate_selection
// - http://www.keithschwarz.com/darts-dice-coins/
// It returns a slice of n indices into p.
// It fails with error if n is negative, p is empty, contains invalid weights or src is nil.
func RouletteDrawN(p []float64, n int, src rand.Source) ([]int, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	cdf, err := newCDF(p, src)
	if err != nil {
		return nil, err
	}

	rng := rand.New(src)
	total := cdf[len(cdf)-1]

	indices := make([]int, n)
	for i := range indices {
		// multiply the sample with the largest CDF value; easier than normalizing to [0,1)
		val := rng.Float64() * total
		indices[i] = search(cdf, val)
	}

	return indices, nil
}

// SystematicDrawN draws n indices from the PMF defined by weights in p using systematic sampling:
// a single uniform offset u in [0, 1/n) is drawn and the CDF is sampled at u + i/n.
// Systematic sampling has lower variance than RouletteDrawN and returns indices in ascending order.
// It fails with error if n is negative, p is empty, contains invalid weights or src is nil.
func SystematicDrawN(p []float64, n int, src rand.Source) ([]int, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	cdf, err := newCDF(p, src)
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return []int{}, nil
	}

	rng := rand.New(src)
	total := cdf[len(cdf)-1]
	step := total / float64(n)
	u := rng.Float64() * step

	indices := make([]int, n)
	j := 0
	for i := range indices {
		val := u + float64(i)*step
		for j < len(cdf)-1 && cdf[j] <= val {
			j++
		}
		indices[i] = j
	}

	return indices, nil
}

func newCDF(p []float64, src rand.Source) ([]float64, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid probability weights: %v", p)
	}

	if src == nil {
		return nil, fmt.Errorf("invalid random source: %v", src)
	}

	for _, w := range p {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("invalid probability weight: %v", w)
		}
	}

	// we know that cdf is sorted in ascending order
	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)
	if cdf[len(cdf)-1] <= 0 {
		return nil, fmt.Errorf("probability weights sum to zero")
	}

	return cdf, nil
}

// search returns the smallest index i such that cdf[i] > val
func search(cdf []float64, val float64) int {
	i := sort.Search(len(cdf), func(i int) bool { return cdf[i] > val })
	if i == len(cdf) {
		i--
	}

	return i
}
