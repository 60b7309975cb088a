package estimate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ParticleTrajectory is a sequence of particle filter estimates indexed by time step.
// It always stores the weighted mean and effective sample size of every step and,
// if requested, the full weighted particle cloud so that it can be queried later.
type ParticleTrajectory struct {
	dim       int
	particles int
	n         int
	mean      []float64
	ess       []float64
	// clouds stores dim x particles row-major blocks, one per step
	clouds []float64
	// weights stores particle weights, one block per step
	weights []float64
}

// NewParticleTrajectory creates new ParticleTrajectory with capacity for steps estimates of dimension dim.
// If keepClouds is true, particle clouds of size particles are stored at every step.
// It returns error if any of the sizes is not positive.
func NewParticleTrajectory(steps, dim, particles int, keepClouds bool) (*ParticleTrajectory, error) {
	if steps <= 0 || dim <= 0 || particles <= 0 {
		return nil, fmt.Errorf("invalid trajectory size: [%d x %d x %d]", steps, dim, particles)
	}

	t := &ParticleTrajectory{
		dim:       dim,
		particles: particles,
		mean:      make([]float64, steps*dim),
		ess:       make([]float64, steps),
	}

	if keepClouds {
		t.clouds = make([]float64, steps*dim*particles)
		t.weights = make([]float64, steps*particles)
	}

	return t, nil
}

// Append stores weighted mean together with particles x (stored in columns) and their weights w.
// It returns error if the trajectory is full or the dimensions are invalid.
func (t *ParticleTrajectory) Append(mean mat.Vector, x mat.Matrix, w []float64) error {
	if t.n == len(t.ess) {
		return fmt.Errorf("trajectory full: %d steps", t.n)
	}

	r, c := x.Dims()
	if mean.Len() != t.dim || r != t.dim || c != t.particles || len(w) != t.particles {
		return fmt.Errorf("invalid estimate dimensions. Mean: %d, Particles: [%d x %d], Weights: %d",
			mean.Len(), r, c, len(w))
	}

	for i := 0; i < t.dim; i++ {
		t.mean[t.n*t.dim+i] = mean.AtVec(i)
	}
	t.ess[t.n] = ESS(w)

	if t.clouds != nil {
		block := t.clouds[t.n*t.dim*t.particles : (t.n+1)*t.dim*t.particles]
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				block[i*c+j] = x.At(i, j)
			}
		}
		copy(t.weights[t.n*t.particles:(t.n+1)*t.particles], w)
	}
	t.n++

	return nil
}

// Len returns number of stored steps
func (t *ParticleTrajectory) Len() int { return t.n }

// Dim returns state dimension
func (t *ParticleTrajectory) Dim() int { return t.dim }

// Particles returns number of particles
func (t *ParticleTrajectory) Particles() int { return t.particles }

// HasClouds reports whether particle clouds are stored
func (t *ParticleTrajectory) HasClouds() bool { return t.clouds != nil }

// Mean returns weighted particle mean at step k.
// It panics if k is out of range.
func (t *ParticleTrajectory) Mean(k int) mat.Vector {
	t.check(k)
	return mat.NewVecDense(t.dim, t.mean[k*t.dim:(k+1)*t.dim])
}

// ESS returns effective sample size at step k.
// It panics if k is out of range.
func (t *ParticleTrajectory) ESS(k int) float64 {
	t.check(k)
	return t.ess[k]
}

// Means returns stored means as a matrix with one row per step.
// It returns nil if the trajectory is empty.
func (t *ParticleTrajectory) Means() *mat.Dense {
	if t.n == 0 {
		return nil
	}

	return mat.NewDense(t.n, t.dim, t.mean[:t.n*t.dim])
}

// Component returns a copy of the time series of i-th state component.
func (t *ParticleTrajectory) Component(i int) []float64 {
	return column(t.mean, t.n, t.dim, i)
}

// Cloud returns particles stored in columns and their weights at step k.
// It returns error if clouds are not stored. It panics if k is out of range.
func (t *ParticleTrajectory) Cloud(k int) (*mat.Dense, []float64, error) {
	t.check(k)
	if t.clouds == nil {
		return nil, nil, fmt.Errorf("particle clouds not stored")
	}

	x := mat.NewDense(t.dim, t.particles, t.clouds[k*t.dim*t.particles:(k+1)*t.dim*t.particles])
	w := t.weights[k*t.particles : (k+1)*t.particles]

	return x, w, nil
}

// Percentiles returns weighted quantiles ps of every state component at step k.
// The result stores quantiles of i-th component in its i-th row.
// It returns error if clouds are not stored or ps are invalid.
func (t *ParticleTrajectory) Percentiles(k int, ps []float64) (*mat.Dense, error) {
	x, w, err := t.Cloud(k)
	if err != nil {
		return nil, err
	}

	return WeightedPercentiles(x, w, ps)
}

// Band returns time series of weighted quantile p of i-th state component.
// It returns error if clouds are not stored or p is invalid.
func (t *ParticleTrajectory) Band(i int, p float64) ([]float64, error) {
	if t.clouds == nil {
		return nil, fmt.Errorf("particle clouds not stored")
	}

	if i < 0 || i >= t.dim {
		return nil, fmt.Errorf("invalid component: %d", i)
	}

	band := make([]float64, t.n)
	for k := range band {
		q, err := t.Percentiles(k, []float64{p})
		if err != nil {
			return nil, err
		}
		band[k] = q.At(i, 0)
	}

	return band, nil
}

func (t *ParticleTrajectory) check(k int) {
	if k < 0 || k >= t.n {
		panic(fmt.Sprintf("estimate: step %d out of range [0, %d)", k, t.n))
	}
}

// WeightedPercentiles computes weighted quantiles ps, each in [0, 1], of the particles
// stored in columns of x with weights w. The i-th row of the result holds quantiles
// of the i-th state component. It returns error if the inputs are invalid.
func WeightedPercentiles(x mat.Matrix, w []float64, ps []float64) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != len(w) {
		return nil, fmt.Errorf("invalid weights count: %d != %d", len(w), c)
	}

	if len(ps) == 0 {
		return nil, fmt.Errorf("no quantiles requested")
	}

	for _, p := range ps {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return nil, fmt.Errorf("invalid quantile: %v", p)
		}
	}

	if floats.Sum(w) <= 0 {
		return nil, fmt.Errorf("invalid weights: sum is not positive")
	}

	out := mat.NewDense(r, len(ps), nil)
	vals := make([]float64, c)
	inds := make([]int, c)
	ws := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(vals, i, x)
		floats.Argsort(vals, inds)
		for j, idx := range inds {
			ws[j] = w[idx]
		}
		for j, p := range ps {
			out.Set(i, j, stat.Quantile(p, stat.Empirical, vals, ws))
		}
	}

	return out, nil
}

// ESS returns effective sample size of normalized weights w.
func ESS(w []float64) float64 {
	sum := 0.0
	for _, v := range w {
		sum += v * v
	}

	if sum == 0 {
		return 0
	}

	return 1 / sum
}

func sqrt(v float64) float64 {
	if v < 0 {
		return math.NaN()
	}

	return math.Sqrt(v)
}
