// Package bf implements Bootstrap Filter a.k.a. SIR Particle Filter.
package bf

import (
	"context"
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/milosgajdos/go-vibid/estimate"
	"github.com/milosgajdos/go-vibid/internal/parallel"
	vmatrix "github.com/milosgajdos/go-vibid/matrix"
	"github.com/milosgajdos/go-vibid/rnd"
	"github.com/milosgajdos/matrix"
	metrics "github.com/rcrowley/go-metrics"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

const (
	// psdTol is tolerance used when validating noise covariances
	psdTol = 1e-9
	// DefaultThreshold is ESS threshold used by ResampleESS when none is configured
	DefaultThreshold = 0.5
	// MetricUnderflow counts updates whose likelihoods all underflowed
	MetricUnderflow = "pf.weights.underflow"
	// MetricDegenerate counts updates which left no particle with positive weight
	MetricDegenerate = "pf.weights.degenerate"
	// MetricResampled counts resampling steps
	MetricResampled = "pf.resampled"
	// MetricESS is the effective sample size after the last update
	MetricESS = "pf.ess"
)

// ErrDegenerateWeights is returned when particle weights can not be normalized
var ErrDegenerateWeights = fmt.Errorf("degenerate particle weights: %w", filter.ErrNumericalInstability)

// Policy decides when particles are resampled
type Policy int

const (
	// ResampleAlways resamples particles on every step
	ResampleAlways Policy = iota
	// ResampleESS resamples particles when ESS drops below Threshold*Particles
	ResampleESS
	// ResampleNever never resamples particles
	ResampleNever
)

// String implements fmt.Stringer
func (p Policy) String() string {
	switch p {
	case ResampleAlways:
		return "always"
	case ResampleESS:
		return "ess"
	case ResampleNever:
		return "never"
	}

	return fmt.Sprintf("Policy(%d)", int(p))
}

// Scheme is resampling scheme
type Scheme int

const (
	// Systematic is systematic resampling
	Systematic Scheme = iota
	// Multinomial is multinomial (roulette wheel) resampling
	Multinomial
)

// String implements fmt.Stringer
func (s Scheme) String() string {
	switch s {
	case Systematic:
		return "systematic"
	case Multinomial:
		return "multinomial"
	}

	return fmt.Sprintf("Scheme(%d)", int(s))
}

// Config contains Bootstrap Filter configuration
type Config struct {
	// Particles is number of filter particles
	Particles int
	// Policy is resampling policy
	Policy Policy
	// Scheme is resampling scheme
	Scheme Scheme
	// Threshold is a fraction of Particles ESS is compared to by ResampleESS.
	// DefaultThreshold is used if Threshold is not positive.
	Threshold float64
	// Roughen scales the optimal Gaussian kernel bandwidth used to jitter
	// resampled particles. Resampled particles are not jittered if Roughen is 0.
	Roughen float64
	// Workers is the number of goroutines which propagate and weight particles.
	// GOMAXPROCS is used if Workers is not positive.
	Workers int
	// Src is random source all particle draws are made from
	Src rand.Source
	// Metrics is registry which filter metrics are registered with.
	// New private registry is created if Metrics is nil.
	Metrics metrics.Registry
}

// Diagnostics reports numerical conditions encountered in the last filter step
type Diagnostics struct {
	// Underflow is set if all particle likelihoods underflowed in linear domain
	Underflow bool
	// Degenerate is set if particle weights could not be normalized
	Degenerate bool
	// Resampled is set if particles were resampled
	Resampled bool
	// ESS is effective sample size after the last update
	ESS float64
}

// BF is a Bootstrap Filter a.k.a. SIR Particle Filter.
// For more information about Bootstrap Filter see:
// https://en.wikipedia.org/wiki/Particle_filter#The_bootstrap_filter
type BF struct {
	// model is bootstrap filter model
	model filter.Model
	// w stores particle weights
	w []float64
	// x stores filter particles as column vectors
	x *mat.Dense
	// q is process noise covariance
	q *mat.SymDense
	// errPDF is PDF (Probability Density Function) of measurement error
	errPDF *distmv.Normal
	// logL stores particle log likelihoods of the last measurement
	logL []float64
	// c is filter configuration
	c Config
	// diag are diagnostics of the last step
	diag Diagnostics
	// underflow counts likelihood underflows
	underflow metrics.Counter
	// degenerate counts degenerate weights
	degenerate metrics.Counter
	// resampled counts resampling steps
	resampled metrics.Counter
	// ess is effective sample size gauge
	ess metrics.GaugeFloat64
}

// New creates new Bootstrap Filter with the following parameters and returns it:
//   - m:     system model
//   - init:  initial condition of the filter
//   - q:     process noise covariance
//   - r:     measurement noise covariance
//   - c:     filter configuration
//
// Particles are drawn from Normal distribution given by init using c.Src and have equal weights.
// It returns error which wraps filter.ErrInvalidConfig if the configuration is invalid.
func New(m filter.Model, init filter.InitCond, q, r mat.Symmetric, c *Config) (*BF, error) {
	if init == nil {
		return nil, fmt.Errorf("%w: missing initial condition", filter.ErrInvalidConfig)
	}

	if err := validate(m, q, r, c); err != nil {
		return nil, err
	}

	nx, _, _ := m.SystemDims()
	if init.State().Len() != nx || init.Cov().SymmetricDim() != nx {
		return nil, fmt.Errorf("%w: invalid initial condition dimensions. State: %d, Cov: %d",
			filter.ErrInvalidConfig, init.State().Len(), init.Cov().SymmetricDim())
	}

	if !vmatrix.IsPSD(init.Cov(), psdTol) {
		return nil, fmt.Errorf("%w: initial covariance is not positive semi-definite", filter.ErrInvalidConfig)
	}

	// draw particles from distribution with covariance init.Cov()
	x, err := rnd.WithCovN(init.Cov(), c.Particles, c.Src)
	if err != nil {
		return nil, fmt.Errorf("failed to generate filter particles: %w", err)
	}

	// center particles around initial state
	for i := 0; i < nx; i++ {
		row := x.RawRowView(i)
		floats.AddConst(init.State().AtVec(i), row)
	}

	return newBF(m, x, nil, q, r, c)
}

// NewFromParticles creates new Bootstrap Filter whose particles are initialized to the columns of x
// and their weights to w. Weights are normalized to sum up to 1. If w is nil, particles have equal weights.
// The number of particles is given by the number of columns of x; c.Particles is ignored.
// It returns error which wraps filter.ErrInvalidConfig if the configuration is invalid.
func NewFromParticles(m filter.Model, x mat.Matrix, w []float64, q, r mat.Symmetric, c *Config) (*BF, error) {
	if x == nil {
		return nil, fmt.Errorf("%w: missing particles", filter.ErrInvalidConfig)
	}

	_, cols := x.Dims()
	if c != nil {
		cc := *c
		cc.Particles = cols
		c = &cc
	}

	if err := validate(m, q, r, c); err != nil {
		return nil, err
	}

	nx, _, _ := m.SystemDims()
	if rows, _ := x.Dims(); rows != nx {
		return nil, fmt.Errorf("%w: invalid particle dimension: %d != %d", filter.ErrInvalidConfig, rows, nx)
	}

	if !vmatrix.IsFinite(x) {
		return nil, fmt.Errorf("%w: particles contain non-finite values", filter.ErrInvalidConfig)
	}

	return newBF(m, mat.DenseCopyOf(x), w, q, r, c)
}

func validate(m filter.Model, q, r mat.Symmetric, c *Config) error {
	if m == nil || q == nil || r == nil || c == nil {
		return fmt.Errorf("%w: missing model, noise or configuration", filter.ErrInvalidConfig)
	}

	// must have at least one particle; can't be negative
	if c.Particles <= 0 {
		return fmt.Errorf("%w: invalid particle count: %d", filter.ErrInvalidConfig, c.Particles)
	}

	if c.Src == nil {
		return fmt.Errorf("%w: missing random source", filter.ErrInvalidConfig)
	}

	if c.Roughen < 0 || math.IsNaN(c.Roughen) {
		return fmt.Errorf("%w: invalid roughening factor: %v", filter.ErrInvalidConfig, c.Roughen)
	}

	if c.Threshold > 1 || math.IsNaN(c.Threshold) {
		return fmt.Errorf("%w: invalid ESS threshold: %v", filter.ErrInvalidConfig, c.Threshold)
	}

	switch c.Policy {
	case ResampleAlways, ResampleESS, ResampleNever:
	default:
		return fmt.Errorf("%w: unknown resampling policy: %v", filter.ErrInvalidConfig, c.Policy)
	}

	switch c.Scheme {
	case Systematic, Multinomial:
	default:
		return fmt.Errorf("%w: unknown resampling scheme: %v", filter.ErrInvalidConfig, c.Scheme)
	}

	nx, _, ny := m.SystemDims()
	if nx <= 0 || ny <= 0 {
		return fmt.Errorf("%w: invalid model dimensions: [%d x %d]", filter.ErrInvalidConfig, nx, ny)
	}

	if q.SymmetricDim() != nx {
		return fmt.Errorf("%w: invalid process noise dimension: %d != %d", filter.ErrInvalidConfig, q.SymmetricDim(), nx)
	}

	if r.SymmetricDim() != ny {
		return fmt.Errorf("%w: invalid measurement noise dimension: %d != %d", filter.ErrInvalidConfig, r.SymmetricDim(), ny)
	}

	if !vmatrix.IsPSD(q, psdTol) {
		return fmt.Errorf("%w: process noise covariance is not positive semi-definite", filter.ErrInvalidConfig)
	}

	return nil
}

func newBF(m filter.Model, x *mat.Dense, w []float64, q, r mat.Symmetric, c *Config) (*BF, error) {
	_, p := x.Dims()

	// measurement likelihood requires a positive definite measurement noise covariance
	_, _, nz := m.SystemDims()
	errPDF, ok := distmv.NewNormal(make([]float64, nz), r, nil)
	if !ok {
		return nil, fmt.Errorf("%w: measurement noise covariance is not positive definite", filter.ErrInvalidConfig)
	}

	weights := make([]float64, p)
	if w == nil {
		// Initialize particle weights to equal probabilities:
		// particle weights must sum up to 1 to represent probability
		for i := range weights {
			weights[i] = 1 / float64(p)
		}
	} else {
		if len(w) != p {
			return nil, fmt.Errorf("%w: invalid weights count: %d != %d", filter.ErrInvalidConfig, len(w), p)
		}
		for _, v := range w {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: invalid particle weight: %v", filter.ErrInvalidConfig, v)
			}
		}
		sum := floats.Sum(w)
		if sum <= 0 {
			return nil, fmt.Errorf("%w: particle weights sum to zero", filter.ErrInvalidConfig)
		}
		floats.ScaleTo(weights, 1/sum, w)
	}

	qc := mat.NewSymDense(q.SymmetricDim(), nil)
	qc.CopySym(q)

	cfg := *c
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}

	reg := cfg.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	return &BF{
		model:      m,
		w:          weights,
		x:          x,
		q:          qc,
		errPDF:     errPDF,
		logL:       make([]float64, p),
		c:          cfg,
		diag:       Diagnostics{ESS: estimate.ESS(weights)},
		underflow:  metrics.GetOrRegisterCounter(MetricUnderflow, reg),
		degenerate: metrics.GetOrRegisterCounter(MetricDegenerate, reg),
		resampled:  metrics.GetOrRegisterCounter(MetricResampled, reg),
		ess:        metrics.GetOrRegisterGaugeFloat64(MetricESS, reg),
	}, nil
}

// Predict propagates filter particles to the next step given input u and returns
// the weighted estimate of the propagated particles.
// Process noise samples are drawn for all particles before the particles are propagated
// in parallel, so the result does not depend on the number of workers.
// It returns error if any particle fails to be propagated, in which case the particles are not modified.
func (b *BF) Predict(u mat.Vector) (filter.Estimate, error) {
	nx, nu, _ := b.model.SystemDims()
	if u != nil && u.Len() != nu {
		return nil, fmt.Errorf("%w: invalid input dimension: %d", filter.ErrInvalidConfig, u.Len())
	}

	_, cols := b.x.Dims()

	// process noise samples are drawn sequentially from the filter source
	v, err := rnd.WithCovN(b.q, cols, b.c.Src)
	if err != nil {
		return nil, fmt.Errorf("failed to draw process noise: %w", err)
	}

	err = parallel.For(context.Background(), cols, b.c.Workers, func(i int) error {
		next, err := b.model.Propagate(b.x.ColView(i), u)
		if err != nil {
			return fmt.Errorf("particle %d state propagation failed: %w", i, err)
		}

		if next.Len() != nx {
			return fmt.Errorf("%w: propagated particle %d dimension: %d", filter.ErrInvalidConfig, i, next.Len())
		}

		for j := 0; j < nx; j++ {
			val := next.AtVec(j) + v.At(j, i)
			if math.IsNaN(val) || math.IsInf(val, 0) {
				return fmt.Errorf("%w: propagated particle %d", filter.ErrNonFinite, i)
			}
			v.Set(j, i, val)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// update filter particles
	b.x.Copy(v)

	return b.Estimate()
}

// Update reweights filter particles using measurement z given input u and returns
// the weighted estimate of the particles.
// Weights are updated in log domain and normalized with log-sum-exp, so that particles keep
// their relative weights even when the likelihoods of all of them underflow.
// It returns error which wraps ErrDegenerateWeights if no particle is left with positive weight,
// in which case the weights are not modified.
func (b *BF) Update(u, z mat.Vector) (filter.Estimate, error) {
	_, nu, ny := b.model.SystemDims()
	if z.Len() != ny {
		return nil, fmt.Errorf("%w: invalid measurement dimension: %d", filter.ErrInvalidConfig, z.Len())
	}

	if u != nil && u.Len() != nu {
		return nil, fmt.Errorf("%w: invalid input dimension: %d", filter.ErrInvalidConfig, u.Len())
	}

	_, cols := b.x.Dims()
	logL := make([]float64, cols)

	err := parallel.For(context.Background(), cols, b.c.Workers, func(i int) error {
		y, err := b.model.Observe(b.x.ColView(i), u)
		if err != nil {
			return fmt.Errorf("particle %d state observation failed: %w", i, err)
		}

		if y.Len() != ny {
			return fmt.Errorf("%w: observed particle %d dimension: %d", filter.ErrInvalidConfig, i, y.Len())
		}

		if !vmatrix.IsFinite(y) {
			return fmt.Errorf("%w: observed particle %d", filter.ErrNonFinite, i)
		}

		// inn is a diff between measurement vector and particle output
		inn := make([]float64, ny)
		for j := range inn {
			inn[j] = z.AtVec(j) - y.AtVec(j)
		}
		logL[i] = b.errPDF.LogProb(inn)

		return nil
	})
	if err != nil {
		return nil, err
	}

	logW := make([]float64, cols)
	for i := range logW {
		logW[i] = math.Log(b.w[i]) + logL[i]
	}

	diag := Diagnostics{
		Underflow: math.Exp(floats.Max(logL)) == 0,
	}
	if diag.Underflow {
		b.underflow.Inc(1)
	}

	maxW := floats.Max(logW)
	if math.IsInf(maxW, 0) || math.IsNaN(maxW) {
		diag.Degenerate = true
		diag.ESS = b.diag.ESS
		b.diag = diag
		b.degenerate.Inc(1)
		return nil, fmt.Errorf("%w: max log weight: %v", ErrDegenerateWeights, maxW)
	}

	lse := floats.LogSumExp(logW)
	for i := range logW {
		logW[i] = math.Exp(logW[i] - lse)
	}
	// normalize the particle weights so they express probability
	floats.Scale(1/floats.Sum(logW), logW)

	copy(b.w, logW)
	copy(b.logL, logL)

	diag.ESS = estimate.ESS(b.w)
	b.diag = diag
	b.ess.Update(diag.ESS)

	return b.Estimate()
}

// Estimate returns weighted mean and covariance of filter particles.
func (b *BF) Estimate() (filter.Estimate, error) {
	rows, cols := b.x.Dims()

	mean := mat.NewVecDense(rows, nil)
	for c := 0; c < cols; c++ {
		mean.AddScaledVec(mean, b.w[c], b.x.ColView(c))
	}

	cov := mat.NewSymDense(rows, nil)
	d := mat.NewVecDense(rows, nil)
	for c := 0; c < cols; c++ {
		if b.w[c] == 0 {
			continue
		}
		d.SubVec(b.x.ColView(c), mean)
		cov.SymRankOne(cov, b.w[c], d)
	}

	return estimate.NewBaseWithCov(mean, cov)
}

// Resample resamples filter particles according to the configured policy and scheme and
// reports whether the particles were resampled. Resampled particles have equal weights.
// If roughening is configured, resampled particles are jittered with Gaussian noise whose covariance
// is the particle covariance scaled by the square of the kernel bandwidth.
// It returns error if it fails to draw new filter particles.
func (b *BF) Resample() (bool, error) {
	switch b.c.Policy {
	case ResampleNever:
		return false, nil
	case ResampleESS:
		_, cols := b.x.Dims()
		if estimate.ESS(b.w) >= b.c.Threshold*float64(cols) {
			return false, nil
		}
	}

	if err := b.resample(); err != nil {
		return false, err
	}

	b.diag.Resampled = true
	b.resampled.Inc(1)

	return true, nil
}

func (b *BF) resample() error {
	draw := rnd.SystematicDrawN
	if b.c.Scheme == Multinomial {
		draw = rnd.RouletteDrawN
	}

	// randomly pick new particles based on their weights
	// indices is a slice of column indices to b.x
	indices, err := draw(b.w, len(b.w), b.c.Src)
	if err != nil {
		return fmt.Errorf("failed to sample filter particles: %w", err)
	}

	rows, cols := b.x.Dims()
	x := mat.NewDense(rows, cols, nil)
	for c := range indices {
		x.ColView(c).(*mat.VecDense).CopyVec(b.x.ColView(indices[c]))
	}

	if b.c.Roughen > 0 {
		if err := b.roughen(x); err != nil {
			return err
		}
	}

	b.x.Copy(x)

	// we have resampled particles, therefore we must reinitialize their weights, too:
	// weights will have the same probability: 1/len(b.w): they must sum up to 1
	for i := range b.w {
		b.w[i] = 1 / float64(len(b.w))
	}

	return nil
}

func (b *BF) roughen(x *mat.Dense) error {
	rows, cols := x.Dims()
	if cols < 2 {
		return nil
	}

	// We need to calculate covariance matrix of particles
	cov, err := matrix.Cov(x, "cols")
	if err != nil {
		return fmt.Errorf("failed to calculate covariance matrix: %w", err)
	}

	// randomly draw values with given particle covariance
	m, err := rnd.WithCovN(cov, cols, b.c.Src)
	if err != nil {
		return fmt.Errorf("failed to draw random particle perturbations: %w", err)
	}

	m.Scale(b.c.Roughen*AlphaGauss(rows, cols), m)

	// add random perturbations to the new particles
	x.Add(x, m)

	return nil
}

// Run runs one step of Bootstrap Filter for given input u and measurement z.
// It propagates and reweights the particles, computes the weighted estimate and then
// resamples the particles according to the configured policy.
// It returns the estimate computed before the particles are resampled.
func (b *BF) Run(u, z mat.Vector) (filter.Estimate, error) {
	if _, err := b.Predict(u); err != nil {
		return nil, err
	}

	est, err := b.Update(u, z)
	if err != nil {
		return nil, err
	}

	if _, err := b.Resample(); err != nil {
		return nil, err
	}

	return est, nil
}

// Particles returns BF particles
func (b *BF) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(b.x)

	return p
}

// Weights returns a vector containing BF particle weights
func (b *BF) Weights() mat.Vector {
	data := make([]float64, len(b.w))
	copy(data, b.w)

	return mat.NewVecDense(len(data), data)
}

// LogLikelihoods returns particle log likelihoods of the last measurement
func (b *BF) LogLikelihoods() []float64 {
	l := make([]float64, len(b.logL))
	copy(l, b.logL)

	return l
}

// ESS returns effective sample size of the current particle weights
func (b *BF) ESS() float64 {
	return estimate.ESS(b.w)
}

// Diagnostics returns diagnostics of the last filter step
func (b *BF) Diagnostics() Diagnostics {
	return b.diag
}

// AlphaGauss computes optimal regularization parameter for Gaussian kernel and returns it.
// r is the dimension of particles and c is the number of particles.
func AlphaGauss(r, c int) float64 {
	return math.Pow(4.0/(float64(c)*(float64(r)+2.0)), 1/(float64(r)+4.0))
}
