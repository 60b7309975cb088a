// Package batch runs filters over whole measurement sequences.
//
// RunUKF and RunPF discretize a continuous-time model with RK4, run the filter
// recursion step by step and collect the estimates into preallocated trajectories.
// Both check ctx between steps: if ctx is done or a step fails, the trajectory
// collected so far is returned together with the error.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/milosgajdos/go-vibid/estimate"
	"github.com/milosgajdos/go-vibid/kalman/ukf"
	"github.com/milosgajdos/go-vibid/ode"
	"github.com/milosgajdos/go-vibid/particle"
	"github.com/milosgajdos/go-vibid/particle/bf"
	"github.com/milosgajdos/go-vibid/sim"
	metrics "github.com/rcrowley/go-metrics"
	"gonum.org/v1/gonum/mat"
)

const (
	// MetricUKFStep times UKF steps
	MetricUKFStep = "batch.ukf.step"
	// MetricPFStep times particle filter steps
	MetricPFStep = "batch.pf.step"
)

// UKFInput contains UKF batch inputs
type UKFInput struct {
	// Model is continuous-time model of the augmented state
	Model filter.ContinuousModel
	// X0 is initial state estimate
	X0 mat.Vector
	// P0 is initial state covariance
	P0 mat.Symmetric
	// Measurements contains one measurement per step
	Measurements []mat.Vector
	// Inputs contains one input per step; nil means the model has no input
	Inputs []mat.Vector
	// Q is process noise covariance
	Q mat.Symmetric
	// R is measurement noise covariance
	R mat.Symmetric
	// Step is integration step
	Step float64
	// Config is UKF configuration; ukf.DefaultConfig is used if nil
	Config *ukf.Config
	// Logger logs filter warnings; nothing is logged if nil
	Logger *slog.Logger
	// Metrics is registry which metrics are registered with; private registry is used if nil
	Metrics metrics.Registry
}

// PFInput contains particle filter batch inputs.
// Initial particles are either given by Particles0 and Weights0 or drawn from Normal distribution given by X0 and P0.
type PFInput struct {
	// Model is continuous-time model of the augmented state
	Model filter.ContinuousModel
	// Particles0 contains initial particles in its columns
	Particles0 mat.Matrix
	// Weights0 contains initial particle weights; equal weights are used if nil
	Weights0 []float64
	// X0 is mean of initial particles used if Particles0 is nil
	X0 mat.Vector
	// P0 is covariance of initial particles used if Particles0 is nil
	P0 mat.Symmetric
	// Measurements contains one measurement per step
	Measurements []mat.Vector
	// Inputs contains one input per step; nil means the model has no input
	Inputs []mat.Vector
	// Q is process noise covariance
	Q mat.Symmetric
	// R is measurement noise covariance
	R mat.Symmetric
	// Step is integration step
	Step float64
	// Config is particle filter configuration
	Config *bf.Config
	// KeepClouds stores weighted particle clouds of every step
	KeepClouds bool
	// Logger logs filter warnings; nothing is logged if nil
	Logger *slog.Logger
	// Metrics is registry which metrics are registered with; private registry is used if nil
	Metrics metrics.Registry
}

// RunUKF runs UKF over all measurements in in and returns the trajectory of its estimates.
// It returns nil trajectory and error which wraps filter.ErrInvalidConfig if the inputs are invalid.
// If ctx is done or a step fails, the trajectory of the completed steps is returned along with the error.
func RunUKF(ctx context.Context, in UKFInput) (*estimate.Trajectory, error) {
	if in.X0 == nil || in.P0 == nil {
		return nil, fmt.Errorf("%w: missing initial condition", filter.ErrInvalidConfig)
	}

	model, err := ode.Discretize(in.Model, in.Step)
	if err != nil {
		return nil, err
	}

	if err := checkSequences(model, in.Measurements, in.Inputs); err != nil {
		return nil, err
	}

	reg := registry(in.Metrics)

	c := ukf.DefaultConfig()
	if in.Config != nil {
		cc := *in.Config
		c = &cc
	}
	if c.Metrics == nil {
		c.Metrics = reg
	}

	f, err := ukf.New(model, sim.NewInitCond(in.X0, in.P0), in.Q, in.R, c)
	if err != nil {
		return nil, err
	}

	nx, _, _ := model.SystemDims()
	traj, err := estimate.NewTrajectory(len(in.Measurements), nx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", filter.ErrInvalidConfig, err)
	}

	log := logger(in.Logger).With(slog.String("filter", "ukf"))
	timer := metrics.GetOrRegisterTimer(MetricUKFStep, reg)

	x := mat.VecDenseCopyOf(in.X0)
	for k, z := range in.Measurements {
		if err := ctx.Err(); err != nil {
			log.Info("run canceled", slog.Int("step", k))
			return traj, err
		}

		start := time.Now()
		est, err := f.Run(x, input(in.Inputs, k), z)
		if err != nil {
			log.Error("step failed", slog.Int("step", k), slog.Any("error", err))
			return traj, fmt.Errorf("step %d: %w", k, err)
		}
		timer.UpdateSince(start)

		diag := f.Diagnostics()
		if diag.SigmaRepaired {
			log.Warn("sigma point covariance repaired", slog.Int("step", k))
		}
		if diag.CovRepaired {
			log.Warn("posterior covariance repaired", slog.Int("step", k), slog.Float64("rcond", diag.RCond))
		}

		if err := traj.Append(est); err != nil {
			return traj, err
		}
		x.CopyVec(est.Val())
	}

	log.Debug("run finished", slog.Int("steps", traj.Len()))

	return traj, nil
}

// RunPF runs particle filter over all measurements in in and returns the trajectory of its estimates.
// Particle estimates are computed after the particles are reweighted and before they are resampled.
// Weight degeneracy does not stop the run: the step is logged, the particles keep their previous weights
// and the run continues.
// It returns nil trajectory and error which wraps filter.ErrInvalidConfig if the inputs are invalid.
// If ctx is done or a step fails, the trajectory of the completed steps is returned along with the error.
func RunPF(ctx context.Context, in PFInput) (*estimate.ParticleTrajectory, error) {
	if in.Config == nil {
		return nil, fmt.Errorf("%w: missing particle filter configuration", filter.ErrInvalidConfig)
	}

	model, err := ode.Discretize(in.Model, in.Step)
	if err != nil {
		return nil, err
	}

	if err := checkSequences(model, in.Measurements, in.Inputs); err != nil {
		return nil, err
	}

	reg := registry(in.Metrics)

	c := *in.Config
	if c.Metrics == nil {
		c.Metrics = reg
	}

	var f *bf.BF
	switch {
	case in.Particles0 != nil:
		f, err = bf.NewFromParticles(model, in.Particles0, in.Weights0, in.Q, in.R, &c)
	case in.X0 != nil && in.P0 != nil:
		f, err = bf.New(model, sim.NewInitCond(in.X0, in.P0), in.Q, in.R, &c)
	default:
		err = fmt.Errorf("%w: missing initial particles or initial condition", filter.ErrInvalidConfig)
	}
	if err != nil {
		return nil, err
	}

	nx, _, _ := model.SystemDims()
	_, ns := f.Particles().Dims()
	traj, err := estimate.NewParticleTrajectory(len(in.Measurements), nx, ns, in.KeepClouds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", filter.ErrInvalidConfig, err)
	}

	log := logger(in.Logger).With(slog.String("filter", "pf"))
	timer := metrics.GetOrRegisterTimer(MetricPFStep, reg)

	for k, z := range in.Measurements {
		if err := ctx.Err(); err != nil {
			log.Info("run canceled", slog.Int("step", k))
			return traj, err
		}

		start := time.Now()
		est, err := step(f, input(in.Inputs, k), z)
		if err != nil {
			log.Error("step failed", slog.Int("step", k), slog.Any("error", err))
			return traj, fmt.Errorf("step %d: %w", k, err)
		}
		timer.UpdateSince(start)

		diag := f.Diagnostics()
		if diag.Degenerate {
			log.Warn("degenerate particle weights", slog.Int("step", k))
		} else if diag.Underflow {
			log.Warn("particle likelihoods underflow", slog.Int("step", k), slog.Float64("ess", diag.ESS))
		}

		if err := traj.Append(est.Val(), est.particles, est.weights); err != nil {
			return traj, err
		}

		if _, err := f.Resample(); err != nil {
			log.Error("resampling failed", slog.Int("step", k), slog.Any("error", err))
			return traj, fmt.Errorf("step %d: %w", k, err)
		}
	}

	log.Debug("run finished", slog.Int("steps", traj.Len()))

	return traj, nil
}

// cloud is particle estimate together with the weighted particles it was computed from
type cloud struct {
	filter.Estimate
	particles mat.Matrix
	weights   []float64
}

// step propagates and reweights particles of p. Degenerate weights are tolerated:
// the estimate is then computed from the propagated particles with their previous weights.
func step(p particle.Particle, u, z mat.Vector) (*cloud, error) {
	if _, err := p.Predict(u); err != nil {
		return nil, err
	}

	est, err := p.Update(u, z)
	if err != nil {
		if !errors.Is(err, bf.ErrDegenerateWeights) {
			return nil, err
		}
		if est, err = p.Estimate(); err != nil {
			return nil, err
		}
	}

	w := p.Weights()
	weights := make([]float64, w.Len())
	for i := range weights {
		weights[i] = w.AtVec(i)
	}

	return &cloud{
		Estimate:  est,
		particles: p.Particles(),
		weights:   weights,
	}, nil
}

// checkSequences checks measurements and inputs match each other and the dimensions of m.
// Inputs may be nil, in which case no input is passed to m.
func checkSequences(m filter.Model, measurements, inputs []mat.Vector) error {
	if len(measurements) == 0 {
		return fmt.Errorf("%w: no measurements", filter.ErrInvalidConfig)
	}

	if inputs != nil && len(inputs) != len(measurements) {
		return fmt.Errorf("%w: %d inputs for %d measurements", filter.ErrInvalidConfig, len(inputs), len(measurements))
	}

	_, nu, ny := m.SystemDims()
	for k, z := range measurements {
		if z == nil || z.Len() != ny {
			return fmt.Errorf("%w: invalid measurement at step %d", filter.ErrInvalidConfig, k)
		}
	}

	for k, u := range inputs {
		if u == nil || u.Len() != nu {
			return fmt.Errorf("%w: invalid input at step %d", filter.ErrInvalidConfig, k)
		}
	}

	return nil
}

func input(inputs []mat.Vector, k int) mat.Vector {
	if inputs == nil {
		return nil
	}

	return inputs[k]
}

func registry(r metrics.Registry) metrics.Registry {
	if r == nil {
		return metrics.NewRegistry()
	}

	return r
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}

	return l
}
