package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/milosgajdos/go-vibid/batch"
	"github.com/milosgajdos/go-vibid/config"
	"github.com/milosgajdos/go-vibid/estimate"
	"github.com/milosgajdos/go-vibid/sim"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

// results holds outputs of a single run
type results struct {
	scenario *config.Scenario
	truth    *sim.Result
	ukf      *estimate.Trajectory
	pf       *estimate.ParticleTrajectory
}

func loadScenario(cmd *cobra.Command) (*config.Scenario, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	if path == "" {
		return config.Default(), nil
	}

	return config.LoadFile(path)
}

func doConfig(cmd *cobra.Command, args []string) error {
	s, err := loadScenario(cmd)
	if err != nil {
		return err
	}

	data, err := s.Marshal()
	if err != nil {
		return err
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func doRun(cmd *cobra.Command, args []string) error {
	s, err := loadScenario(cmd)
	if err != nil {
		return err
	}

	steps, err := cmd.Flags().GetInt("steps")
	if err != nil {
		return err
	}
	if steps > 0 {
		s.Steps = steps
	}

	which, err := cmd.Flags().GetString("filter")
	if err != nil {
		return err
	}
	which = strings.ToLower(which)
	if which != "ukf" && which != "pf" && which != "both" {
		return fmt.Errorf("unknown filter: %q", which)
	}

	log, closer, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	reg := metrics.NewRegistry()

	inputs, err := s.Inputs()
	if err != nil {
		return err
	}

	measNoise, err := s.MeasurementNoiseSource()
	if err != nil {
		return err
	}

	truth, err := sim.Simulate(s.TrueModel(), s.TrueState(), inputs, s.Step, measNoise)
	if err != nil {
		return fmt.Errorf("failed to simulate scenario: %w", err)
	}
	log.Info("scenario simulated", slog.String("model", s.Model.Kind), slog.Int("steps", s.Steps))

	res := &results{scenario: s, truth: truth}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var runErr error
	if which == "ukf" || which == "both" {
		res.ukf, err = runUKF(ctx, s, truth, inputs, log, reg)
		if res.ukf == nil {
			return err
		}
		runErr = errors.Join(runErr, err)
	}

	if which == "pf" || which == "both" {
		res.pf, err = runPF(ctx, s, truth, inputs, log, reg)
		if res.pf == nil {
			return err
		}
		runErr = errors.Join(runErr, err)
	}

	if err := printSummary(cmd.OutOrStdout(), res); err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("out"); path != "" {
		if err := writeCSV(path, res); err != nil {
			return err
		}
		log.Info("estimates written", slog.String("path", path))
	}

	if path, _ := cmd.Flags().GetString("plot"); path != "" {
		files, err := savePlots(path, res)
		if err != nil {
			return err
		}
		log.Info("plots saved", slog.Any("files", files))
	}

	if ok, _ := cmd.Flags().GetBool("metrics"); ok {
		metrics.WriteOnce(reg, cmd.OutOrStdout())
	}

	return runErr
}

func runUKF(ctx context.Context, s *config.Scenario, truth *sim.Result, inputs []mat.Vector, log *slog.Logger, reg metrics.Registry) (*estimate.Trajectory, error) {
	ic := s.InitCond()

	q, err := s.Q()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	traj, err := batch.RunUKF(ctx, batch.UKFInput{
		Model:        s.FilterModel(),
		X0:           ic.State(),
		P0:           ic.Cov(),
		Measurements: truth.Measurements,
		Inputs:       inputs,
		Q:            q,
		R:            s.R(),
		Step:         s.Step,
		Config:       s.UKFConfig(),
		Logger:       log,
		Metrics:      reg,
	})
	if err != nil {
		log.Error("UKF run failed", slog.Any("error", err))
	}
	if traj != nil {
		log.Info("UKF finished", slog.Int("steps", traj.Len()), slog.Duration("elapsed", time.Since(start)))
	}

	return traj, err
}

func runPF(ctx context.Context, s *config.Scenario, truth *sim.Result, inputs []mat.Vector, log *slog.Logger, reg metrics.Registry) (*estimate.ParticleTrajectory, error) {
	ic := s.InitCond()

	q, err := s.Q()
	if err != nil {
		return nil, err
	}

	c, err := s.PFConfig()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	traj, err := batch.RunPF(ctx, batch.PFInput{
		Model:        s.FilterModel(),
		X0:           ic.State(),
		P0:           ic.Cov(),
		Measurements: truth.Measurements,
		Inputs:       inputs,
		Q:            q,
		R:            s.R(),
		Step:         s.Step,
		Config:       c,
		KeepClouds:   s.PF.KeepClouds,
		Logger:       log,
		Metrics:      reg,
	})
	if err != nil {
		log.Error("PF run failed", slog.Any("error", err))
	}
	if traj != nil {
		log.Info("PF finished", slog.Int("steps", traj.Len()), slog.Duration("elapsed", time.Since(start)))
	}

	return traj, err
}

// printSummary prints final parameter estimates and their relative errors over the second half of the run
func printSummary(w io.Writer, res *results) error {
	s := res.scenario
	params := s.TrueParams()
	offset := 2 * s.Dofs()

	fmt.Fprintf(w, "%-6s %10s", "param", "truth")
	if res.ukf != nil {
		fmt.Fprintf(w, " %10s %10s %10s", "ukf", "ukf_err", "ukf_std")
	}
	if res.pf != nil {
		fmt.Fprintf(w, " %10s %10s %10s", "pf", "pf_err", "pf_std")
	}
	fmt.Fprintln(w)

	for i, name := range s.ParamNames() {
		fmt.Fprintf(w, "%-6s %10.4f", name, params[i])
		if res.ukf != nil {
			if err := printParam(w, res.ukf.Component(offset+i), params[i]); err != nil {
				return err
			}
		}
		if res.pf != nil {
			if err := printParam(w, res.pf.Component(offset+i), params[i]); err != nil {
				return err
			}
		}
		fmt.Fprintln(w)
	}

	return nil
}

func printParam(w io.Writer, est []float64, truth float64) error {
	if len(est) == 0 {
		fmt.Fprintf(w, " %10s %10s %10s", "-", "-", "-")
		return nil
	}

	tail := est[len(est)/2:]
	ref := make([]float64, len(tail))
	for i := range ref {
		ref[i] = truth
	}

	mean, std, err := sim.RelativeError(tail, ref)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, " %10.4f %10.4f %10.4f", est[len(est)-1], mean, std)

	return nil
}
