// Package config loads estimation scenarios from YAML and builds filter inputs from them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/milosgajdos/go-vibid/kalman/ukf"
	"github.com/milosgajdos/go-vibid/noise"
	"github.com/milosgajdos/go-vibid/particle/bf"
	"github.com/milosgajdos/go-vibid/sim"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

const (
	// SDOF is single degree of freedom oscillator
	SDOF = "sdof"
	// TwoDOF is two degree of freedom oscillator
	TwoDOF = "2dof"
)

// Model describes the simulated mechanical system
type Model struct {
	// Kind is either sdof or 2dof
	Kind string `yaml:"kind"`
	// Mass contains known masses, one per degree of freedom
	Mass []float64 `yaml:"mass"`
	// Stiffness contains true stiffness coefficients, one per degree of freedom
	Stiffness []float64 `yaml:"stiffness"`
	// Damping contains true damping coefficients, one per degree of freedom
	Damping []float64 `yaml:"damping"`
}

// UKF contains unscented transform parameters
type UKF struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
	Kappa float64 `yaml:"kappa"`
}

// PF contains particle filter parameters
type PF struct {
	// Particles is number of particles
	Particles int `yaml:"particles"`
	// Policy is one of always, ess, never
	Policy string `yaml:"policy"`
	// Scheme is one of systematic, multinomial
	Scheme string `yaml:"scheme"`
	// Threshold is ESS threshold as a fraction of particles
	Threshold float64 `yaml:"threshold"`
	// Roughen scales roughening kernel bandwidth; 0 disables roughening
	Roughen float64 `yaml:"roughen"`
	// KeepClouds stores weighted particle clouds of every step
	KeepClouds bool `yaml:"keep_clouds"`
}

// Scenario is joint state and parameter estimation scenario
type Scenario struct {
	// Model is the simulated system
	Model Model `yaml:"model"`
	// Step is integration and sampling step
	Step float64 `yaml:"step"`
	// Steps is number of samples
	Steps int `yaml:"steps"`
	// Excitation is generated forcing signal
	Excitation sim.Excitation `yaml:"excitation"`
	// ExcitationFile overrides Excitation with samples read from a file
	ExcitationFile string `yaml:"excitation_file,omitempty"`
	// MeasurementNoise is variance of acceleration measurement noise
	MeasurementNoise float64 `yaml:"measurement_noise"`
	// NoiseFree simulates measurements without noise; filters still assume MeasurementNoise
	NoiseFree bool `yaml:"noise_free"`
	// ProcessIntensity contains diagonal of continuous-time process noise intensity of augmented state
	ProcessIntensity []float64 `yaml:"process_intensity"`
	// X0 is initial guess of augmented state
	X0 []float64 `yaml:"x0"`
	// P0 contains diagonal of initial covariance of augmented state
	P0 []float64 `yaml:"p0"`
	// Seed seeds all random draws of the scenario
	Seed uint64 `yaml:"seed"`
	// Workers is number of goroutines used by filters within a step
	Workers int `yaml:"workers"`
	// UKF contains UKF parameters
	UKF UKF `yaml:"ukf"`
	// PF contains particle filter parameters
	PF PF `yaml:"pf"`
}

// Default returns single degree of freedom scenario with m = 1, c = 0.3, k = 9
// started from rest and driven by a deterministic multi-sine input.
func Default() *Scenario {
	return &Scenario{
		Model: Model{
			Kind:      SDOF,
			Mass:      []float64{1.0},
			Stiffness: []float64{9.0},
			Damping:   []float64{0.3},
		},
		Step:  0.01,
		Steps: 2000,
		Excitation: sim.Excitation{
			Tones: []sim.Tone{
				{Amplitude: 1.0, Omega: 2.0},
				{Amplitude: 0.8, Omega: 3.1},
				{Amplitude: 0.5, Omega: 4.5},
				{Amplitude: 0.3, Omega: 1.2},
			},
		},
		MeasurementNoise: 0.04,
		ProcessIntensity: []float64{1e-4, 1e-2, 1e-2, 1e-4},
		X0:               []float64{0, 0, 5, 0.2},
		P0:               []float64{1e-4, 1e-4, 4, 0.04},
		Seed:             1,
		UKF: UKF{
			Alpha: 1.0,
			Beta:  2.0,
			Kappa: 0.0,
		},
		PF: PF{
			Particles: 1000,
			Policy:    bf.ResampleAlways.String(),
			Scheme:    bf.Systematic.String(),
			Threshold: bf.DefaultThreshold,
		},
	}
}

// Load decodes scenario from r on top of Default and validates it.
// Unknown fields are rejected.
func Load(r io.Reader) (*Scenario, error) {
	s := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", filter.ErrInvalidConfig, err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// LoadFile loads scenario from the YAML file stored in path
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Load(bytes.NewReader(data))
}

// Marshal encodes s into YAML
func (s *Scenario) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Dofs returns number of degrees of freedom of the scenario model
func (s *Scenario) Dofs() int {
	if strings.ToLower(s.Model.Kind) == TwoDOF {
		return 2
	}

	return 1
}

// StateDim returns dimension of augmented state
func (s *Scenario) StateDim() int {
	return 4 * s.Dofs()
}

// Validate returns error which wraps filter.ErrInvalidConfig if s is invalid.
func (s *Scenario) Validate() error {
	kind := strings.ToLower(s.Model.Kind)
	if kind != SDOF && kind != TwoDOF {
		return fmt.Errorf("%w: unknown model kind: %q", filter.ErrInvalidConfig, s.Model.Kind)
	}

	dofs := s.Dofs()
	for name, vals := range map[string][]float64{
		"mass":      s.Model.Mass,
		"stiffness": s.Model.Stiffness,
		"damping":   s.Model.Damping,
	} {
		if len(vals) != dofs {
			return fmt.Errorf("%w: %s: expected %d values, got %d", filter.ErrInvalidConfig, name, dofs, len(vals))
		}
	}

	for _, m := range s.Model.Mass {
		if !(m > 0) {
			return fmt.Errorf("%w: invalid mass: %v", filter.ErrInvalidConfig, m)
		}
	}

	if !(s.Step > 0) {
		return fmt.Errorf("%w: invalid step: %v", filter.ErrInvalidConfig, s.Step)
	}

	if s.Steps <= 0 {
		return fmt.Errorf("%w: invalid number of steps: %d", filter.ErrInvalidConfig, s.Steps)
	}

	if !(s.MeasurementNoise > 0) {
		return fmt.Errorf("%w: invalid measurement noise: %v", filter.ErrInvalidConfig, s.MeasurementNoise)
	}

	n := s.StateDim()
	for name, vals := range map[string][]float64{
		"process_intensity": s.ProcessIntensity,
		"x0":                s.X0,
		"p0":                s.P0,
	} {
		if len(vals) != n {
			return fmt.Errorf("%w: %s: expected %d values, got %d", filter.ErrInvalidConfig, name, n, len(vals))
		}
		for _, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s: non-finite value", filter.ErrInvalidConfig, name)
			}
		}
	}

	for i := range s.ProcessIntensity {
		if s.ProcessIntensity[i] < 0 || s.P0[i] < 0 {
			return fmt.Errorf("%w: negative variance", filter.ErrInvalidConfig)
		}
	}

	if _, err := s.PFConfig(); err != nil {
		return err
	}

	return nil
}

// TrueModel returns the simulated system with true parameters
func (s *Scenario) TrueModel() filter.ContinuousModel {
	m := s.Model
	if s.Dofs() == 2 {
		return sim.TwoDOF{
			M1: m.Mass[0], M2: m.Mass[1],
			K1: m.Stiffness[0], K2: m.Stiffness[1],
			C1: m.Damping[0], C2: m.Damping[1],
		}
	}

	return sim.SDOF{M: m.Mass[0], C: m.Damping[0], K: m.Stiffness[0]}
}

// FilterModel returns the model with stiffness and damping appended to its state
func (s *Scenario) FilterModel() filter.ContinuousModel {
	if s.Dofs() == 2 {
		return sim.AugmentedTwoDOF{M1: s.Model.Mass[0], M2: s.Model.Mass[1]}
	}

	return sim.AugmentedSDOF{M: s.Model.Mass[0]}
}

// TrueState returns the true initial state of the simulated system: at rest
func (s *Scenario) TrueState() *mat.VecDense {
	return mat.NewVecDense(2*s.Dofs(), nil)
}

// TrueParams returns true parameters ordered as they are in augmented state
func (s *Scenario) TrueParams() []float64 {
	if s.Dofs() == 2 {
		return []float64{s.Model.Stiffness[0], s.Model.Stiffness[1], s.Model.Damping[0], s.Model.Damping[1]}
	}

	return []float64{s.Model.Stiffness[0], s.Model.Damping[0]}
}

// ParamNames returns names of parameters ordered as they are in augmented state
func (s *Scenario) ParamNames() []string {
	if s.Dofs() == 2 {
		return []string{"k1", "k2", "c1", "c2"}
	}

	return []string{"k", "c"}
}

// Q returns discrete process noise covariance: process intensity scaled by Step
func (s *Scenario) Q() (*mat.SymDense, error) {
	q, err := noise.SoftDiscretize(noise.Diag(s.ProcessIntensity...), s.Step)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", filter.ErrInvalidConfig, err)
	}

	return q, nil
}

// R returns measurement noise covariance
func (s *Scenario) R() *mat.SymDense {
	vars := make([]float64, s.Dofs())
	for i := range vars {
		vars[i] = s.MeasurementNoise
	}

	return noise.Diag(vars...)
}

// InitCond returns filter initial condition
func (s *Scenario) InitCond() *sim.InitCond {
	return sim.NewInitCond(mat.NewVecDense(len(s.X0), append([]float64(nil), s.X0...)), noise.Diag(s.P0...))
}

// MeasurementNoiseSource returns Gaussian measurement noise drawn from the scenario seed
// or zero noise if the scenario is noise free.
func (s *Scenario) MeasurementNoiseSource() (filter.Noise, error) {
	r := s.R()
	if s.NoiseFree {
		return noise.NewZero(r.SymmetricDim())
	}

	return noise.NewGaussian(make([]float64, r.SymmetricDim()), r, rand.NewSource(s.Seed))
}

// Inputs returns forcing input sequence. It reads ExcitationFile if it is set, otherwise it samples
// Excitation. Inputs read from a file are truncated to Steps; it returns error if there are fewer.
func (s *Scenario) Inputs() ([]mat.Vector, error) {
	if s.ExcitationFile == "" {
		return s.Excitation.Sample(s.Steps, s.Step, rand.NewSource(s.Seed+1))
	}

	f, err := os.Open(s.ExcitationFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	inputs, err := sim.LoadExcitation(f)
	if err != nil {
		return nil, err
	}

	if len(inputs) < s.Steps {
		return nil, fmt.Errorf("%w: excitation file has %d samples, need %d", filter.ErrInvalidConfig, len(inputs), s.Steps)
	}

	return inputs[:s.Steps], nil
}

// UKFConfig returns UKF configuration
func (s *Scenario) UKFConfig() *ukf.Config {
	return &ukf.Config{
		Alpha:   s.UKF.Alpha,
		Beta:    s.UKF.Beta,
		Kappa:   s.UKF.Kappa,
		Workers: s.Workers,
	}
}

// PFConfig returns particle filter configuration with random source seeded from the scenario seed
func (s *Scenario) PFConfig() (*bf.Config, error) {
	policy, err := ParsePolicy(s.PF.Policy)
	if err != nil {
		return nil, err
	}

	scheme, err := ParseScheme(s.PF.Scheme)
	if err != nil {
		return nil, err
	}

	if s.PF.Particles <= 0 {
		return nil, fmt.Errorf("%w: invalid particle count: %d", filter.ErrInvalidConfig, s.PF.Particles)
	}

	return &bf.Config{
		Particles: s.PF.Particles,
		Policy:    policy,
		Scheme:    scheme,
		Threshold: s.PF.Threshold,
		Roughen:   s.PF.Roughen,
		Workers:   s.Workers,
		Src:       rand.NewSource(s.Seed + 2),
	}, nil
}

// ParsePolicy parses resampling policy name
func ParsePolicy(name string) (bf.Policy, error) {
	for _, p := range []bf.Policy{bf.ResampleAlways, bf.ResampleESS, bf.ResampleNever} {
		if strings.EqualFold(name, p.String()) {
			return p, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown resampling policy: %q", filter.ErrInvalidConfig, name)
}

// ParseScheme parses resampling scheme name
func ParseScheme(name string) (bf.Scheme, error) {
	for _, s := range []bf.Scheme{bf.Systematic, bf.Multinomial} {
		if strings.EqualFold(name, s.String()) {
			return s, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown resampling scheme: %q", filter.ErrInvalidConfig, name)
}
