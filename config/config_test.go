package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/milosgajdos/go-vibid/noise"
	"github.com/milosgajdos/go-vibid/particle/bf"
	"github.com/milosgajdos/go-vibid/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	assert := assert.New(t)

	s := Default()
	assert.NoError(s.Validate())
	assert.Equal(1, s.Dofs())
	assert.Equal(4, s.StateDim())
	assert.Equal([]float64{9, 0.3}, s.TrueParams())
	assert.Equal([]string{"k", "c"}, s.ParamNames())
	assert.Equal(sim.SDOF{M: 1, C: 0.3, K: 9}, s.TrueModel())
	assert.Equal(sim.AugmentedSDOF{M: 1}, s.FilterModel())
	assert.Equal(2, s.TrueState().Len())

	ic := s.InitCond()
	assert.Equal(5.0, ic.State().AtVec(2))
	assert.Equal(4.0, ic.Cov().At(2, 2))
	q, err := s.Q()
	assert.NoError(err)
	assert.InDelta(1e-4, q.At(1, 1), 1e-18)
	assert.InDelta(1e-6, q.At(3, 3), 1e-20)
	assert.Equal(0.04, s.R().At(0, 0))

	inputs, err := s.Inputs()
	assert.NoError(err)
	assert.Len(inputs, 2000)
	assert.InDelta(s.Excitation.Eval(0.01), inputs[0].AtVec(0), 1e-15)

	c, err := s.PFConfig()
	assert.NoError(err)
	assert.Equal(1000, c.Particles)
	assert.Equal(bf.ResampleAlways, c.Policy)
	assert.Equal(bf.Systematic, c.Scheme)
	assert.NotNil(c.Src)

	uc := s.UKFConfig()
	assert.Equal(1.0, uc.Alpha)
	assert.Equal(2.0, uc.Beta)
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	doc := `
steps: 100
measurement_noise: 0.01
pf:
  particles: 50
  policy: ess
  scheme: multinomial
`
	s, err := Load(strings.NewReader(doc))
	assert.NoError(err)
	assert.Equal(100, s.Steps)
	assert.Equal(0.01, s.MeasurementNoise)
	// defaults are kept
	assert.Equal(0.01, s.Step)
	assert.Equal([]float64{0, 0, 5, 0.2}, s.X0)

	c, err := s.PFConfig()
	assert.NoError(err)
	assert.Equal(50, c.Particles)
	assert.Equal(bf.ResampleESS, c.Policy)
	assert.Equal(bf.Multinomial, c.Scheme)

	// empty document yields defaults
	s, err = Load(strings.NewReader(""))
	assert.NoError(err)
	assert.Equal(Default(), s)
}

func TestLoadRoundTrip(t *testing.T) {
	assert := assert.New(t)

	data, err := Default().Marshal()
	require.NoError(t, err)

	s, err := Load(strings.NewReader(string(data)))
	assert.NoError(err)
	assert.Equal(Default(), s)
}

func TestLoadInvalid(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		name string
		doc  string
	}{
		{"unknown field", "foo: 1"},
		{"model kind", "model: {kind: 3dof}"},
		{"mass count", "model: {mass: [1, 2]}"},
		{"mass", "model: {mass: [0]}"},
		{"step", "step: 0"},
		{"steps", "steps: -1"},
		{"measurement noise", "measurement_noise: 0"},
		{"x0 length", "x0: [0, 0]"},
		{"negative variance", "p0: [1, 1, -1, 1]"},
		{"policy", "pf: {policy: sometimes}"},
		{"scheme", "pf: {scheme: stratified}"},
		{"particles", "pf: {particles: 0}"},
		{"2dof lengths", "model: {kind: 2dof, mass: [1, 1], stiffness: [1, 1], damping: [1, 1]}"},
	}

	for _, tc := range testCases {
		s, err := Load(strings.NewReader(tc.doc))
		assert.Nil(s, tc.name)
		assert.True(errors.Is(err, filter.ErrInvalidConfig), tc.name)
	}
}

func TestTwoDOF(t *testing.T) {
	assert := assert.New(t)

	doc := `
model:
  kind: 2dof
  mass: [1, 2]
  stiffness: [9, 4]
  damping: [0.3, 0.2]
process_intensity: [0, 0, 0, 0, 0, 0, 0, 0]
x0: [0, 0, 0, 0, 5, 5, 0.1, 0.1]
p0: [1, 1, 1, 1, 1, 1, 1, 1]
`
	s, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(2, s.Dofs())
	assert.Equal(8, s.StateDim())
	assert.Equal(sim.TwoDOF{M1: 1, M2: 2, K1: 9, K2: 4, C1: 0.3, C2: 0.2}, s.TrueModel())
	assert.Equal(sim.AugmentedTwoDOF{M1: 1, M2: 2}, s.FilterModel())
	assert.Equal([]float64{9, 4, 0.3, 0.2}, s.TrueParams())
	assert.Equal(2, s.R().SymmetricDim())
	assert.Equal(4, s.TrueState().Len())
}

func TestExcitationFile(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "u.txt")
	require.NoError(t, os.WriteFile(path, []byte("# force\n1\n2\n3\n"), 0o644))

	s := Default()
	s.ExcitationFile = path
	s.Steps = 2

	inputs, err := s.Inputs()
	assert.NoError(err)
	assert.Len(inputs, 2)
	assert.Equal(2.0, inputs[1].AtVec(0))

	s.Steps = 4
	_, err = s.Inputs()
	assert.True(errors.Is(err, filter.ErrInvalidConfig))

	s.ExcitationFile = filepath.Join(dir, "missing.txt")
	_, err = s.Inputs()
	assert.Error(err)

	cfg := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("steps: 10\n"), 0o644))
	loaded, err := LoadFile(cfg)
	assert.NoError(err)
	assert.Equal(10, loaded.Steps)
}

func TestNoiseFree(t *testing.T) {
	assert := assert.New(t)

	s, err := Load(strings.NewReader("steps: 50\nnoise_free: true\n"))
	require.NoError(t, err)
	assert.True(s.NoiseFree)

	mn, err := s.MeasurementNoiseSource()
	assert.NoError(err)
	assert.IsType(&noise.Zero{}, mn)

	inputs, err := s.Inputs()
	require.NoError(t, err)

	res, err := sim.Simulate(s.TrueModel(), s.TrueState(), inputs, s.Step, mn)
	assert.NoError(err)
	for k, z := range res.Measurements {
		assert.Equal(res.Outputs.At(k, 0), z.AtVec(0))
	}

	// filters still assume noisy measurements
	assert.Equal(s.MeasurementNoise, s.R().At(0, 0))

	mn, err = Default().MeasurementNoiseSource()
	assert.NoError(err)
	assert.IsType(&noise.Gaussian{}, mn)
}
