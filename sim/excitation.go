package sim

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Tone is a single sinusoidal component of excitation signal
type Tone struct {
	// Amplitude is tone amplitude
	Amplitude float64 `yaml:"amplitude"`
	// Omega is angular frequency in rad/s
	Omega float64 `yaml:"omega"`
	// Phase is phase shift in rad
	Phase float64 `yaml:"phase"`
}

// Eval returns the value of the tone at time t
func (t Tone) Eval(time float64) float64 {
	return t.Amplitude * math.Sin(t.Omega*time+t.Phase)
}

// Excitation is a multi-sine forcing signal with optional additive Gaussian noise
type Excitation struct {
	// Tones are summed to produce the signal
	Tones []Tone `yaml:"tones"`
	// Bias is added to the signal
	Bias float64 `yaml:"bias"`
	// NoiseStd is standard deviation of additive input noise
	NoiseStd float64 `yaml:"noise_std"`
}

// Eval returns noise free value of the excitation at time t
func (e Excitation) Eval(t float64) float64 {
	y := e.Bias
	for _, tone := range e.Tones {
		y += tone.Eval(t)
	}

	return y
}

// Sample samples the excitation at times h, 2h, ..., n*h and returns the samples
// as one dimensional input vectors. If NoiseStd is positive, noise drawn from src
// is added to every sample. It returns error if n or h is not positive or if
// noise is requested and src is nil.
func (e Excitation) Sample(n int, h float64, src rand.Source) ([]mat.Vector, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples: %d", n)
	}

	if !(h > 0) {
		return nil, fmt.Errorf("invalid sampling step: %v", h)
	}

	var dist *distuv.Normal
	if e.NoiseStd > 0 {
		if src == nil {
			return nil, fmt.Errorf("invalid random source: %v", src)
		}
		dist = &distuv.Normal{Mu: 0, Sigma: e.NoiseStd, Src: src}
	}

	inputs := make([]mat.Vector, n)
	for k := range inputs {
		u := e.Eval(float64(k+1) * h)
		if dist != nil {
			u += dist.Rand()
		}
		inputs[k] = mat.NewVecDense(1, []float64{u})
	}

	return inputs, nil
}

// LoadExcitation reads input samples from r. Every non-empty line which does not
// start with # holds a single input vector whose elements are separated by commas
// or white space. All vectors must have the same length.
func LoadExcitation(r io.Reader) ([]mat.Vector, error) {
	var inputs []mat.Vector

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})

		data := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			data[i] = v
		}

		if len(inputs) > 0 && inputs[0].Len() != len(data) {
			return nil, fmt.Errorf("line %d: expected %d values, got %d", line, inputs[0].Len(), len(data))
		}
		inputs = append(inputs, mat.NewVecDense(len(data), data))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("no excitation samples found")
	}

	return inputs, nil
}
