// Package sim provides models of vibrating systems and tools to simulate them,
// evaluate filter estimates against the simulated truth and plot the results.
package sim

import (
	"fmt"

	filter "github.com/milosgajdos/go-vibid"
	"github.com/milosgajdos/go-vibid/noise"
	"github.com/milosgajdos/go-vibid/ode"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Result is a simulated system trajectory
type Result struct {
	// States stores true state x_k in its (k-1)-th row
	States *mat.Dense
	// Outputs stores noise free output y_k in its (k-1)-th row
	Outputs *mat.Dense
	// Measurements are noisy outputs
	Measurements []mat.Vector
}

// Simulate propagates model m from state x0 through inputs using RK4 with step h:
//
//	x_k = RK4(x_{k-1}, u_k)
//	y_k = H(x_k, u_k) + r_k
//
// where r_k is drawn from measNoise. If measNoise is nil, zero noise is used and measurements are noise free.
func Simulate(m filter.ContinuousModel, x0 mat.Vector, inputs []mat.Vector, h float64, measNoise filter.Noise) (*Result, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs supplied")
	}

	d, err := ode.Discretize(m, h)
	if err != nil {
		return nil, err
	}

	nx, _, ny := d.SystemDims()
	if x0.Len() != nx {
		return nil, fmt.Errorf("invalid initial state dimension: %d", x0.Len())
	}

	if measNoise == nil {
		if measNoise, err = noise.NewZero(ny); err != nil {
			return nil, err
		}
	}

	if len(measNoise.Mean()) != ny {
		return nil, fmt.Errorf("invalid measurement noise dimension: %d", len(measNoise.Mean()))
	}

	n := len(inputs)
	res := &Result{
		States:       mat.NewDense(n, nx, nil),
		Outputs:      mat.NewDense(n, ny, nil),
		Measurements: make([]mat.Vector, n),
	}

	x := x0
	for k, u := range inputs {
		x, err = d.Propagate(x, u)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", k+1, err)
		}

		y, err := d.Observe(x, u)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", k+1, err)
		}

		res.States.SetRow(k, vecData(x))
		res.Outputs.SetRow(k, vecData(y))

		z := mat.VecDenseCopyOf(y)
		z.AddVec(z, measNoise.Sample())
		res.Measurements[k] = z
	}

	return res, nil
}

// State returns time series of i-th true state component.
func (r *Result) State(i int) []float64 {
	return mat.Col(nil, i, r.States)
}

// TimeAxis returns n sample times h, 2h, ..., n*h
func TimeAxis(n int, h float64) []float64 {
	return floats.Span(make([]float64, n), h, float64(n)*h)
}

func vecData(v mat.Vector) []float64 {
	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}

	return data
}
