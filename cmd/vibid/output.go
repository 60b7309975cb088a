package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/milosgajdos/go-vibid/sim"
	"gonum.org/v1/plot/vg"
)

// bandLevel is the two sided credible level of plotted particle bands
const bandLevel = 0.9

// writeCSV writes one row per step: time, true state, UKF means and standard deviations and PF means.
// Estimates of steps which were not completed are left empty.
func writeCSV(path string, res *results) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	nx := 2 * res.scenario.Dofs()
	n := res.scenario.StateDim()

	header := []string{"t"}
	for i := 0; i < nx; i++ {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	if res.ukf != nil {
		for i := 0; i < n; i++ {
			header = append(header, fmt.Sprintf("ukf_x%d", i))
		}
		for i := 0; i < n; i++ {
			header = append(header, fmt.Sprintf("ukf_std%d", i))
		}
	}
	if res.pf != nil {
		for i := 0; i < n; i++ {
			header = append(header, fmt.Sprintf("pf_x%d", i))
		}
		header = append(header, "pf_ess")
	}
	if err := w.Write(header); err != nil {
		return err
	}

	rows, _ := res.truth.States.Dims()
	t := sim.TimeAxis(rows, res.scenario.Step)
	for k := 0; k < rows; k++ {
		row := []string{format(t[k])}
		for i := 0; i < nx; i++ {
			row = append(row, format(res.truth.States.At(k, i)))
		}
		if res.ukf != nil {
			done := k < res.ukf.Len()
			for i := 0; i < n; i++ {
				row = append(row, cell(done, func() float64 { return res.ukf.Mean(k).AtVec(i) }))
			}
			for i := 0; i < n; i++ {
				row = append(row, cell(done, func() float64 { return math.Sqrt(res.ukf.Cov(k).At(i, i)) }))
			}
		}
		if res.pf != nil {
			done := k < res.pf.Len()
			for i := 0; i < n; i++ {
				row = append(row, cell(done, func() float64 { return res.pf.Mean(k).AtVec(i) }))
			}
			row = append(row, cell(done, func() float64 { return res.pf.ESS(k) }))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// savePlots saves one plot per estimated parameter. File names are derived from path
// by appending parameter name to its base name. It returns the names of saved files.
func savePlots(path string, res *results) ([]string, error) {
	s := res.scenario
	offset := 2 * s.Dofs()
	params := s.TrueParams()

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".png"
	}

	var files []string
	for i, name := range s.ParamNames() {
		n := steps(res)
		if n == 0 {
			return nil, fmt.Errorf("no estimates to plot")
		}
		t := sim.TimeAxis(n, s.Step)

		truth := make([]float64, n)
		for k := range truth {
			truth[k] = params[i]
		}

		traces := []sim.Trace{{Name: "truth", Y: truth, Dashed: true}}
		if res.ukf != nil {
			traces = append(traces, sim.Trace{Name: "UKF", Y: res.ukf.Component(offset + i)[:n]})
		}

		var band *sim.Band
		if res.pf != nil {
			traces = append(traces, sim.Trace{Name: "PF", Y: res.pf.Component(offset + i)[:n]})
			if res.pf.HasClouds() {
				lo, err := res.pf.Band(offset+i, (1-bandLevel)/2)
				if err != nil {
					return nil, err
				}
				hi, err := res.pf.Band(offset+i, (1+bandLevel)/2)
				if err != nil {
					return nil, err
				}
				band = &sim.Band{Name: fmt.Sprintf("PF %.0f%%", 100*bandLevel), Lo: lo[:n], Hi: hi[:n]}
			}
		}

		p, err := sim.NewTracePlot(name, t, traces, band)
		if err != nil {
			return nil, err
		}
		p.Y.Label.Text = name

		file := base + "_" + name + ext
		if err := p.Save(8*vg.Inch, 4*vg.Inch, file); err != nil {
			return nil, fmt.Errorf("failed to save plot: %w", err)
		}
		files = append(files, file)
	}

	return files, nil
}

// steps returns number of steps completed by all filters
func steps(res *results) int {
	n, _ := res.truth.States.Dims()
	if res.ukf != nil && res.ukf.Len() < n {
		n = res.ukf.Len()
	}
	if res.pf != nil && res.pf.Len() < n {
		n = res.pf.Len()
	}

	return n
}

func cell(ok bool, val func() float64) string {
	if !ok {
		return ""
	}

	return format(val())
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
