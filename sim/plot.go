package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Trace is a named time series
type Trace struct {
	// Name is used in plot legend
	Name string
	// Y holds trace values
	Y []float64
	// Dashed draws the trace with dashed line
	Dashed bool
}

// Band is a shaded area between Lo and Hi time series, e.g. a percentile band
type Band struct {
	// Name is used in plot legend
	Name string
	Lo   []float64
	Hi   []float64
}

// NewTracePlot creates new time series plot of traces sampled at times t.
// If band is not nil it is drawn below the traces.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * no time samples or no traces are supplied
// * any of the traces or band series differs in length from t
// * gonum plot fails to be created
func NewTracePlot(title string, t []float64, traces []Trace, band *Band) (*plot.Plot, error) {
	if len(t) == 0 || len(traces) == 0 {
		return nil, fmt.Errorf("invalid data supplied")
	}

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "t [s]"
	p.Legend.Top = true

	if band != nil {
		if len(band.Lo) != len(t) || len(band.Hi) != len(t) {
			return nil, fmt.Errorf("invalid band dimensions")
		}

		// walk Lo forward and Hi backwards to close the polygon
		pts := make(plotter.XYs, 2*len(t))
		for i := range t {
			pts[i].X, pts[i].Y = t[i], band.Lo[i]
			j := len(pts) - 1 - i
			pts[j].X, pts[j].Y = t[i], band.Hi[i]
		}

		poly, err := plotter.NewPolygon(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create band: %v", err)
		}
		poly.Color = color.RGBA{R: 169, G: 169, B: 169, A: 96}
		poly.LineStyle.Width = 0

		p.Add(poly)
		p.Legend.Add(band.Name, poly)
	}

	for i, tr := range traces {
		if len(tr.Y) != len(t) {
			return nil, fmt.Errorf("invalid trace %q dimensions", tr.Name)
		}

		line, err := plotter.NewLine(makePoints(t, tr.Y))
		if err != nil {
			return nil, fmt.Errorf("failed to create line: %v", err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		if tr.Dashed {
			line.Dashes = plotutil.Dashes(1)
		}

		p.Add(line)
		p.Legend.Add(tr.Name, line)
	}

	return p, nil
}

func makePoints(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range pts {
		pts[i].X = x[i]
		pts[i].Y = y[i]
	}

	return pts
}
