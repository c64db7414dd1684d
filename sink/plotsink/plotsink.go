// Package plotsink is the plotting collaborator the spec names: it renders
// a line profile (temperature along one grid axis, or a zone's temperature
// history) as a PNG, the same plot.New/plotutil.AddLinePoints/p.WriterTo
// idiom webserver.go uses to render a vertical concentration profile.
package plotsink

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/voxeltherm/thermovox/voxel"
)

// RenderLine draws one (xs, ys) series as a titled line-and-points plot,
// writing it to path as a 6x4-inch image whose format follows path's
// extension (PNG for the files Sink writes).
func RenderLine(title, xLabel, yLabel string, xs, ys []float64, path string) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("plotsink: xs and ys have different lengths: %d != %d", len(xs), len(ys))
	}
	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("plotsink: %w", err)
	}
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	xy := make(plotter.XYs, len(xs))
	for i := range xs {
		xy[i].X = xs[i]
		xy[i].Y = ys[i]
	}
	if err := plotutil.AddLinePoints(p, xy); err != nil {
		return fmt.Errorf("plotsink: %w", err)
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// TemperatureProfile extracts the temperature along the x-axis at fixed
// (j,k), returning the world-coordinate x positions alongside.
func TemperatureProfile(m *voxel.Model, j, k int) (xs, ts []float64) {
	p := m.Params()
	xs = make([]float64, p.Nx)
	ts = make([]float64, p.Nx)
	for i := 0; i < p.Nx; i++ {
		xs[i] = float64(i) * p.Ds
		ts[i] = m.At(i, j, k)
	}
	return xs, ts
}

// Sink renders the temperature profile along (Row, Layer) for every
// recorded step to a PNG under Dir.
type Sink struct {
	Dir   string
	Row   int // j index
	Layer int // k index
}

// New builds a Sink that profiles row j, layer k of every recorded step.
func New(dir string, j, k int) *Sink {
	return &Sink{Dir: dir, Row: j, Layer: k}
}

// Record satisfies sim.Sink.
func (s *Sink) Record(step int, t float64, m *voxel.Model) error {
	xs, ts := TemperatureProfile(m, s.Row, s.Layer)
	path := fmt.Sprintf("%s/step-%06d.png", s.Dir, step)
	title := fmt.Sprintf("temperature profile, t=%.1fs", t)
	return RenderLine(title, "x (m)", "T (C)", xs, ts, path)
}
