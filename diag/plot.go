package diag

import (
	"errors"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Iteration summarises one motion iteration.
type Iteration struct {
	Iteration  int
	Relaxation float64
	// MeanDisplacement is the mean displacement relative to the target
	// cell size.
	MeanDisplacement float64
	Inserted         int
	Removed          int
	Vertices         int
}

// PlotConvergence plots the relaxation factor and mean relative
// displacement of history and writes the image in format ("png", "svg",
// "pdf") to w.
func PlotConvergence(w io.Writer, history []Iteration, format string) error {
	if len(history) == 0 {
		return errors.New("diag: empty history")
	}
	p := plot.New()
	p.Title.Text = "Mesh motion"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "fraction of cell size"
	p.Legend.Top = true

	relax := make(plotter.XYs, len(history))
	disp := make(plotter.XYs, len(history))
	for i, it := range history {
		relax[i] = plotter.XY{X: float64(it.Iteration), Y: it.Relaxation}
		disp[i] = plotter.XY{X: float64(it.Iteration), Y: it.MeanDisplacement}
	}
	for i, series := range []struct {
		name string
		xys  plotter.XYs
	}{{"relaxation", relax}, {"mean displacement", disp}} {
		l, err := plotter.NewLine(series.xys)
		if err != nil {
			return err
		}
		l.Color = plotutil.Color(i)
		l.Dashes = plotutil.Dashes(i)
		p.Add(l)
		p.Legend.Add(series.name, l)
	}
	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
