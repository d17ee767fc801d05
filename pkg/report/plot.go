// Package report renders recorded series to images and summarises data files.
package report

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to plot")

// Image size.
const (
	Width  = 8 * vg.Inch
	Height = 5 * vg.Inch
)

// Line is one named curve. Markers draws the points as well.
type Line struct {
	Name    string
	X, Y    []float64
	Markers bool
}

// TimeLine builds a line from a time axis, X in seconds since the first
// point.
func TimeLine(name string, times []time.Time, values []float64) Line {
	n := min(len(times), len(values))
	l := Line{Name: name, X: make([]float64, n), Y: make([]float64, n)}
	for i := 0; i < n; i++ {
		l.X[i] = times[i].Sub(times[0]).Seconds()
		l.Y[i] = values[i]
	}
	return l
}

// IndexLine builds a line over 0..len(values)-1, used for per-experiment
// values.
func IndexLine(name string, values []float64) Line {
	l := Line{Name: name, X: make([]float64, len(values)), Y: make([]float64, len(values)), Markers: true}
	for i, v := range values {
		l.X[i] = float64(i)
		l.Y[i] = v
	}
	return l
}

// Plot builds a plot of the lines. Empty lines are skipped.
func Plot(title, xlabel, ylabel string, lines ...Line) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	added := 0
	for i, l := range lines {
		n := min(len(l.X), len(l.Y))
		if n == 0 {
			continue
		}
		xys := make(plotter.XYs, n)
		for j := 0; j < n; j++ {
			xys[j].X = l.X[j]
			xys[j].Y = l.Y[j]
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("line %s: %w", l.Name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(l.Name, line)

		if l.Markers {
			scatter, err := plotter.NewScatter(xys)
			if err != nil {
				return nil, fmt.Errorf("markers %s: %w", l.Name, err)
			}
			scatter.GlyphStyle.Radius = vg.Length(2)
			scatter.GlyphStyle.Shape = draw.CircleGlyph{}
			scatter.GlyphStyle.Color = plotutil.Color(i)
			p.Add(scatter)
		}
		added++
	}
	if added == 0 {
		return nil, ErrNoData
	}
	p.Legend.Top = true
	return p, nil
}

// SavePNG renders the lines to an image file. The format follows the file
// extension (.png, .svg, .pdf).
func SavePNG(path, title, xlabel, ylabel string, lines ...Line) error {
	p, err := Plot(title, xlabel, ylabel, lines...)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
