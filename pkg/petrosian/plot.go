package petrosian

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SaveRatioPlot renders the scanned Petrosian ratio curve to a PNG, with the
// target ratio and the selected radius marked. It is a diagnostic aid for
// judging whether a degenerate estimate is trustworthy.
func (r Result) SaveRatioPlot(path string) error {
	if r.Radii == nil {
		return fmt.Errorf("petrosian: no scanned curve to plot (radius was supplied externally)")
	}

	p := plot.New()
	p.Title.Text = "Petrosian radial profile"
	p.X.Label.Text = "radius (pixels)"
	p.Y.Label.Text = "annulus / interior mean flux"

	curve := make(plotter.XYs, len(r.Radii))
	for i := range r.Radii {
		curve[i].X = r.Radii[i]
		curve[i].Y = r.Ratios[i]
	}
	line, err := plotter.NewLine(curve)
	if err != nil {
		return fmt.Errorf("petrosian: building ratio curve: %w", err)
	}

	target, err := plotter.NewLine(plotter.XYs{
		{X: r.Radii[0], Y: TargetRatio},
		{X: r.Radii[len(r.Radii)-1], Y: TargetRatio},
	})
	if err != nil {
		return fmt.Errorf("petrosian: building target line: %w", err)
	}
	target.Color = color.RGBA{R: 196, A: 255}
	target.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	chosen, err := plotter.NewLine(plotter.XYs{
		{X: r.RadiusPixels, Y: 0},
		{X: r.RadiusPixels, Y: 1},
	})
	if err != nil {
		return fmt.Errorf("petrosian: building radius marker: %w", err)
	}
	chosen.Color = color.RGBA{B: 196, A: 255}
	chosen.Dashes = []vg.Length{vg.Points(2), vg.Points(4)}

	p.Add(plotter.NewGrid(), line, target, chosen)
	p.Legend.Add("ratio", line)
	p.Legend.Add("target 0.2", target)
	p.Legend.Add("r_petro", chosen)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("petrosian: saving ratio plot: %w", err)
	}
	return nil
}
