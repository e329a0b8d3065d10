// Package report renders solver diagnostics to PNG charts: the per-sweep
// convergence trace and one-dimensional value/policy slices.
package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/macroforge/bellman/internal/bellman"
)

// SaveConvergence plots the sweep error trace on a log10 scale and writes
// it to outDir/convergence.png.
func SaveConvergence(res *bellman.RunResult, outDir string) (string, error) {
	if len(res.Errors) == 0 {
		return "", fmt.Errorf("report: empty error trace")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("report: creating output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Value function iteration (%s after %d sweeps)", res.State, res.Sweeps)
	p.X.Label.Text = "Sweep"
	p.Y.Label.Text = "log10 sweep error"

	pts := make(plotter.XYs, 0, len(res.Errors))
	for i, e := range res.Errors {
		if e <= 0 {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i + 1), Y: math.Log10(e)})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", fmt.Errorf("report: building trace line: %w", err)
	}
	line.Color = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	p.Add(line, plotter.NewGrid())

	out := filepath.Join(outDir, "convergence.png")
	if err := p.Save(8*vg.Inch, 5*vg.Inch, out); err != nil {
		return "", fmt.Errorf("report: saving convergence chart: %w", err)
	}
	return out, nil
}

// SavePolicy plots the first control dimension against a one-dimensional
// state grid for every exogenous state and writes it to
// outDir/policy.png. Only supported for Dx = 1.
func SavePolicy(store *bellman.Store, outDir string) (string, error) {
	prob := store.Problem()
	if prob.Grid.Dims() != 1 {
		return "", fmt.Errorf("report: policy chart needs a 1-D state grid, have %d dims", prob.Grid.Dims())
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("report: creating output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Policy: %s", prob.Controls[0].Name)
	p.X.Label.Text = "State"
	p.Y.Label.Text = prob.Controls[0].Name

	nodes := prob.Grid.Marginal(0)
	for iz := 0; iz < prob.Chain.NumStates(); iz++ {
		pts := make(plotter.XYs, len(nodes))
		for flat, x := range nodes {
			pts[flat] = plotter.XY{X: x, Y: store.PolicyAt(iz, flat)[0]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", fmt.Errorf("report: building policy line iz=%d: %w", iz, err)
		}
		line.Color = paletteColor(iz)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("z[%d]", iz), line)
	}
	p.Add(plotter.NewGrid())

	out := filepath.Join(outDir, "policy.png")
	if err := p.Save(8*vg.Inch, 5*vg.Inch, out); err != nil {
		return "", fmt.Errorf("report: saving policy chart: %w", err)
	}
	return out, nil
}

// paletteColor cycles a small qualitative palette by exogenous state.
func paletteColor(i int) color.Color {
	palette := []color.RGBA{
		{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
		{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
		{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
		{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
		{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	}
	return palette[i%len(palette)]
}
