// Package interp provides multilinear (tensor-product-linear)
// interpolation on tensor grids with flat extrapolation outside the
// grid bounds.
//
// Multilinear interpolation commutes with finite linear combinations of
// value arrays defined on a shared grid. Several callers rely on that
// identity; do not swap in a nonlinear scheme (cubic, splines) here.
package interp

import (
	"fmt"
	"math"
	"sort"

	"github.com/macroforge/bellman/internal/grid"
)

// Multilinear interpolates values defined on the nodes of a tensor grid.
// Queries outside the grid bounds are clamped to the boundary (flat
// extrapolation). Immutable after construction; safe for concurrent Eval.
type Multilinear struct {
	grid   *grid.Tensor
	values []float64
}

// NewMultilinear builds an interpolant from a grid and node values in
// row-major order (last dimension fastest). The values slice is retained,
// not copied; callers must not mutate it afterwards.
func NewMultilinear(g *grid.Tensor, values []float64) (*Multilinear, error) {
	if len(values) != g.Size() {
		return nil, fmt.Errorf("interp: %d values for grid of size %d", len(values), g.Size())
	}
	for i, v := range values {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("interp: value %d is NaN", i)
		}
	}
	return &Multilinear{grid: g, values: values}, nil
}

// Eval evaluates the interpolant at point, which must have length Dims.
// A NaN coordinate yields NaN; infinite coordinates clamp to the boundary
// like any other out-of-grid query.
func (m *Multilinear) Eval(point []float64) float64 {
	d := m.grid.Dims()
	if len(point) != d {
		panic(fmt.Sprintf("interp: point has dimension %d, want %d", len(point), d))
	}

	// Per dimension: lower bracket node and weight on the upper node.
	lower := make([]int, d)
	frac := make([]float64, d)
	for k := 0; k < d; k++ {
		if math.IsNaN(point[k]) {
			return math.NaN()
		}
		lower[k], frac[k] = bracket(m.grid.Marginal(k), point[k])
	}

	// Accumulate over the 2^d cell corners.
	mi := make(grid.MultiIndex, d)
	total := 0.0
	for corner := 0; corner < 1<<d; corner++ {
		w := 1.0
		for k := 0; k < d; k++ {
			if corner&(1<<k) != 0 {
				w *= frac[k]
				mi[k] = lower[k] + 1
			} else {
				w *= 1 - frac[k]
				mi[k] = lower[k]
			}
		}
		if w == 0 {
			continue
		}
		total += w * m.values[m.grid.FlatIndex(mi)]
	}
	return total
}

// bracket locates x within the marginal: it returns the index i of the
// lower node of the containing cell and the linear weight on node i+1.
// Points outside the grid clamp to the boundary nodes with zero or unit
// weight, which yields flat extrapolation.
func bracket(marginal []float64, x float64) (int, float64) {
	n := len(marginal)
	if n == 1 || x <= marginal[0] {
		return 0, 0
	}
	if x >= marginal[n-1] {
		return n - 2, 1
	}
	// First index with marginal[i] > x; the cell lower node is i-1.
	i := sort.SearchFloat64s(marginal, x)
	if marginal[i] == x {
		if i == n-1 {
			return n - 2, 1
		}
		return i, 0
	}
	lo := i - 1
	return lo, (x - marginal[lo]) / (marginal[lo+1] - marginal[lo])
}
