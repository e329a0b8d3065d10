package grid

import (
	"fmt"
	"math"
)

// MultiIndex addresses one node of a tensor grid, one entry per dimension.
type MultiIndex []int

// Tensor is a Cartesian-product grid built from ordered marginal coordinate
// arrays. With marginals of lengths N_1..N_d the grid has N_1·…·N_d nodes.
// Tensor is immutable after construction.
type Tensor struct {
	marginals [][]float64
	shape     []int
	size      int
	// strides[k] is the flat-index step for dimension k, row-major
	// (last dimension fastest).
	strides []int
}

// NewTensor builds a grid from one strictly increasing coordinate array per
// dimension. The marginal slices are copied.
func NewTensor(marginals ...[]float64) (*Tensor, error) {
	if len(marginals) == 0 {
		return nil, fmt.Errorf("grid: need at least one dimension")
	}
	g := &Tensor{
		marginals: make([][]float64, len(marginals)),
		shape:     make([]int, len(marginals)),
		strides:   make([]int, len(marginals)),
		size:      1,
	}
	for d, m := range marginals {
		if len(m) == 0 {
			return nil, fmt.Errorf("grid: dimension %d has no nodes", d)
		}
		for i, v := range m {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("grid: dimension %d node %d is not finite", d, i)
			}
			if i > 0 && v <= m[i-1] {
				return nil, fmt.Errorf("grid: dimension %d not strictly increasing at node %d", d, i)
			}
		}
		g.marginals[d] = append([]float64(nil), m...)
		g.shape[d] = len(m)
		g.size *= len(m)
	}
	stride := 1
	for d := len(marginals) - 1; d >= 0; d-- {
		g.strides[d] = stride
		stride *= g.shape[d]
	}
	return g, nil
}

// Linspace builds a one-dimensional marginal of n evenly spaced nodes on
// [lo, hi] inclusive. n must be at least 2 and lo < hi.
func Linspace(lo, hi float64, n int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("grid: linspace needs n >= 2, got %d", n)
	}
	if !(lo < hi) {
		return nil, fmt.Errorf("grid: linspace needs lo < hi, got [%g, %g]", lo, hi)
	}
	m := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range m {
		m[i] = lo + float64(i)*step
	}
	m[n-1] = hi // Guard against accumulated rounding at the top node.
	return m, nil
}

// Dims returns the number of dimensions.
func (g *Tensor) Dims() int { return len(g.shape) }

// Shape returns the node count per dimension. The returned slice is shared;
// callers must not modify it.
func (g *Tensor) Shape() []int { return g.shape }

// Size returns the total number of grid nodes.
func (g *Tensor) Size() int { return g.size }

// Marginal returns the coordinate array of dimension d. The returned slice
// is shared; callers must not modify it.
func (g *Tensor) Marginal(d int) []float64 { return g.marginals[d] }

// Bounds returns the lower and upper coordinate bound of dimension d.
func (g *Tensor) Bounds(d int) (lo, hi float64) {
	m := g.marginals[d]
	return m[0], m[len(m)-1]
}

// FlatIndex maps a multi-index to its row-major flat index.
func (g *Tensor) FlatIndex(mi MultiIndex) int {
	flat := 0
	for d, i := range mi {
		flat += i * g.strides[d]
	}
	return flat
}

// AtFlat returns the multi-index for a row-major flat index. The result is
// written into out, which must have length Dims.
func (g *Tensor) AtFlat(flat int, out MultiIndex) {
	for d := 0; d < len(g.shape); d++ {
		out[d] = flat / g.strides[d]
		flat -= out[d] * g.strides[d]
	}
}

// Coordinate writes the coordinates of the node at multi-index mi into out,
// which must have length Dims.
func (g *Tensor) Coordinate(mi MultiIndex, out []float64) {
	for d, i := range mi {
		out[d] = g.marginals[d][i]
	}
}

// CoordinateAtFlat returns the coordinates of the node at a flat index as a
// freshly allocated slice.
func (g *Tensor) CoordinateAtFlat(flat int) []float64 {
	mi := make(MultiIndex, g.Dims())
	g.AtFlat(flat, mi)
	out := make([]float64, g.Dims())
	g.Coordinate(mi, out)
	return out
}

// Each calls fn for every node in row-major order, passing the flat index
// and the node's multi-index. The multi-index is reused between calls;
// fn must copy it if it escapes.
func (g *Tensor) Each(fn func(flat int, mi MultiIndex)) {
	mi := make(MultiIndex, g.Dims())
	for flat := 0; flat < g.size; flat++ {
		g.AtFlat(flat, mi)
		fn(flat, mi)
	}
}
