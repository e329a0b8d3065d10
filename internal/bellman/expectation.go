package bellman

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/macroforge/bellman/internal/interp"
)

// ExpectedValues computes EV_iz(x) = sum over iz' of P[iz,iz']·V[iz'](x)
// elementwise over the grid, returning a fresh array shaped like one value
// stacking. With a single exogenous state this is exactly V[0].
func ExpectedValues(prob *Problem, values [][]float64, iz int) ([]float64, error) {
	nz := prob.Chain.NumStates()
	if iz < 0 || iz >= nz {
		return nil, fmt.Errorf("bellman: exogenous index %d outside [0, %d)", iz, nz)
	}
	if len(values) != nz {
		return nil, fmt.Errorf("bellman: value stack has %d exogenous states, want %d", len(values), nz)
	}
	ev := make([]float64, prob.Grid.Size())
	for izn := 0; izn < nz; izn++ {
		p := prob.Chain.Transition(iz, izn)
		if p == 0 {
			continue
		}
		floats.AddScaled(ev, p, values[izn])
	}
	return ev, nil
}

// NewExpectation computes EV_iz and wraps it in a multilinear interpolant
// with flat extrapolation. Recompute every sweep, since V changes.
//
// Interpolating the expectation once and evaluating the single interpolant
// is identical to interpolating each V[iz'] and averaging, because
// multilinear interpolation commutes with finite convex combinations over
// a shared grid. That identity is load-bearing: it turns NZ interpolant
// evaluations per objective call into one. It does not survive a switch to
// any nonlinear interpolation scheme.
func NewExpectation(prob *Problem, values [][]float64, iz int) (*interp.Multilinear, error) {
	ev, err := ExpectedValues(prob, values, iz)
	if err != nil {
		return nil, err
	}
	m, err := interp.NewMultilinear(prob.Grid, ev)
	if err != nil {
		return nil, fmt.Errorf("bellman: building expectation interpolant for iz=%d: %w", iz, err)
	}
	return m, nil
}
