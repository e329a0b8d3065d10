package markov

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// rowSumTolerance is the maximum deviation of a transition-matrix row sum
// from 1 accepted at construction.
const rowSumTolerance = 1e-10

// Chain is a finite-state exogenous Markov process: NZ shock vectors of
// dimension Dz and an NZ×NZ row-stochastic transition matrix. Chain is
// immutable after construction and safe for concurrent reads.
type Chain struct {
	states [][]float64
	trans  *mat.Dense
}

// NewChain builds a chain from shock vectors and a transition matrix given
// in row-major order. Every state vector must have the same dimension, every
// transition entry must lie in [0,1], and every row must sum to 1 within
// tolerance.
func NewChain(states [][]float64, transition [][]float64) (*Chain, error) {
	nz := len(states)
	if nz == 0 {
		return nil, fmt.Errorf("markov: need at least one state")
	}
	dz := len(states[0])
	if dz == 0 {
		return nil, fmt.Errorf("markov: state vectors must be non-empty")
	}
	for i, s := range states {
		if len(s) != dz {
			return nil, fmt.Errorf("markov: state %d has dimension %d, want %d", i, len(s), dz)
		}
		for j, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("markov: state %d component %d is not finite", i, j)
			}
		}
	}
	if len(transition) != nz {
		return nil, fmt.Errorf("markov: transition has %d rows, want %d", len(transition), nz)
	}
	p := mat.NewDense(nz, nz, nil)
	for i, row := range transition {
		if len(row) != nz {
			return nil, fmt.Errorf("markov: transition row %d has %d columns, want %d", i, len(row), nz)
		}
		sum := 0.0
		for j, v := range row {
			if math.IsNaN(v) || v < 0 || v > 1 {
				return nil, fmt.Errorf("markov: transition[%d][%d] = %g outside [0,1]", i, j, v)
			}
			sum += v
			p.Set(i, j, v)
		}
		if math.Abs(sum-1) > rowSumTolerance {
			return nil, fmt.Errorf("markov: transition row %d sums to %g, want 1", i, sum)
		}
	}
	cp := make([][]float64, nz)
	for i, s := range states {
		cp[i] = append([]float64(nil), s...)
	}
	return &Chain{states: cp, trans: p}, nil
}

// Deterministic returns the single-state sentinel chain holding the given
// shock vector with a trivial self-transition.
func Deterministic(state []float64) (*Chain, error) {
	return NewChain([][]float64{state}, [][]float64{{1}})
}

// NumStates returns NZ, the number of exogenous states.
func (c *Chain) NumStates() int { return len(c.states) }

// Dim returns Dz, the dimension of the shock vectors.
func (c *Chain) Dim() int { return len(c.states[0]) }

// State returns the shock vector of state iz. The returned slice is shared;
// callers must not modify it.
func (c *Chain) State(iz int) []float64 { return c.states[iz] }

// Transition returns P[iz][izNext].
func (c *Chain) Transition(iz, izNext int) float64 { return c.trans.At(iz, izNext) }

// TransitionRow returns row iz of the transition matrix as a fresh slice.
func (c *Chain) TransitionRow(iz int) []float64 {
	return mat.Row(nil, iz, c.trans)
}

// TransitionMatrix returns a read-only view of the transition matrix.
func (c *Chain) TransitionMatrix() mat.Matrix { return c.trans }
