package bellman

import (
	"fmt"

	"github.com/macroforge/bellman/internal/grid"
)

// Store holds the mutable solver state: one value array per exogenous
// state plus policy, next-state and statistics arrays, all shaped like the
// continuous grid in row-major order. Allocated once from a Problem and
// mutated in place by the iteration loop, once per sweep; never
// reallocated mid-run.
type Store struct {
	prob *Problem

	// Values[iz][flat] is the value function at exogenous state iz.
	Values [][]float64

	// Policy[iz][flat*Dc : (flat+1)*Dc] is the optimal control vector.
	Policy [][]float64

	// NextState[iz][flat*Dx : (flat+1)*Dx] is the induced next state.
	NextState [][]float64

	// Stats[iz][flat*Ds : (flat+1)*Ds] are the recorded model statistics.
	Stats [][]float64
}

// NewStore allocates a zero-initialized store for a problem.
func NewStore(prob *Problem) *Store {
	nz := prob.Chain.NumStates()
	n := prob.Grid.Size()
	s := &Store{
		prob:      prob,
		Values:    make([][]float64, nz),
		Policy:    make([][]float64, nz),
		NextState: make([][]float64, nz),
		Stats:     make([][]float64, nz),
	}
	for iz := 0; iz < nz; iz++ {
		s.Values[iz] = make([]float64, n)
		s.Policy[iz] = make([]float64, n*prob.NumControls())
		s.NextState[iz] = make([]float64, n*prob.Grid.Dims())
		s.Stats[iz] = make([]float64, n*prob.Model.NumStats)
	}
	return s
}

// Problem returns the problem definition this store was allocated for.
func (s *Store) Problem() *Problem { return s.prob }

// InitConstant fills every value array with v.
func (s *Store) InitConstant(v float64) {
	for iz := range s.Values {
		for i := range s.Values[iz] {
			s.Values[iz][i] = v
		}
	}
}

// InitFunc fills the value arrays from a guess function evaluated at every
// (grid point, exogenous state) pair.
func (s *Store) InitFunc(guess func(x, z []float64) float64) {
	x := make([]float64, s.prob.Grid.Dims())
	mi := make(grid.MultiIndex, s.prob.Grid.Dims())
	for iz := range s.Values {
		z := s.prob.Chain.State(iz)
		for flat := range s.Values[iz] {
			s.prob.Grid.AtFlat(flat, mi)
			s.prob.Grid.Coordinate(mi, x)
			s.Values[iz][flat] = guess(x, z)
		}
	}
}

// Value returns V[iz] at a flat grid index.
func (s *Store) Value(iz, flat int) float64 { return s.Values[iz][flat] }

// PolicyAt returns the control vector at (iz, flat) as a sub-slice of the
// policy array; callers must not modify it.
func (s *Store) PolicyAt(iz, flat int) []float64 {
	dc := s.prob.NumControls()
	return s.Policy[iz][flat*dc : (flat+1)*dc]
}

// NextStateAt returns the induced next state at (iz, flat) as a sub-slice;
// callers must not modify it.
func (s *Store) NextStateAt(iz, flat int) []float64 {
	dx := s.prob.Grid.Dims()
	return s.NextState[iz][flat*dx : (flat+1)*dx]
}

// StatsAt returns the recorded statistics at (iz, flat) as a sub-slice;
// callers must not modify it. Returns an empty slice when the model
// declares no statistics.
func (s *Store) StatsAt(iz, flat int) []float64 {
	ds := s.prob.Model.NumStats
	return s.Stats[iz][flat*ds : (flat+1)*ds]
}

// CopyValuesFrom overwrites the value arrays with src, which must match
// the store's exogenous-state count and grid size.
func (s *Store) CopyValuesFrom(src [][]float64) error {
	if len(src) != len(s.Values) {
		return fmt.Errorf("bellman: value stack has %d exogenous states, want %d", len(src), len(s.Values))
	}
	for iz := range src {
		if len(src[iz]) != len(s.Values[iz]) {
			return fmt.Errorf("bellman: value array %d has %d nodes, want %d", iz, len(src[iz]), len(s.Values[iz]))
		}
		copy(s.Values[iz], src[iz])
	}
	return nil
}
