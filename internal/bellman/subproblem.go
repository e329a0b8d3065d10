package bellman

import (
	"fmt"
	"math"

	"github.com/macroforge/bellman/internal/interp"
)

// feasTol is the slack allowed on inequality constraints: a control is
// admissible when every component of g is <= feasTol. Looser than the
// solver tolerances so that a simplex optimum sitting on an active
// constraint still counts as admissible.
const feasTol = 1e-6

// Subproblem is the maximization problem at one (state point, exogenous
// state) pair:
//
//	maximize u(x,z,c) + beta·EV(f(x,z,c))
//	subject to lb(x,z) <= c <= ub(x,z) and g(x,z,c) <= 0.
//
// Bounds are evaluated once at construction; a non-finite or inverted
// bound is a fatal specification error. A Subproblem carries no hidden
// captured state: everything the solvers need is in its fields.
type Subproblem struct {
	prob *Problem

	// X and Z are the state point and the exogenous shock vector.
	X []float64
	Z []float64

	// IZ is the exogenous state index.
	IZ int

	// EV is the sweep's expectation interpolant for IZ.
	EV *interp.Multilinear

	// Lower and Upper hold the evaluated box bounds of the continuous
	// controls, indexed like Problem.Controls. Discrete positions hold
	// their grid endpoints.
	Lower []float64
	Upper []float64
}

// NewSubproblem assembles and validates the point problem at grid node
// flat under exogenous state iz, using ev as the continuation interpolant.
func NewSubproblem(prob *Problem, ev *interp.Multilinear, flat, iz int) (*Subproblem, error) {
	x := prob.Grid.CoordinateAtFlat(flat)
	z := prob.Chain.State(iz)

	s := &Subproblem{
		prob:  prob,
		X:     x,
		Z:     z,
		IZ:    iz,
		EV:    ev,
		Lower: make([]float64, prob.NumControls()),
		Upper: make([]float64, prob.NumControls()),
	}
	for i, ctrl := range prob.Controls {
		if !ctrl.Continuous {
			s.Lower[i] = ctrl.Grid[0]
			s.Upper[i] = ctrl.Grid[len(ctrl.Grid)-1]
			continue
		}
		lb := ctrl.Lower(x, z)
		ub := ctrl.Upper(x, z)
		if math.IsNaN(lb) || math.IsInf(lb, 0) || math.IsNaN(ub) || math.IsInf(ub, 0) {
			return nil, fmt.Errorf("%w: control %q has non-finite bounds [%g, %g] at x=%v",
				ErrBadBounds, ctrl.Name, lb, ub, x)
		}
		if lb > ub {
			return nil, fmt.Errorf("%w: control %q has lb %g > ub %g at x=%v",
				ErrBadBounds, ctrl.Name, lb, ub, x)
		}
		s.Lower[i] = lb
		s.Upper[i] = ub
	}
	return s, nil
}

// Q evaluates the maximand at a full control vector: flow payoff plus the
// discounted continuation value at the transitioned state.
func (s *Subproblem) Q(c []float64) float64 {
	u := s.prob.Model.Payoff(s.X, s.Z, c)
	next := s.prob.Model.Transition(s.X, s.Z, c)
	return u + s.prob.Beta*s.EV.Eval(next)
}

// HasConstraint reports whether the model declares inequality constraints.
func (s *Subproblem) HasConstraint() bool { return s.prob.Model.Constraint != nil }

// Feasible reports whether the control satisfies every inequality
// constraint within feasTol. Vacuously true without a constraint function.
func (s *Subproblem) Feasible(c []float64) bool {
	if s.prob.Model.Constraint == nil {
		return true
	}
	for _, gi := range s.prob.Model.Constraint(s.X, s.Z, c) {
		if math.IsNaN(gi) || gi > feasTol {
			return false
		}
	}
	return true
}

// ConstraintViolation returns the summed positive part of g(x,z,c), used
// by penalty-based solvers. Zero when admissible; NaN counts as a large
// violation.
func (s *Subproblem) ConstraintViolation(c []float64) float64 {
	if s.prob.Model.Constraint == nil {
		return 0
	}
	total := 0.0
	for _, gi := range s.prob.Model.Constraint(s.X, s.Z, c) {
		if math.IsNaN(gi) {
			return math.MaxFloat64
		}
		if gi > 0 {
			total += gi
		}
	}
	return total
}

// Shape returns the control shape of the underlying problem.
func (s *Subproblem) Shape() Shape { return s.prob.Shape() }
