package bellman

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/macroforge/bellman/internal/grid"
)

// Solution is the outcome of one point solve. The Converged flag carries
// family-specific semantics: exhaustive grid search reports true once any
// admissible point exists, the simplex search only on numerical
// convergence at an admissible point, and population search always.
// Callers aggregating diagnostics must not conflate these contracts.
type Solution struct {
	Value     float64
	Control   []float64
	Converged bool
}

var constraintWarn sync.Once

func warnConstraintIgnored(a Algorithm) {
	constraintWarn.Do(func() {
		log.Printf("bellman: algorithm %s ignores nonlinear constraints; use %s to enforce them", a, AlgorithmNelderMead)
	})
}

// Solve maximizes a subproblem, dispatching on its control shape. Fatal
// specification errors (shape/algorithm mismatch, total infeasibility)
// return an error; per-point numerical non-convergence is soft and only
// lowers the Converged flag.
func Solve(sub *Subproblem, opts SolveOptions) (Solution, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return Solution{}, err
	}
	switch sub.Shape() {
	case ShapeContinuous:
		return solveContinuousShape(sub, opts)
	case ShapeDiscrete:
		return solveDiscreteShape(sub, opts)
	default:
		return solveMixedShape(sub, opts)
	}
}

// boxFromSubproblem builds the minimization form over the full
// (all-continuous) control vector.
func boxFromSubproblem(sub *Subproblem) boxProblem {
	return boxProblem{
		eval: func(c []float64) float64 {
			v := sub.Q(c)
			if math.IsNaN(v) {
				return math.Inf(1)
			}
			return -v
		},
		feasible:  sub.Feasible,
		violation: sub.ConstraintViolation,
		lower:     sub.Lower,
		upper:     sub.Upper,
	}
}

// solveBox runs the continuous algorithm selected by opts on a box
// problem. hasConstraint gates the ignored-constraint warning.
func solveBox(bp boxProblem, hasConstraint bool, opts SolveOptions) (Solution, error) {
	alg := opts.Algorithm
	if alg == AlgorithmAuto {
		if bp.dims() == 1 {
			alg = AlgorithmGoldenSection
		} else {
			alg = AlgorithmNelderMead
		}
	}
	switch alg {
	case AlgorithmGoldenSection:
		if bp.dims() != 1 {
			return Solution{}, fmt.Errorf("%w: %s needs exactly one continuous control, have %d",
				ErrShapeMismatch, alg, bp.dims())
		}
		if hasConstraint {
			warnConstraintIgnored(alg)
		}
		return solveGolden(bp, opts), nil
	case AlgorithmDifferentialEvolution:
		if hasConstraint {
			warnConstraintIgnored(alg)
		}
		return solveDifferentialEvolution(bp, opts), nil
	case AlgorithmCoordinateDescent:
		if hasConstraint {
			warnConstraintIgnored(alg)
		}
		return solveCoordinateDescent(bp, opts), nil
	case AlgorithmNelderMead:
		return solveNelderMead(bp, opts), nil
	default:
		return Solution{}, fmt.Errorf("bellman: unknown algorithm %q", alg)
	}
}

func solveContinuousShape(sub *Subproblem, opts SolveOptions) (Solution, error) {
	return solveBox(boxFromSubproblem(sub), sub.HasConstraint(), opts)
}

// solveDiscreteShape exhaustively enumerates the tensor product of the
// discrete control grids, hard-filtering inadmissible points. Total
// infeasibility is fatal.
func solveDiscreteShape(sub *Subproblem, opts SolveOptions) (Solution, error) {
	marginals := make([][]float64, len(sub.prob.Controls))
	for i, ctrl := range sub.prob.Controls {
		marginals[i] = ctrl.Grid
	}
	cg, err := grid.NewTensor(marginals...)
	if err != nil {
		return Solution{}, fmt.Errorf("bellman: discrete control grid: %w", err)
	}

	best := Solution{Value: math.Inf(-1)}
	admissible := false
	c := make([]float64, cg.Dims())
	cg.Each(func(flat int, mi grid.MultiIndex) {
		cg.Coordinate(mi, c)
		if !sub.Feasible(c) {
			return
		}
		admissible = true
		// A NaN maximand never becomes the incumbent: NaN compares false
		// against everything, so once locked in it could not be displaced.
		if v := sub.Q(c); !math.IsNaN(v) && (v > best.Value || best.Control == nil) {
			best.Value = v
			best.Control = append(best.Control[:0], c...)
		}
	})
	if !admissible {
		return Solution{}, fmt.Errorf("%w: every discrete point at x=%v iz=%d rejected by constraints",
			ErrNoAdmissible, sub.X, sub.IZ)
	}
	// Exhaustive search trivially converges once any admissible point exists.
	best.Converged = true
	return best, nil
}

// solveMixedShape reduces the mixed-integer problem by outer enumeration:
// every assignment of the discrete subgrid is fixed in turn and the
// remaining coordinates are solved as an ordinary continuous subproblem
// with the caller's algorithm tag. Children that fail to converge are
// excluded from the comparison; if every child fails the point is
// infeasible, which is fatal.
func solveMixedShape(sub *Subproblem, opts SolveOptions) (Solution, error) {
	contIdx := sub.prob.contIdx
	discIdx := sub.prob.discIdx

	marginals := make([][]float64, len(discIdx))
	for k, i := range discIdx {
		marginals[k] = sub.prob.Controls[i].Grid
	}
	dg, err := grid.NewTensor(marginals...)
	if err != nil {
		return Solution{}, fmt.Errorf("bellman: discrete control grid: %w", err)
	}

	lower := make([]float64, len(contIdx))
	upper := make([]float64, len(contIdx))
	for k, i := range contIdx {
		lower[k] = sub.Lower[i]
		upper[k] = sub.Upper[i]
	}

	// assemble scatters fixed discrete values and a continuous candidate
	// into a full control vector.
	full := make([]float64, sub.prob.NumControls())
	fixed := make([]float64, len(discIdx))
	assemble := func(cc []float64) []float64 {
		for k, i := range discIdx {
			full[i] = fixed[k]
		}
		for k, i := range contIdx {
			full[i] = cc[k]
		}
		return full
	}

	best := Solution{Value: math.Inf(-1)}
	anyChild := false
	var solveErr error
	dg.Each(func(flat int, mi grid.MultiIndex) {
		if solveErr != nil {
			return
		}
		dg.Coordinate(mi, fixed)

		child := boxProblem{
			eval: func(cc []float64) float64 {
				v := sub.Q(assemble(cc))
				if math.IsNaN(v) {
					return math.Inf(1)
				}
				return -v
			},
			feasible:  func(cc []float64) bool { return sub.Feasible(assemble(cc)) },
			violation: func(cc []float64) float64 { return sub.ConstraintViolation(assemble(cc)) },
			lower:     lower,
			upper:     upper,
		}
		sol, err := solveBox(child, sub.HasConstraint(), opts)
		if err != nil {
			solveErr = err
			return
		}
		// A failed child counts as -Inf and drops out of the comparison.
		if !sol.Converged {
			return
		}
		anyChild = true
		if sol.Value > best.Value || best.Control == nil {
			win := make([]float64, sub.prob.NumControls())
			for k, i := range discIdx {
				win[i] = fixed[k]
			}
			for k, i := range contIdx {
				win[i] = sol.Control[k]
			}
			best = Solution{Value: sol.Value, Control: win, Converged: true}
		}
	})
	if solveErr != nil {
		return Solution{}, solveErr
	}
	if !anyChild {
		return Solution{}, fmt.Errorf("%w: every discrete assignment at x=%v iz=%d failed its continuous solve",
			ErrNoAdmissible, sub.X, sub.IZ)
	}
	return best, nil
}
