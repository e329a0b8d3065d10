package bellman

import "fmt"

// Algorithm selects the continuous optimization method used by the solver
// dispatch. Discrete problems ignore the tag (always exhaustive search);
// mixed problems pass it through to their continuous child solves.
type Algorithm string

const (
	// AlgorithmAuto picks GoldenSection for 1-D problems and NelderMead
	// otherwise.
	AlgorithmAuto Algorithm = "auto"

	// AlgorithmGoldenSection is a bounded 1-D scalar search with tolerance
	// on the argument. Ignores nonlinear constraints.
	AlgorithmGoldenSection Algorithm = "golden_section"

	// AlgorithmDifferentialEvolution is a derivative-free population search
	// over the box. Best-effort: its convergence flag is always true since
	// the method has no reliable convergence test. Ignores nonlinear
	// constraints.
	AlgorithmDifferentialEvolution Algorithm = "differential_evolution"

	// AlgorithmCoordinateDescent alternates bounded 1-D searches per
	// coordinate until the largest coordinate or objective change drops
	// below tolerance. Ignores nonlinear constraints.
	AlgorithmCoordinateDescent Algorithm = "coordinate_descent"

	// AlgorithmNelderMead is a constrained direct simplex search started a
	// little inward from the lower bound. The only family honoring
	// nonlinear inequality constraints; its convergence flag is true only
	// when the simplex converged and the optimum is admissible.
	AlgorithmNelderMead Algorithm = "nelder_mead"
)

// String returns the string representation of the algorithm.
func (a Algorithm) String() string { return string(a) }

// IsValid returns true if the algorithm is a known valid value.
func (a Algorithm) IsValid() bool {
	switch a {
	case AlgorithmAuto, AlgorithmGoldenSection, AlgorithmDifferentialEvolution,
		AlgorithmCoordinateDescent, AlgorithmNelderMead:
		return true
	default:
		return false
	}
}

// SolveOptions configures a single point solve. Zero values are replaced
// with the documented defaults by withDefaults.
type SolveOptions struct {
	Algorithm Algorithm // Continuous method selection (default: auto)
	Tol       float64   // Solver tolerance (default: 1e-8)
	MaxIter   int       // Solver iteration cap (default: 500)
	PopSize   int       // Population size for differential evolution (default: 15 per dimension)
	Seed      int64     // RNG seed for population search; fixed per point for determinism
}

// DefaultSolveOptions returns the per-point solver defaults.
func DefaultSolveOptions() SolveOptions {
	return SolveOptions{
		Algorithm: AlgorithmAuto,
		Tol:       1e-8,
		MaxIter:   500,
		PopSize:   0, // 15 per dimension
		Seed:      1,
	}
}

func (o SolveOptions) withDefaults() SolveOptions {
	if o.Algorithm == "" {
		o.Algorithm = AlgorithmAuto
	}
	if o.Tol <= 0 {
		o.Tol = 1e-8
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 500
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	return o
}

// validate rejects unknown algorithm tags before any solve.
func (o SolveOptions) validate() error {
	if !o.Algorithm.IsValid() {
		return fmt.Errorf("bellman: unknown algorithm %q", o.Algorithm)
	}
	return nil
}
