package bellman

import "errors"

// Fatal condition sentinels. These signal specification or modeling errors
// and are never retried; per-point numerical non-convergence is reported
// through the Converged flag on Solution instead.
var (
	// ErrBadBounds indicates a non-finite or inverted control bound
	// (lb > ub) at some state point.
	ErrBadBounds = errors.New("bellman: invalid control bounds")

	// ErrShapeMismatch indicates an algorithm tag that cannot solve the
	// problem's control shape.
	ErrShapeMismatch = errors.New("bellman: algorithm cannot handle control shape")

	// ErrMissingGrid indicates a discrete control declared without a
	// coordinate grid.
	ErrMissingGrid = errors.New("bellman: discrete control has no grid")

	// ErrNoAdmissible indicates that no control satisfies the constraints
	// at some state point.
	ErrNoAdmissible = errors.New("bellman: no admissible control")

	// ErrDegenerate indicates a NaN or infinite objective at a solver's
	// chosen optimum, signaling a modeling or numerical breakdown.
	ErrDegenerate = errors.New("bellman: degenerate objective value")
)
