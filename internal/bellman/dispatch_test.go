package bellman

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticSub builds a subproblem with beta=0 so the maximand reduces to the
// flow payoff; solver behavior can then be checked against closed forms.
func staticSub(t *testing.T, controls []Control, model Model) *Subproblem {
	t.Helper()
	g := mustGrid1D(t, 0, 1, 3)
	p, err := NewProblem(g, mustDeterministic(t), controls, model, 0)
	require.NoError(t, err)
	ev, err := NewExpectation(p, NewStore(p).Values, 0)
	require.NoError(t, err)
	sub, err := NewSubproblem(p, ev, 0, 0)
	require.NoError(t, err)
	return sub
}

func identityTransition(x, z, c []float64) []float64 {
	return []float64{x[0]}
}

func TestGoldenSectionScalar(t *testing.T) {
	t.Parallel()

	sub := staticSub(t,
		[]Control{{Name: "c", Continuous: true, Lower: constBound(0), Upper: constBound(1)}},
		Model{
			Payoff:     func(x, z, c []float64) float64 { return -(c[0] - 0.3) * (c[0] - 0.3) },
			Transition: identityTransition,
		})

	sol, err := Solve(sub, SolveOptions{Algorithm: AlgorithmGoldenSection, Tol: 1e-8})
	require.NoError(t, err)
	assert.True(t, sol.Converged)
	assert.InDelta(t, 0.3, sol.Control[0], 1e-6)
	assert.InDelta(t, 0.0, sol.Value, 1e-10)
}

// A transition can leave the real line on part of the control range (here
// sqrt of negative savings when c exceeds resources). Those controls are
// penalized instead of crashing the continuation lookup, and the maximum
// lands in the well-defined region.
func TestGoldenSectionNaNTransitionRegion(t *testing.T) {
	t.Parallel()

	g := mustGrid1D(t, 0, 1, 3)
	cont := Control{Name: "c", Continuous: true, Lower: constBound(0.05), Upper: constBound(1.5)}
	model := Model{
		Payoff:     func(x, z, c []float64) float64 { return math.Log(c[0]) },
		Transition: func(x, z, c []float64) []float64 { return []float64{math.Sqrt(x[0] - c[0])} },
	}
	p, err := NewProblem(g, mustDeterministic(t), []Control{cont}, model, 0.5)
	require.NoError(t, err)

	s := NewStore(p)
	require.NoError(t, s.CopyValuesFrom([][]float64{{0, 10, 20}}))
	ev, err := NewExpectation(p, s.Values, 0)
	require.NoError(t, err)
	sub, err := NewSubproblem(p, ev, 2, 0) // x = 1, so c > 1 transitions to NaN.
	require.NoError(t, err)

	sol, err := Solve(sub, SolveOptions{Algorithm: AlgorithmGoldenSection, Tol: 1e-8})
	require.NoError(t, err)
	assert.True(t, sol.Converged)

	// Q(c) = log c + 10·sqrt(1-c); the first-order condition gives
	// 1-c = 25c^2, so c* = (sqrt(101)-1)/50.
	want := (math.Sqrt(101) - 1) / 50
	assert.InDelta(t, want, sol.Control[0], 1e-5)
	assert.InDelta(t, math.Log(want)+10*math.Sqrt(1-want), sol.Value, 1e-8)
}

// The first enumerated discrete point transitions to NaN; it must not be
// locked in as the incumbent ahead of the finite-valued point.
func TestDiscreteSkipsNaNMaximand(t *testing.T) {
	t.Parallel()

	g := mustGrid1D(t, 0, 1, 3)
	disc := Control{Name: "d", Grid: []float64{-1, 0.5}}
	model := Model{
		Payoff:     func(x, z, c []float64) float64 { return c[0] },
		Transition: func(x, z, c []float64) []float64 { return []float64{math.Sqrt(c[0])} },
	}
	p, err := NewProblem(g, mustDeterministic(t), []Control{disc}, model, 0.5)
	require.NoError(t, err)

	s := NewStore(p)
	require.NoError(t, s.CopyValuesFrom([][]float64{{0, 10, 20}}))
	ev, err := NewExpectation(p, s.Values, 0)
	require.NoError(t, err)
	sub, err := NewSubproblem(p, ev, 0, 0)
	require.NoError(t, err)

	sol, err := Solve(sub, SolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0.5, sol.Control[0])
	assert.InDelta(t, 0.5+0.5*ev.Eval([]float64{math.Sqrt(0.5)}), sol.Value, 1e-12)
}

func TestGoldenSectionRejectsMultiDim(t *testing.T) {
	t.Parallel()

	sub := staticSub(t,
		[]Control{
			{Name: "a", Continuous: true, Lower: constBound(0), Upper: constBound(1)},
			{Name: "b", Continuous: true, Lower: constBound(0), Upper: constBound(1)},
		},
		Model{
			Payoff:     func(x, z, c []float64) float64 { return -c[0]*c[0] - c[1]*c[1] },
			Transition: identityTransition,
		})

	_, err := Solve(sub, SolveOptions{Algorithm: AlgorithmGoldenSection})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCoordinateDescentQuadratic(t *testing.T) {
	t.Parallel()

	sub := staticSub(t,
		[]Control{
			{Name: "a", Continuous: true, Lower: constBound(-1), Upper: constBound(1)},
			{Name: "b", Continuous: true, Lower: constBound(-1), Upper: constBound(1)},
		},
		Model{
			// Separable quadratic with maximum at (0.4, -0.2).
			Payoff: func(x, z, c []float64) float64 {
				return -(c[0]-0.4)*(c[0]-0.4) - 2*(c[1]+0.2)*(c[1]+0.2)
			},
			Transition: identityTransition,
		})

	sol, err := Solve(sub, SolveOptions{Algorithm: AlgorithmCoordinateDescent, Tol: 1e-8})
	require.NoError(t, err)
	assert.True(t, sol.Converged)
	assert.InDelta(t, 0.4, sol.Control[0], 1e-5)
	assert.InDelta(t, -0.2, sol.Control[1], 1e-5)
}

func TestDifferentialEvolutionQuadratic(t *testing.T) {
	t.Parallel()

	sub := staticSub(t,
		[]Control{
			{Name: "a", Continuous: true, Lower: constBound(-1), Upper: constBound(1)},
			{Name: "b", Continuous: true, Lower: constBound(-1), Upper: constBound(1)},
		},
		Model{
			Payoff: func(x, z, c []float64) float64 {
				return -(c[0]-0.25)*(c[0]-0.25) - (c[1]-0.75)*(c[1]-0.75)
			},
			Transition: identityTransition,
		})

	sol, err := Solve(sub, SolveOptions{Algorithm: AlgorithmDifferentialEvolution, MaxIter: 200, Seed: 42})
	require.NoError(t, err)
	// Best-effort contract: flag always true.
	assert.True(t, sol.Converged)
	assert.InDelta(t, 0.25, sol.Control[0], 1e-3)
	assert.InDelta(t, 0.75, sol.Control[1], 1e-3)
}

func TestNelderMeadHonorsConstraint(t *testing.T) {
	t.Parallel()

	sub := staticSub(t,
		[]Control{
			{Name: "a", Continuous: true, Lower: constBound(0), Upper: constBound(2)},
			{Name: "b", Continuous: true, Lower: constBound(0), Upper: constBound(2)},
		},
		Model{
			// Unconstrained maximum at (1,1); constraint a+b <= 1 pushes the
			// optimum to (0.5, 0.5).
			Payoff: func(x, z, c []float64) float64 {
				return -(c[0]-1)*(c[0]-1) - (c[1]-1)*(c[1]-1)
			},
			Transition: identityTransition,
			Constraint: func(x, z, c []float64) []float64 {
				return []float64{c[0] + c[1] - 1}
			},
			NumConstraints: 1,
		})

	sol, err := Solve(sub, SolveOptions{Algorithm: AlgorithmNelderMead, Tol: 1e-10, MaxIter: 2000})
	require.NoError(t, err)
	assert.True(t, sol.Converged)
	assert.InDelta(t, 0.5, sol.Control[0], 1e-3)
	assert.InDelta(t, 0.5, sol.Control[1], 1e-3)
	assert.LessOrEqual(t, sol.Control[0]+sol.Control[1], 1.0+1e-6)
}

func TestDiscreteExhaustiveArgmax(t *testing.T) {
	t.Parallel()

	sub := staticSub(t,
		[]Control{
			{Name: "d1", Grid: []float64{0, 1, 2}},
			{Name: "d2", Grid: []float64{10, 20}},
		},
		Model{
			Payoff: func(x, z, c []float64) float64 {
				return -(c[0]-1)*(c[0]-1) - math.Abs(c[1]-20)
			},
			Transition: identityTransition,
		})

	sol, err := Solve(sub, SolveOptions{})
	require.NoError(t, err)
	assert.True(t, sol.Converged)
	assert.Equal(t, []float64{1, 20}, sol.Control)
	assert.InDelta(t, 0.0, sol.Value, 1e-15)
}

func TestDiscreteTotalInfeasibilityFatal(t *testing.T) {
	t.Parallel()

	sub := staticSub(t,
		[]Control{{Name: "d", Grid: []float64{0, 1, 2}}},
		Model{
			Payoff:     func(x, z, c []float64) float64 { return c[0] },
			Transition: identityTransition,
			Constraint: func(x, z, c []float64) []float64 {
				return []float64{1} // Rejects every point.
			},
			NumConstraints: 1,
		})

	_, err := Solve(sub, SolveOptions{})
	assert.ErrorIs(t, err, ErrNoAdmissible)
}

func TestDiscreteConstraintFilters(t *testing.T) {
	t.Parallel()

	sub := staticSub(t,
		[]Control{{Name: "d", Grid: []float64{0, 1, 2, 3}}},
		Model{
			Payoff:     func(x, z, c []float64) float64 { return c[0] },
			Transition: identityTransition,
			Constraint: func(x, z, c []float64) []float64 {
				return []float64{c[0] - 1.5} // Admits 0 and 1 only.
			},
			NumConstraints: 1,
		})

	sol, err := Solve(sub, SolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, sol.Control)
}

// A 2-control toy MINLP: one discrete control with 3 grid values and one
// continuous control whose conditional optimum has a closed form. The
// outer enumeration must return the best of the three child optima with
// the full control vector reassembled in declaration order.
func TestMixedOuterEnumeration(t *testing.T) {
	t.Parallel()

	// Conditional on d, the continuous optimum is cc* = 0.2 + 0.3·d with
	// value h(d) = {0.1, 0.5, 0.3}[d]. Best child: d=1, cc=0.5, value 0.5.
	bonus := map[float64]float64{0: 0.1, 1: 0.5, 2: 0.3}
	sub := staticSub(t,
		[]Control{
			{Name: "d", Grid: []float64{0, 1, 2}},
			{Name: "cc", Continuous: true, Lower: constBound(0), Upper: constBound(1)},
		},
		Model{
			Payoff: func(x, z, c []float64) float64 {
				target := 0.2 + 0.3*c[0]
				return -(c[1]-target)*(c[1]-target) + bonus[c[0]]
			},
			Transition: identityTransition,
		})

	require.Equal(t, ShapeMixed, sub.Shape())
	sol, err := Solve(sub, SolveOptions{Algorithm: AlgorithmGoldenSection, Tol: 1e-9})
	require.NoError(t, err)
	assert.True(t, sol.Converged)
	assert.Equal(t, 1.0, sol.Control[0], "discrete coordinate")
	assert.InDelta(t, 0.5, sol.Control[1], 1e-6, "continuous coordinate")
	assert.InDelta(t, 0.5, sol.Value, 1e-9)
}

func TestMixedAllChildrenFailFatal(t *testing.T) {
	t.Parallel()

	sub := staticSub(t,
		[]Control{
			{Name: "d", Grid: []float64{0, 1}},
			{Name: "cc", Continuous: true, Lower: constBound(0), Upper: constBound(1)},
		},
		Model{
			Payoff:     func(x, z, c []float64) float64 { return -c[1] * c[1] },
			Transition: identityTransition,
			Constraint: func(x, z, c []float64) []float64 {
				return []float64{1} // Inadmissible everywhere.
			},
			NumConstraints: 1,
		})

	// Nelder-Mead children report failure when the optimum is inadmissible,
	// so every child drops out.
	_, err := Solve(sub, SolveOptions{Algorithm: AlgorithmNelderMead})
	assert.ErrorIs(t, err, ErrNoAdmissible)
}

func TestSolveUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	sub := staticSub(t,
		[]Control{{Name: "c", Continuous: true, Lower: constBound(0), Upper: constBound(1)}},
		quadraticModel())

	_, err := Solve(sub, SolveOptions{Algorithm: "newton"})
	assert.Error(t, err)
}
