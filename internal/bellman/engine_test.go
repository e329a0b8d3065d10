package bellman

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macroforge/bellman/internal/grid"
	"github.com/macroforge/bellman/internal/markov"
)

// savingsProblem is a deterministic log-utility consumption-savings model:
// resources w, consumption c in (0, w], next resources R(w-c) + y. The
// income floor y keeps the transition on the grid so every optimal policy
// is interior.
func savingsProblem(t *testing.T, nodes int) *Problem {
	t.Helper()
	const (
		rGross = 1.03
		income = 0.5
	)
	m, err := grid.Linspace(0.5, 10, nodes)
	require.NoError(t, err)
	g, err := grid.NewTensor(m)
	require.NoError(t, err)

	consumption := Control{
		Name:       "consumption",
		Continuous: true,
		Lower:      func(x, z []float64) float64 { return 1e-4 },
		Upper:      func(x, z []float64) float64 { return x[0] },
	}
	model := Model{
		Payoff: func(x, z, c []float64) float64 { return math.Log(c[0]) },
		Transition: func(x, z, c []float64) []float64 {
			return []float64{rGross*(x[0]-c[0]) + income}
		},
	}
	p, err := NewProblem(g, mustDeterministic(t), []Control{consumption}, model, 0.95)
	require.NoError(t, err)
	return p
}

func TestVFIConvergesOnSavingsModel(t *testing.T) {
	t.Parallel()

	p := savingsProblem(t, 40)
	s := NewStore(p)
	res, err := Run(p, s, Options{MaxIter: 500, Tol: 1e-5})
	require.NoError(t, err)

	assert.Equal(t, StateConverged, res.State)
	require.NotEmpty(t, res.Errors)
	assert.Less(t, res.Errors[len(res.Errors)-1], 1e-5)
	assert.Equal(t, len(res.Errors), res.Sweeps)

	// Recovered policy is interior and monotone in resources.
	prev := 0.0
	for flat := 0; flat < p.Grid.Size(); flat++ {
		w := p.Grid.CoordinateAtFlat(flat)[0]
		c := s.PolicyAt(0, flat)[0]
		assert.Greater(t, c, 0.0, "w=%g", w)
		assert.Less(t, c, w, "w=%g", w)
		assert.GreaterOrEqual(t, c, prev-1e-6, "policy not monotone at w=%g", w)
		prev = c
	}

	// Value is increasing in resources.
	for flat := 1; flat < p.Grid.Size(); flat++ {
		assert.Greater(t, s.Value(0, flat), s.Value(0, flat-1))
	}
}

func TestVFIParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	p := savingsProblem(t, 25)

	seq := NewStore(p)
	resSeq, err := Run(p, seq, Options{MaxIter: 80, Tol: 1e-7})
	require.NoError(t, err)

	par := NewStore(p)
	resPar, err := Run(p, par, Options{MaxIter: 80, Tol: 1e-7, Parallel: true, Workers: 4})
	require.NoError(t, err)

	require.Equal(t, len(resSeq.Errors), len(resPar.Errors))
	for i := range resSeq.Errors {
		assert.InDelta(t, resSeq.Errors[i], resPar.Errors[i], 1e-12, "sweep %d", i+1)
	}
	for flat := 0; flat < p.Grid.Size(); flat++ {
		assert.InDelta(t, seq.Value(0, flat), par.Value(0, flat), 1e-12)
		assert.InDelta(t, seq.PolicyAt(0, flat)[0], par.PolicyAt(0, flat)[0], 1e-12)
	}
}

func TestVFIExhaustsNonFatally(t *testing.T) {
	t.Parallel()

	p := savingsProblem(t, 15)
	s := NewStore(p)
	res, err := Run(p, s, Options{MaxIter: 3, Tol: 1e-12})
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 3, res.Sweeps)
	assert.Len(t, res.Errors, 3)
}

func TestVFIStochasticTwoState(t *testing.T) {
	t.Parallel()

	m, err := grid.Linspace(0.5, 8, 20)
	require.NoError(t, err)
	g, err := grid.NewTensor(m)
	require.NoError(t, err)
	ch, err := markov.NewChain(
		[][]float64{{0.9}, {1.1}},
		[][]float64{{0.9, 0.1}, {0.1, 0.9}},
	)
	require.NoError(t, err)

	consumption := Control{
		Name:       "consumption",
		Continuous: true,
		Lower:      func(x, z []float64) float64 { return 1e-4 },
		Upper:      func(x, z []float64) float64 { return x[0] },
	}
	model := Model{
		Payoff: func(x, z, c []float64) float64 { return math.Log(c[0]) },
		Transition: func(x, z, c []float64) []float64 {
			return []float64{1.02*(x[0]-c[0]) + 0.5*z[0]}
		},
	}
	p, err := NewProblem(g, ch, []Control{consumption}, model, 0.94)
	require.NoError(t, err)

	s := NewStore(p)
	res, err := Run(p, s, Options{MaxIter: 500, Tol: 1e-5, Parallel: true})
	require.NoError(t, err)
	assert.Equal(t, StateConverged, res.State)

	// The high-income state is worth more everywhere.
	for flat := 0; flat < p.Grid.Size(); flat++ {
		assert.Greater(t, s.Value(1, flat), s.Value(0, flat))
	}
}

func TestVFIPolicyReplayEvaluatesStoredPolicy(t *testing.T) {
	t.Parallel()

	p := savingsProblem(t, 15)
	s := NewStore(p)
	_, err := Run(p, s, Options{MaxIter: 400, Tol: 1e-6})
	require.NoError(t, err)

	policy := make([]float64, p.Grid.Size())
	for flat := range policy {
		policy[flat] = s.PolicyAt(0, flat)[0]
	}

	res, err := Run(p, s, Options{
		MaxIter:         400,
		Tol:             1e-6,
		PolicyReplay:    true,
		UseCurrentGuess: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StateConverged, res.State)

	// Replay never re-optimizes: the stored policy is unchanged.
	for flat := range policy {
		assert.Equal(t, policy[flat], s.PolicyAt(0, flat)[0])
	}
	// Every replayed point trivially "converges".
	for _, share := range res.SuccessShare {
		assert.Equal(t, 1.0, share)
	}
}

func TestVFIInitGuessAndResume(t *testing.T) {
	t.Parallel()

	p := savingsProblem(t, 20)

	cold := NewStore(p)
	resCold, err := Run(p, cold, Options{MaxIter: 500, Tol: 1e-6})
	require.NoError(t, err)

	// Resuming from the converged iterate takes a single sweep.
	warm := NewStore(p)
	require.NoError(t, warm.CopyValuesFrom(cold.Values))
	resWarm, err := Run(p, warm, Options{MaxIter: 500, Tol: 1e-6, UseCurrentGuess: true})
	require.NoError(t, err)
	assert.Equal(t, StateConverged, resWarm.State)
	assert.Less(t, resWarm.Sweeps, resCold.Sweeps)

	// A function-filled guess near the fixed point also speeds things up.
	guessed := NewStore(p)
	resGuess, err := Run(p, guessed, Options{
		MaxIter:   500,
		Tol:       1e-6,
		InitGuess: func(x, z []float64) float64 { return math.Log(x[0]) / (1 - 0.95) },
	})
	require.NoError(t, err)
	assert.Equal(t, StateConverged, resGuess.State)
	assert.Less(t, resGuess.Sweeps, resCold.Sweeps)
}

func TestVFIDegenerateObjectiveFatal(t *testing.T) {
	t.Parallel()

	g := mustGrid1D(t, 0, 1, 4)
	c := Control{Name: "c", Continuous: true, Lower: constBound(0), Upper: constBound(1)}
	model := Model{
		Payoff:     func(x, z, c []float64) float64 { return math.NaN() },
		Transition: func(x, z, c []float64) []float64 { return []float64{x[0]} },
	}
	p, err := NewProblem(g, mustDeterministic(t), []Control{c}, model, 0.9)
	require.NoError(t, err)

	_, err = Run(p, NewStore(p), Options{MaxIter: 5, Tol: 1e-6})
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestVFIOptionValidation(t *testing.T) {
	t.Parallel()

	p := savingsProblem(t, 10)
	s := NewStore(p)

	_, err := Run(p, s, Options{PNorm: 0.5})
	assert.Error(t, err, "p-norm below 1")

	_, err = Run(p, s, Options{Solver: SolveOptions{Algorithm: "newton"}})
	assert.Error(t, err, "unknown algorithm")

	_, err = Run(nil, s, Options{})
	assert.Error(t, err)

	other := NewStore(savingsProblem(t, 10))
	_, err = Run(p, other, Options{})
	assert.Error(t, err, "store from another problem")
}

// Over-saving bounds let the sweep explore controls whose transition is
// not a real number (sqrt of negative savings). The run must treat those
// controls as disfavored and converge to a policy that keeps the next
// state well defined, not die inside a worker.
func TestVFISurvivesNaNTransitionRegion(t *testing.T) {
	t.Parallel()

	m, err := grid.Linspace(0.25, 4, 25)
	require.NoError(t, err)
	g, err := grid.NewTensor(m)
	require.NoError(t, err)

	consumption := Control{
		Name:       "consumption",
		Continuous: true,
		Lower:      func(x, z []float64) float64 { return 1e-3 },
		Upper:      func(x, z []float64) float64 { return x[0] + 0.5 },
	}
	model := Model{
		Payoff: func(x, z, c []float64) float64 { return math.Log(c[0]) },
		Transition: func(x, z, c []float64) []float64 {
			return []float64{math.Sqrt(x[0]-c[0]) + 0.25}
		},
	}
	p, err := NewProblem(g, mustDeterministic(t), []Control{consumption}, model, 0.9)
	require.NoError(t, err)

	s := NewStore(p)
	res, err := Run(p, s, Options{MaxIter: 400, Tol: 1e-5})
	require.NoError(t, err)
	assert.Equal(t, StateConverged, res.State)

	for flat := 0; flat < p.Grid.Size(); flat++ {
		x := p.Grid.CoordinateAtFlat(flat)[0]
		c := s.PolicyAt(0, flat)[0]
		assert.LessOrEqual(t, c, x+1e-6, "policy must not consume past resources")
		assert.False(t, math.IsNaN(s.Values[0][flat]))
	}
}

func TestVFIPNormVariants(t *testing.T) {
	t.Parallel()

	p := savingsProblem(t, 12)

	sup := NewStore(p)
	resSup, err := Run(p, sup, Options{MaxIter: 10, Tol: 1e-12})
	require.NoError(t, err)

	l2 := NewStore(p)
	resL2, err := Run(p, l2, Options{MaxIter: 10, Tol: 1e-12, PNorm: 2})
	require.NoError(t, err)

	// Same iterates, so the L2 error dominates the sup error sweep by sweep.
	require.Equal(t, len(resSup.Errors), len(resL2.Errors))
	for i := range resSup.Errors {
		assert.GreaterOrEqual(t, resL2.Errors[i]+1e-15, resSup.Errors[i])
	}
}
