package bellman

import (
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/macroforge/bellman/internal/interp"
)

// RunState is the terminal state of a value function iteration run.
type RunState string

const (
	// StateConverged means the sweep error crossed the tolerance.
	StateConverged RunState = "converged"

	// StateExhausted means the iteration cap was reached first. Non-fatal:
	// the last iterate and the full error trace are still returned.
	StateExhausted RunState = "exhausted"
)

// String returns the string representation of the run state.
func (s RunState) String() string { return string(s) }

// Options configures a value function iteration run. Zero values take the
// documented defaults. Options are passed by value and never mutated after
// the run starts.
type Options struct {
	MaxIter int     // Sweep cap (default: 300)
	Tol     float64 // Convergence tolerance on the sweep error (default: 1e-6)

	// PNorm selects the error norm between consecutive value arrays:
	// +Inf or 0 for the sup norm (default), otherwise an L^p norm, p >= 1.
	PNorm float64

	Parallel bool // Split each sweep across workers
	Workers  int  // Worker count when parallel (default: GOMAXPROCS)

	// PolicyReplay disables re-optimization: each sweep replays the stored
	// policy and only recomputes value, next state and statistics from it.
	PolicyReplay bool

	// UseCurrentGuess keeps the store's value arrays as the starting
	// iterate instead of reinitializing them.
	UseCurrentGuess bool

	// InitGuess, when set and UseCurrentGuess is false, function-fills the
	// initial value arrays; otherwise they are zero-filled.
	InitGuess func(x, z []float64) float64

	Verbose bool // Per-sweep progress logging; never affects results

	Solver SolveOptions // Per-point solver configuration
}

func (o Options) withDefaults() Options {
	if o.MaxIter <= 0 {
		o.MaxIter = 300
	}
	if o.Tol <= 0 {
		o.Tol = 1e-6
	}
	if o.PNorm == 0 {
		o.PNorm = math.Inf(1)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if !o.Parallel {
		o.Workers = 1
	}
	o.Solver = o.Solver.withDefaults()
	return o
}

func (o Options) validate() error {
	if o.PNorm < 1 {
		return fmt.Errorf("bellman: PNorm %g must be >= 1 or +Inf", o.PNorm)
	}
	return o.Solver.validate()
}

// RunResult reports the outcome of a run: terminal state, sweep count, the
// per-sweep error trace, and the per-sweep share of point solves whose
// solver reported convergence.
type RunResult struct {
	State        RunState
	Sweeps       int
	Errors       []float64
	SuccessShare []float64
}

// pointOutcome is one point solve's contribution, staged in a worker-local
// buffer until the sweep barrier.
type pointOutcome struct {
	value     float64
	policy    []float64
	nextState []float64
	stats     []float64
	converged bool
}

// Run drives the Bellman operator to a fixed point with Gauss–Jacobi
// sweeps: every point solve in sweep t reads only sweep t-1 values through
// the per-state expectation interpolants, and results land in fresh "next"
// buffers merged after a full barrier, so parallel and sequential runs
// produce identical iterates.
//
// Fatal conditions (specification errors, total infeasibility, degenerate
// objectives) abort with an error; exhausting MaxIter does not.
func Run(prob *Problem, store *Store, opts Options) (*RunResult, error) {
	if prob == nil || store == nil {
		return nil, fmt.Errorf("bellman: nil problem or store")
	}
	if store.Problem() != prob {
		return nil, fmt.Errorf("bellman: store was allocated for a different problem")
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if !opts.UseCurrentGuess {
		if opts.InitGuess != nil {
			store.InitFunc(opts.InitGuess)
		} else {
			store.InitConstant(0)
		}
	}

	nz := prob.Chain.NumStates()
	n := prob.Grid.Size()
	units := nz * n

	res := &RunResult{State: StateExhausted}
	for sweep := 1; sweep <= opts.MaxIter; sweep++ {
		// Expectation interpolants over the sweep t-1 values, one per
		// exogenous state, built before any point solve.
		evs := make([]*interp.Multilinear, nz)
		for iz := 0; iz < nz; iz++ {
			ev, err := NewExpectation(prob, store.Values, iz)
			if err != nil {
				return nil, err
			}
			evs[iz] = ev
		}

		outcomes := make([]pointOutcome, units)
		var wg sync.WaitGroup
		errs := make([]error, opts.Workers)
		chunk := (units + opts.Workers - 1) / opts.Workers
		for w := 0; w < opts.Workers; w++ {
			start := w * chunk
			end := start + chunk
			if end > units {
				end = units
			}
			if start >= end {
				continue
			}
			wg.Add(1)
			go func(w, start, end int) {
				defer wg.Done()
				for u := start; u < end; u++ {
					iz, flat := u/n, u%n
					out, err := solvePoint(prob, store, evs[iz], flat, iz, opts)
					if err != nil {
						errs[w] = err
						return
					}
					outcomes[u] = out
				}
			}(w, start, end)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("bellman: sweep %d: %w", sweep, err)
			}
		}

		// Merge single-threaded after the barrier: sweep error first, then
		// the live arrays, so the trace is deterministic in worker count.
		sweepErr := 0.0
		succeeded := 0
		diff := make([]float64, n)
		for iz := 0; iz < nz; iz++ {
			for flat := 0; flat < n; flat++ {
				out := outcomes[iz*n+flat]
				diff[flat] = out.value - store.Values[iz][flat]
				if out.converged {
					succeeded++
				}
			}
			if e := floats.Norm(diff, opts.PNorm); e > sweepErr {
				sweepErr = e
			}
		}
		for iz := 0; iz < nz; iz++ {
			for flat := 0; flat < n; flat++ {
				out := outcomes[iz*n+flat]
				store.Values[iz][flat] = out.value
				copy(store.PolicyAt(iz, flat), out.policy)
				copy(store.NextStateAt(iz, flat), out.nextState)
				copy(store.StatsAt(iz, flat), out.stats)
			}
		}

		res.Sweeps = sweep
		res.Errors = append(res.Errors, sweepErr)
		res.SuccessShare = append(res.SuccessShare, float64(succeeded)/float64(units))
		if opts.Verbose {
			log.Printf("bellman: sweep %d error %.3e solver success %.1f%%",
				sweep, sweepErr, 100*res.SuccessShare[sweep-1])
		}
		if sweepErr < opts.Tol {
			res.State = StateConverged
			break
		}
	}
	return res, nil
}

// solvePoint runs one (grid point, exogenous state) unit of a sweep:
// either a full build-and-solve, or a replay of the stored policy with
// value, next state and statistics recomputed from it.
func solvePoint(prob *Problem, store *Store, ev *interp.Multilinear, flat, iz int, opts Options) (pointOutcome, error) {
	sub, err := NewSubproblem(prob, ev, flat, iz)
	if err != nil {
		return pointOutcome{}, err
	}

	var sol Solution
	if opts.PolicyReplay {
		c := append([]float64(nil), store.PolicyAt(iz, flat)...)
		sol = Solution{Value: sub.Q(c), Control: c, Converged: true}
	} else {
		sol, err = Solve(sub, opts.Solver)
		if err != nil {
			return pointOutcome{}, err
		}
	}
	if math.IsNaN(sol.Value) || math.IsInf(sol.Value, 0) {
		return pointOutcome{}, fmt.Errorf("%w: value %g at x=%v iz=%d",
			ErrDegenerate, sol.Value, sub.X, iz)
	}

	out := pointOutcome{
		value:     sol.Value,
		policy:    sol.Control,
		nextState: prob.Model.Transition(sub.X, sub.Z, sol.Control),
		converged: sol.Converged,
	}
	if prob.Model.Statistics != nil {
		out.stats = prob.Model.Statistics(sub.X, sub.Z, sol.Control)
	}
	return out, nil
}
