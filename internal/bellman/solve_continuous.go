package bellman

import (
	"math"
	"math/rand"
)

// boxProblem is the minimization form handed to the continuous solvers:
// minimize eval over the box [lower, upper]. eval is the negated maximand
// and maps NaN to +Inf so comparisons stay total. feasible and violation
// report nonlinear constraint admissibility of the full control vector.
type boxProblem struct {
	eval      func([]float64) float64
	feasible  func([]float64) bool
	violation func([]float64) float64
	lower     []float64
	upper     []float64
}

func (b boxProblem) dims() int { return len(b.lower) }

// invGolden is the inverse golden ratio used by the section search.
var invGolden = (math.Sqrt(5) - 1) / 2

// goldenSection minimizes a 1-D function on [lo, hi] by golden-section
// search. Tolerance is on the argument. Returns the located minimizer and
// whether the bracket shrank below tol within the iteration cap.
func goldenSection(fn func(float64) float64, lo, hi, tol float64, maxIter int) (float64, bool) {
	if hi-lo <= tol {
		return (lo + hi) / 2, true
	}
	a, b := lo, hi
	c := b - invGolden*(b-a)
	d := a + invGolden*(b-a)
	fc, fd := fn(c), fn(d)
	for i := 0; i < maxIter; i++ {
		if b-a <= tol {
			return (a + b) / 2, true
		}
		if fc < fd {
			b, d, fd = d, c, fc
			c = b - invGolden*(b-a)
			fc = fn(c)
		} else {
			a, c, fc = c, d, fd
			d = a + invGolden*(b-a)
			fd = fn(d)
		}
	}
	return (a + b) / 2, b-a <= tol
}

// solveGolden runs the bounded scalar search on a 1-D box problem.
func solveGolden(bp boxProblem, opts SolveOptions) Solution {
	fn := func(x float64) float64 { return bp.eval([]float64{x}) }
	arg, ok := goldenSection(fn, bp.lower[0], bp.upper[0], opts.Tol, opts.MaxIter)
	c := []float64{arg}
	return Solution{Value: -bp.eval(c), Control: c, Converged: ok}
}

// solveCoordinateDescent alternates bounded 1-D golden-section searches
// along each coordinate, starting from the box midpoint, until the largest
// coordinate or objective change in a full pass drops below tol.
func solveCoordinateDescent(bp boxProblem, opts SolveOptions) Solution {
	d := bp.dims()
	c := make([]float64, d)
	for k := range c {
		c[k] = (bp.lower[k] + bp.upper[k]) / 2
	}
	fPrev := bp.eval(c)

	converged := false
	for pass := 0; pass < opts.MaxIter; pass++ {
		maxMove := 0.0
		for k := 0; k < d; k++ {
			line := func(x float64) float64 {
				old := c[k]
				c[k] = x
				v := bp.eval(c)
				c[k] = old
				return v
			}
			arg, _ := goldenSection(line, bp.lower[k], bp.upper[k], opts.Tol, opts.MaxIter)
			if move := math.Abs(arg - c[k]); move > maxMove {
				maxMove = move
			}
			c[k] = arg
		}
		f := bp.eval(c)
		if maxMove < opts.Tol || math.Abs(fPrev-f) < opts.Tol {
			converged = true
			fPrev = f
			break
		}
		fPrev = f
	}
	return Solution{Value: -fPrev, Control: c, Converged: converged}
}

// solveDifferentialEvolution runs a rand/1/bin differential-evolution
// search over the box. The method carries no reliable convergence test, so
// the returned flag is always true (best-effort contract); callers must
// not read it as a converged-to-optimum certificate.
func solveDifferentialEvolution(bp boxProblem, opts SolveOptions) Solution {
	const (
		weight    = 0.7 // Differential weight F
		crossover = 0.9 // Crossover probability CR
	)
	d := bp.dims()
	np := opts.PopSize
	if np <= 0 {
		np = 15 * d
	}
	if np < 4 {
		np = 4
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	pop := make([][]float64, np)
	cost := make([]float64, np)
	for i := range pop {
		pop[i] = make([]float64, d)
		for k := 0; k < d; k++ {
			pop[i][k] = bp.lower[k] + rng.Float64()*(bp.upper[k]-bp.lower[k])
		}
		cost[i] = bp.eval(pop[i])
	}

	trial := make([]float64, d)
	for gen := 0; gen < opts.MaxIter; gen++ {
		for i := 0; i < np; i++ {
			r1, r2, r3 := rng.Intn(np), rng.Intn(np), rng.Intn(np)
			jr := rng.Intn(d)
			for k := 0; k < d; k++ {
				if k == jr || rng.Float64() < crossover {
					v := pop[r1][k] + weight*(pop[r2][k]-pop[r3][k])
					// Clamp mutants back into the box.
					if v < bp.lower[k] {
						v = bp.lower[k]
					} else if v > bp.upper[k] {
						v = bp.upper[k]
					}
					trial[k] = v
				} else {
					trial[k] = pop[i][k]
				}
			}
			if tc := bp.eval(trial); tc <= cost[i] {
				copy(pop[i], trial)
				cost[i] = tc
			}
		}
	}

	best := 0
	for i := 1; i < np; i++ {
		if cost[i] < cost[best] {
			best = i
		}
	}
	return Solution{Value: -cost[best], Control: append([]float64(nil), pop[best]...), Converged: true}
}
