package bellman

import (
	"math"
	"sort"
)

// penaltyWeight scales the constraint violation added to the minimized
// objective inside the simplex search. Large enough that any admissible
// point beats any inadmissible one on well-scaled models.
const penaltyWeight = 1e8

// inwardFraction places the simplex start point slightly inside the box,
// 5% of the edge length above the lower bound.
const inwardFraction = 0.05

// solveNelderMead minimizes the penalized box problem with a Nelder–Mead
// simplex clamped to the box. It is the only continuous family that honors
// nonlinear inequality constraints. Converged is true only when the
// simplex collapsed below tolerance and the chosen point is admissible.
func solveNelderMead(bp boxProblem, opts SolveOptions) Solution {
	const (
		alpha = 1.0 // Reflection
		gamma = 2.0 // Expansion
		rho   = 0.5 // Contraction
		sigma = 0.5 // Shrink
	)
	d := bp.dims()

	clamp := func(c []float64) {
		for k := range c {
			if c[k] < bp.lower[k] {
				c[k] = bp.lower[k]
			} else if c[k] > bp.upper[k] {
				c[k] = bp.upper[k]
			}
		}
	}
	penalized := func(c []float64) float64 {
		v := bp.eval(c)
		if pv := bp.violation(c); pv > 0 {
			if pv == math.MaxFloat64 {
				return math.Inf(1)
			}
			v += penaltyWeight * pv
		}
		return v
	}

	// Initial simplex: x0 is 5% inward from the lower bound; the remaining
	// vertices step along each coordinate.
	x0 := make([]float64, d)
	for k := 0; k < d; k++ {
		x0[k] = bp.lower[k] + inwardFraction*(bp.upper[k]-bp.lower[k])
	}
	verts := make([][]float64, d+1)
	fvals := make([]float64, d+1)
	verts[0] = x0
	for i := 1; i <= d; i++ {
		v := append([]float64(nil), x0...)
		step := 0.1 * (bp.upper[i-1] - bp.lower[i-1])
		if step == 0 {
			step = 1e-6
		}
		v[i-1] += step
		clamp(v)
		verts[i] = v
	}
	for i := range verts {
		fvals[i] = penalized(verts[i])
	}

	order := make([]int, d+1)
	centroid := make([]float64, d)
	point := func(base, dir []float64, t float64) []float64 {
		p := make([]float64, d)
		for k := range p {
			p[k] = base[k] + t*(base[k]-dir[k])
		}
		clamp(p)
		return p
	}

	converged := false
	for iter := 0; iter < opts.MaxIter; iter++ {
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return fvals[order[a]] < fvals[order[b]] })
		best, worst := order[0], order[d]

		// Spread over values and vertex coordinates.
		spread := 0.0
		for _, i := range order[1:] {
			if s := math.Abs(fvals[i] - fvals[best]); s > spread {
				spread = s
			}
			for k := 0; k < d; k++ {
				if s := math.Abs(verts[i][k] - verts[best][k]); s > spread {
					spread = s
				}
			}
		}
		if spread < opts.Tol {
			converged = true
			break
		}

		for k := range centroid {
			centroid[k] = 0
		}
		for _, i := range order[:d] {
			for k := 0; k < d; k++ {
				centroid[k] += verts[i][k] / float64(d)
			}
		}

		refl := point(centroid, verts[worst], alpha)
		fr := penalized(refl)
		switch {
		case fr < fvals[order[0]]:
			exp := point(centroid, verts[worst], gamma)
			if fe := penalized(exp); fe < fr {
				verts[worst], fvals[worst] = exp, fe
			} else {
				verts[worst], fvals[worst] = refl, fr
			}
		case fr < fvals[order[d-1]]:
			verts[worst], fvals[worst] = refl, fr
		default:
			con := point(centroid, verts[worst], -rho)
			if fc := penalized(con); fc < fvals[worst] {
				verts[worst], fvals[worst] = con, fc
			} else {
				// Shrink toward the best vertex.
				for _, i := range order[1:] {
					for k := 0; k < d; k++ {
						verts[i][k] = verts[best][k] + sigma*(verts[i][k]-verts[best][k])
					}
					clamp(verts[i])
					fvals[i] = penalized(verts[i])
				}
			}
		}
	}

	best := 0
	for i := 1; i <= d; i++ {
		if fvals[i] < fvals[best] {
			best = i
		}
	}
	c := append([]float64(nil), verts[best]...)
	return Solution{
		Value:     -bp.eval(c),
		Control:   c,
		Converged: converged && bp.feasible(c),
	}
}
