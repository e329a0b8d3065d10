package markov

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Tauchen discretizes the AR(1) process z' = (1-rho)*mu + rho*z + eps,
// eps ~ N(0, sigma²), onto n evenly spaced states spanning ±spread
// unconditional standard deviations around mu. Transition probabilities are
// normal-CDF masses of the interval midpoints (Tauchen 1986).
func Tauchen(n int, mu, rho, sigma, spread float64) (*Chain, error) {
	if n < 2 {
		return nil, fmt.Errorf("markov: tauchen needs n >= 2, got %d", n)
	}
	if rho <= -1 || rho >= 1 {
		return nil, fmt.Errorf("markov: tauchen needs |rho| < 1, got %g", rho)
	}
	if sigma <= 0 || spread <= 0 {
		return nil, fmt.Errorf("markov: tauchen needs sigma, spread > 0")
	}

	sigmaZ := sigma / math.Sqrt(1-rho*rho) // Unconditional std dev.
	lo := mu - spread*sigmaZ
	hi := mu + spread*sigmaZ
	step := (hi - lo) / float64(n-1)

	states := make([][]float64, n)
	for i := range states {
		states[i] = []float64{lo + float64(i)*step}
	}

	norm := distuv.Normal{Mu: 0, Sigma: sigma}
	trans := make([][]float64, n)
	for i := range trans {
		row := make([]float64, n)
		cond := (1-rho)*mu + rho*states[i][0]
		for j := range row {
			zj := states[j][0]
			switch j {
			case 0:
				row[j] = norm.CDF(zj - cond + step/2)
			case n - 1:
				row[j] = 1 - norm.CDF(zj-cond-step/2)
			default:
				row[j] = norm.CDF(zj-cond+step/2) - norm.CDF(zj-cond-step/2)
			}
		}
		trans[i] = row
	}
	return NewChain(states, trans)
}

// Rouwenhorst discretizes the same AR(1) process onto n states using the
// Rouwenhorst (1995) recursion, which matches the conditional mean and
// variance exactly and remains accurate for rho near 1.
func Rouwenhorst(n int, mu, rho, sigma float64) (*Chain, error) {
	if n < 2 {
		return nil, fmt.Errorf("markov: rouwenhorst needs n >= 2, got %d", n)
	}
	if rho <= -1 || rho >= 1 {
		return nil, fmt.Errorf("markov: rouwenhorst needs |rho| < 1, got %g", rho)
	}
	if sigma <= 0 {
		return nil, fmt.Errorf("markov: rouwenhorst needs sigma > 0")
	}

	p := (1 + rho) / 2
	// Start from the 2-state chain and expand one state at a time.
	trans := [][]float64{
		{p, 1 - p},
		{1 - p, p},
	}
	for m := 3; m <= n; m++ {
		next := make([][]float64, m)
		for i := range next {
			next[i] = make([]float64, m)
		}
		for i := 0; i < m-1; i++ {
			for j := 0; j < m-1; j++ {
				v := trans[i][j]
				next[i][j] += p * v
				next[i][j+1] += (1 - p) * v
				next[i+1][j] += (1 - p) * v
				next[i+1][j+1] += p * v
			}
		}
		// Interior rows were counted twice.
		for i := 1; i < m-1; i++ {
			for j := 0; j < m; j++ {
				next[i][j] /= 2
			}
		}
		trans = next
	}

	sigmaZ := sigma / math.Sqrt(1-rho*rho)
	span := sigmaZ * math.Sqrt(float64(n-1))
	states := make([][]float64, n)
	for i := range states {
		states[i] = []float64{mu - span + 2*span*float64(i)/float64(n-1)}
	}
	return NewChain(states, trans)
}
