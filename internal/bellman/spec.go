package bellman

import (
	"fmt"
	"log"
	"math"

	"github.com/macroforge/bellman/internal/grid"
	"github.com/macroforge/bellman/internal/markov"
)

// PayoffFunc evaluates the flow payoff u(x, z, c).
type PayoffFunc func(x, z, c []float64) float64

// TransitionFunc evaluates the continuous-state transition f(x, z, c),
// returning the next-period state vector of dimension Dx.
type TransitionFunc func(x, z, c []float64) []float64

// ConstraintFunc evaluates the inequality constraints g(x, z, c); a control
// is admissible when every component is <= 0. Equality constraints are not
// supported and must be eliminated by the modeler via auxiliary variables.
type ConstraintFunc func(x, z, c []float64) []float64

// StatsFunc evaluates auxiliary model statistics s(x, z, c) recorded
// alongside the policy.
type StatsFunc func(x, z, c []float64) []float64

// BoundFunc evaluates a state-dependent control bound at (x, z).
type BoundFunc func(x, z []float64) float64

// Control specifies one control dimension. Continuous controls carry
// state-dependent lower/upper bound functions; discrete controls carry a
// fixed, strictly increasing coordinate grid instead.
type Control struct {
	Name       string
	Continuous bool
	Lower      BoundFunc // Continuous only
	Upper      BoundFunc // Continuous only
	Grid       []float64 // Discrete only
}

// Model bundles the user-supplied model functions. Payoff and Transition
// are required; Constraint and Statistics are optional.
type Model struct {
	Payoff     PayoffFunc
	Transition TransitionFunc
	Constraint ConstraintFunc
	Statistics StatsFunc

	// NumConstraints and NumStats declare the output dimensions of the
	// optional functions (zero when the function is nil).
	NumConstraints int
	NumStats       int
}

// Problem is the immutable specification of a dynamic program: state grid,
// exogenous process, controls, model functions and discount factor.
// Construct once with NewProblem; read-only thereafter and safe for
// concurrent use.
type Problem struct {
	Grid     *grid.Tensor
	Chain    *markov.Chain
	Controls []Control
	Model    Model
	Beta     float64

	contIdx []int // Indices of continuous controls
	discIdx []int // Indices of discrete controls
}

// NewProblem validates and assembles a problem specification. Validation
// failures are specification errors and fatal by design.
func NewProblem(g *grid.Tensor, chain *markov.Chain, controls []Control, model Model, beta float64) (*Problem, error) {
	if g == nil {
		return nil, fmt.Errorf("bellman: nil grid")
	}
	if chain == nil {
		return nil, fmt.Errorf("bellman: nil exogenous chain")
	}
	if len(controls) == 0 {
		return nil, fmt.Errorf("bellman: need at least one control")
	}
	if model.Payoff == nil {
		return nil, fmt.Errorf("bellman: model payoff function is required")
	}
	if model.Transition == nil {
		return nil, fmt.Errorf("bellman: model transition function is required")
	}
	if model.Constraint == nil && model.NumConstraints > 0 {
		return nil, fmt.Errorf("bellman: NumConstraints = %d but no constraint function", model.NumConstraints)
	}
	if model.Statistics == nil && model.NumStats > 0 {
		return nil, fmt.Errorf("bellman: NumStats = %d but no statistics function", model.NumStats)
	}
	if beta < 0 || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return nil, fmt.Errorf("bellman: discount factor %g must be finite and >= 0", beta)
	}
	if beta > 1 {
		log.Printf("bellman: discount factor %g exceeds 1; the Bellman operator may not contract", beta)
	}

	p := &Problem{Grid: g, Chain: chain, Controls: append([]Control(nil), controls...), Model: model, Beta: beta}
	for i, c := range controls {
		if c.Continuous {
			if c.Lower == nil || c.Upper == nil {
				return nil, fmt.Errorf("bellman: continuous control %q needs lower and upper bound functions", c.Name)
			}
			p.contIdx = append(p.contIdx, i)
			continue
		}
		if len(c.Grid) == 0 {
			return nil, fmt.Errorf("%w: control %q", ErrMissingGrid, c.Name)
		}
		for k := 1; k < len(c.Grid); k++ {
			if c.Grid[k] <= c.Grid[k-1] {
				return nil, fmt.Errorf("bellman: discrete control %q grid not strictly increasing", c.Name)
			}
		}
		p.discIdx = append(p.discIdx, i)
	}
	return p, nil
}

// NumControls returns Dc, the total number of control dimensions.
func (p *Problem) NumControls() int { return len(p.Controls) }

// NumContinuous returns the number of continuous control dimensions.
func (p *Problem) NumContinuous() int { return len(p.contIdx) }

// NumDiscrete returns the number of discrete control dimensions.
func (p *Problem) NumDiscrete() int { return len(p.discIdx) }

// Shape classifies the control vector as continuous, discrete or mixed.
func (p *Problem) Shape() Shape {
	switch {
	case len(p.discIdx) == 0:
		return ShapeContinuous
	case len(p.contIdx) == 0:
		return ShapeDiscrete
	default:
		return ShapeMixed
	}
}

// Shape identifies which solver family a problem's control vector needs.
type Shape string

const (
	// ShapeContinuous means every control dimension is continuous.
	ShapeContinuous Shape = "continuous"

	// ShapeDiscrete means every control dimension is discrete.
	ShapeDiscrete Shape = "discrete"

	// ShapeMixed means the control vector has both continuous and discrete
	// dimensions and is solved by outer enumeration.
	ShapeMixed Shape = "mixed"
)

// String returns the string representation of the shape.
func (s Shape) String() string { return string(s) }

// IsValid returns true if the shape is a known valid value.
func (s Shape) IsValid() bool {
	switch s {
	case ShapeContinuous, ShapeDiscrete, ShapeMixed:
		return true
	default:
		return false
	}
}
