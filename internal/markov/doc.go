// Package markov provides finite-state exogenous Markov chains and
// AR(1) discretization methods (Tauchen, Rouwenhorst).
//
// A Chain is a set of shock vectors together with a row-stochastic
// transition matrix. Chains are immutable after construction. A chain
// with a single state is the deterministic sentinel: the expectation
// over it is the identity.
package markov
