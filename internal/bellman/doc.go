// Package bellman solves infinite-horizon, time-homogeneous stochastic
// dynamic programs by value function iteration.
//
// Responsibilities: problem specification, result storage, the
// expectation/interpolation operator, per-point subproblem construction,
// solver dispatch across continuous/discrete/mixed control shapes, and
// the parallel fixed-point iteration driver.
// Key types: Problem, Store, Subproblem, Options, RunResult.
//
// Dependency rule: bellman may depend on grid, markov and interp, but
// never on storage or report. No SQL/database code is allowed in this
// package.
package bellman
