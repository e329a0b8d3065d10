// Package sqlite persists solver runs and value-function checkpoints.
//
// Responsibilities: schema migration, run metadata (configuration, error
// trace, terminal state), and checkpointed value arrays so an interrupted
// or finished run can seed a later one.
// Key types: RunStore, Run.
//
// Dependency rule: sqlite may depend on bellman, never the reverse.
package sqlite
