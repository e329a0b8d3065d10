// Package grid provides tensor (Cartesian-product) grids over continuous
// state spaces and fixed discrete control coordinates.
//
// A Tensor grid is defined by one ordered coordinate array per dimension;
// the grid is the Cartesian product of those marginals. Grids are immutable
// after construction and safe for concurrent reads.
//
// Key types: Tensor, MultiIndex.
package grid
