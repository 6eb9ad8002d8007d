// Package align finds the position on a line that a group of crabs can all
// reach for the least total fuel.
//
// The core is FindBestTarget, an exhaustive scan over every integer between
// the smallest and largest position. The cost of a move is pluggable through
// CostFunc; Linear and Triangular cover the two known fuel models.
//
//	res, err := align.FindBestTarget([]int{16, 1, 2, 0, 4, 2, 7, 1, 2, 14}, align.LinearCost)
//	// res.Target == 2, res.Total == 37
package align
