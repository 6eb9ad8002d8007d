package align

import (
	"fmt"
	"math"
)

const (
	// MaxSpan bounds the number of candidates a search will visit
	MaxSpan = 1 << 30

	// MaxScanSpan bounds Scan, which keeps every candidate in memory
	MaxScanSpan = 1 << 22
)

// Result is the best target found for a set of positions
type Result struct {
	Target int   `json:"target"`
	Costs  []int `json:"costs"` // Per-crab fuel, aligned with the input positions
	Total  int   `json:"total"`
}

// Candidate is the total fuel spent when every crab moves to Target
type Candidate struct {
	Target int `json:"target"`
	Total  int `json:"total"`
}

// Bounds returns the smallest and largest position. Ranges whose candidates
// cannot be counted in an int, or that exceed MaxSpan, fail with
// ErrRangeTooLarge; lo and hi are still returned.
func Bounds(positions []int) (lo, hi int, err error) {
	if len(positions) == 0 {
		return 0, 0, ErrInvalidInput
	}
	lo, hi = positions[0], positions[0]
	for _, p := range positions[1:] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	// hi == MaxInt would make the t <= hi loops wrap around
	if hi == math.MaxInt || hi-lo < 0 || hi-lo >= MaxSpan {
		return lo, hi, fmt.Errorf("%w: [%d, %d]", ErrRangeTooLarge, lo, hi)
	}
	return lo, hi, nil
}

// MovesForTarget returns the fuel each crab spends to reach target, in input order.
func MovesForTarget(positions []int, cost CostFunc, target int) []int {
	moves := make([]int, len(positions))
	for i, p := range positions {
		moves[i] = cost(p, target)
	}
	return moves
}

// TotalCost sums the fuel of every crab moving to target.
func TotalCost(positions []int, cost CostFunc, target int) int {
	var sum int
	for _, p := range positions {
		sum += cost(p, target)
	}
	return sum
}

// FindBestTarget scans every integer in [min, max] of positions and returns
// the target with the lowest total cost. Ties resolve to the smallest target.
func FindBestTarget(positions []int, cost CostFunc) (Result, error) {
	lo, hi, err := Bounds(positions)
	if err != nil {
		return Result{}, err
	}

	best := lo
	bestTotal := TotalCost(positions, cost, lo)
	for t := lo + 1; t <= hi; t++ {
		if total := TotalCost(positions, cost, t); total < bestTotal {
			best, bestTotal = t, total
		}
	}

	return Result{
		Target: best,
		Costs:  MovesForTarget(positions, cost, best),
		Total:  bestTotal,
	}, nil
}

// Scan evaluates every candidate in [min, max] in ascending order.
func Scan(positions []int, cost CostFunc) ([]Candidate, error) {
	lo, hi, err := Bounds(positions)
	if err != nil {
		return nil, err
	}
	if hi-lo >= MaxScanSpan {
		return nil, fmt.Errorf("%w: scan of [%d, %d] exceeds %d candidates", ErrRangeTooLarge, lo, hi, MaxScanSpan)
	}

	candidates := make([]Candidate, 0, hi-lo+1)
	for t := lo; t <= hi; t++ {
		candidates = append(candidates, Candidate{Target: t, Total: TotalCost(positions, cost, t)})
	}
	return candidates, nil
}

// better reports whether a beats b: lower total first, then lower target.
func better(a, b Candidate) bool {
	if a.Total != b.Total {
		return a.Total < b.Total
	}
	return a.Target < b.Target
}
