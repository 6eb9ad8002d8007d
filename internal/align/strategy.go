package align

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"

	"github.com/cwbudde/crabalign/internal/opt"
	"golang.org/x/sync/errgroup"
)

// Strategy selects how candidates are searched. Every strategy returns the
// same Result as FindBestTarget.
type Strategy string

const (
	StrategyScan     Strategy = "scan"
	StrategyParallel Strategy = "parallel"
	StrategyMayfly   Strategy = "mayfly"
)

// ParseStrategy resolves a strategy name, defaulting to scan for "".
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return StrategyScan, nil
	case StrategyScan, StrategyParallel, StrategyMayfly:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// FindBestTargetParallel splits [min, max] into contiguous chunks evaluated
// concurrently. The reduction keeps the lowest (total, target) pair so ties
// still go to the smallest target.
func FindBestTargetParallel(ctx context.Context, positions []int, cost CostFunc, workers int) (Result, error) {
	lo, hi, err := Bounds(positions)
	if err != nil {
		return Result{}, err
	}

	span := hi - lo + 1
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > span {
		workers = span
	}
	chunk := (span + workers - 1) / workers
	workers = (span + chunk - 1) / chunk

	bests := make([]Candidate, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := lo + w*chunk
		end := min(start+chunk-1, hi)
		g.Go(func() error {
			local := Candidate{Target: start, Total: math.MaxInt}
			for t := start; t <= end; t++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				c := Candidate{Target: t, Total: TotalCost(positions, cost, t)}
				if better(c, local) {
					local = c
				}
			}
			bests[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("parallel scan: %w", err)
	}

	best := bests[0]
	for _, c := range bests[1:] {
		if better(c, best) {
			best = c
		}
	}

	return Result{
		Target: best.Target,
		Costs:  MovesForTarget(positions, cost, best.Target),
		Total:  best.Total,
	}, nil
}

// FindBestTargetWith runs a continuous optimizer over [min, max], rounds its
// answer and then walks downhill over the integers. Both cost models are
// convex in the target, so the walk ends on the global minimum; it keeps
// stepping left across equal totals so ties resolve like the scan.
func FindBestTargetWith(positions []int, cost CostFunc, optimizer opt.Optimizer) (Result, error) {
	lo, hi, err := Bounds(positions)
	if err != nil {
		return Result{}, err
	}

	clampRound := func(x float64) int {
		t := int(math.Round(x))
		return max(lo, min(hi, t))
	}

	start := lo
	if lo < hi {
		eval := func(x []float64) float64 {
			return float64(TotalCost(positions, cost, clampRound(x[0])))
		}
		best, _, err := optimizer.Run(eval, []float64{float64(lo)}, []float64{float64(hi)})
		if err != nil {
			return Result{}, fmt.Errorf("optimizer: %w", err)
		}
		start = clampRound(best[0])
	}

	t := start
	total := TotalCost(positions, cost, t)
	for t > lo {
		left := TotalCost(positions, cost, t-1)
		if left > total {
			break
		}
		t, total = t-1, left
	}
	for t < hi {
		right := TotalCost(positions, cost, t+1)
		if right >= total {
			break
		}
		t, total = t+1, right
	}

	return Result{
		Target: t,
		Costs:  MovesForTarget(positions, cost, t),
		Total:  total,
	}, nil
}
