package align

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cwbudde/crabalign/internal/opt"
)

// Request describes one alignment run
type Request struct {
	Positions []int
	Model     CostModel
	Strategy  Strategy

	// Workers bounds the parallel strategy; 0 uses GOMAXPROCS.
	Workers int

	// Optimizer backs the mayfly strategy; nil uses opt.NewMayfly with defaults.
	Optimizer opt.Optimizer
}

// Solution holds the output of Solve
type Solution struct {
	Result
	Positions []int         `json:"positions"`
	Model     CostModel     `json:"costModel"`
	Strategy  Strategy      `json:"strategy"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Solve finds the cheapest target for req using the requested strategy.
// The positions are copied, so callers may reuse their slice.
func Solve(ctx context.Context, req Request) (*Solution, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategyScan
	}
	positions := slices.Clone(req.Positions)
	cost := req.Model.Func()

	slog.Debug("Starting alignment", "crabs", len(positions), "cost_model", req.Model.String(), "strategy", string(strategy))

	start := time.Now()
	var (
		result Result
		err    error
	)
	switch strategy {
	case StrategyScan:
		result, err = FindBestTarget(positions, cost)
	case StrategyParallel:
		result, err = FindBestTargetParallel(ctx, positions, cost, req.Workers)
	case StrategyMayfly:
		optimizer := req.Optimizer
		if optimizer == nil {
			optimizer = opt.NewMayfly(opt.DefaultIters, opt.DefaultPopSize, opt.DefaultSeed)
		}
		result, err = FindBestTargetWith(positions, cost, optimizer)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	slog.Debug("Alignment complete", "target", result.Target, "total", result.Total, "elapsed", elapsed)

	return &Solution{
		Result:    result,
		Positions: positions,
		Model:     req.Model,
		Strategy:  strategy,
		Elapsed:   elapsed,
	}, nil
}
