package align

import (
	"context"
	"errors"
	"testing"

	"github.com/cwbudde/crabalign/internal/opt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedOptimizer always answers x, so the integer refinement is what gets tested.
type fixedOptimizer struct {
	x   float64
	err error
}

func (f fixedOptimizer) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return []float64{f.x}, eval([]float64{f.x}), nil
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyScan, s)

	s, err = ParseStrategy("Parallel")
	require.NoError(t, err)
	assert.Equal(t, StrategyParallel, s)

	_, err = ParseStrategy("bisect")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestFindBestTargetParallel_MatchesScan(t *testing.T) {
	inputs := [][]int{
		samplePositions,
		{5},
		{0, 10},
		{3, 100, 42, 42, 8, 77, 13},
	}
	for _, positions := range inputs {
		for _, model := range []CostModel{Linear, Triangular} {
			want, err := FindBestTarget(positions, model.Func())
			require.NoError(t, err)

			for _, workers := range []int{0, 1, 3, 64} {
				got, err := FindBestTargetParallel(context.Background(), positions, model.Func(), workers)
				require.NoError(t, err)
				assert.Equal(t, want, got, "positions=%v model=%s workers=%d", positions, model, workers)
			}
		}
	}
}

func TestFindBestTargetParallel_Errors(t *testing.T) {
	_, err := FindBestTargetParallel(context.Background(), nil, LinearCost, 2)
	assert.ErrorIs(t, err, ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FindBestTargetParallel(ctx, samplePositions, LinearCost, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindBestTargetWith_RefinesFromAnyStart(t *testing.T) {
	for _, model := range []CostModel{Linear, Triangular} {
		want, err := FindBestTarget(samplePositions, model.Func())
		require.NoError(t, err)

		for _, x := range []float64{-3, 0, 1.4, 2.6, 8, 15.9, 40} {
			got, err := FindBestTargetWith(samplePositions, model.Func(), fixedOptimizer{x: x})
			require.NoError(t, err)
			assert.Equal(t, want, got, "model=%s start=%v", model, x)
		}
	}
}

func TestFindBestTargetWith_TieGoesToSmallest(t *testing.T) {
	got, err := FindBestTargetWith([]int{0, 10}, LinearCost, fixedOptimizer{x: 7})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Target)
}

func TestFindBestTargetWith_OptimizerError(t *testing.T) {
	_, err := FindBestTargetWith(samplePositions, LinearCost, fixedOptimizer{err: errors.New("boom")})
	assert.Error(t, err)

	// A single position never consults the optimizer.
	got, err := FindBestTargetWith([]int{5}, LinearCost, fixedOptimizer{err: errors.New("boom")})
	require.NoError(t, err)
	assert.Equal(t, 5, got.Target)
}

func TestFindBestTargetWith_Mayfly(t *testing.T) {
	got, err := FindBestTargetWith(samplePositions, TriangularCost, opt.NewMayfly(opt.DefaultIters, opt.DefaultPopSize, opt.DefaultSeed))
	require.NoError(t, err)
	assert.Equal(t, 5, got.Target)
	assert.Equal(t, 168, got.Total)
}
