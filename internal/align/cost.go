package align

import (
	"fmt"
	"strings"
)

// CostFunc returns the fuel a crab at from spends to reach to. It must be
// non-negative for every pair of positions.
type CostFunc func(from, to int) int

// CostModel selects one of the known cost functions.
type CostModel int

const (
	// Linear charges one unit of fuel per step.
	Linear CostModel = iota
	// Triangular charges 1 for the first step, 2 for the second, and so on.
	Triangular
)

// LinearCost computes |from-to|
func LinearCost(from, to int) int {
	return distance(from, to)
}

// TriangularCost computes d*(d+1)/2 where d = |from-to|
func TriangularCost(from, to int) int {
	d := distance(from, to)
	return d * (d + 1) / 2
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// Func returns the cost function for the model.
func (m CostModel) Func() CostFunc {
	switch m {
	case Triangular:
		return TriangularCost
	default:
		return LinearCost
	}
}

func (m CostModel) String() string {
	switch m {
	case Linear:
		return "linear"
	case Triangular:
		return "triangular"
	default:
		return fmt.Sprintf("CostModel(%d)", int(m))
	}
}

// MarshalText encodes the model by name so it reads well in JSON and YAML.
func (m CostModel) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the same names as ParseCostModel.
func (m *CostModel) UnmarshalText(text []byte) error {
	parsed, err := ParseCostModel(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseCostModel resolves a model name. "constant" and "increasing" are
// accepted as aliases for linear and triangular.
func ParseCostModel(name string) (CostModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "linear", "constant":
		return Linear, nil
	case "triangular", "increasing":
		return Triangular, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCostModel, name)
	}
}
