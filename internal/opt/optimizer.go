package opt

// Optimizer defines a continuous minimisation algorithm
type Optimizer interface {
	// Run minimises eval over the box [lower, upper]. The dimensionality is
	// len(lower). Returns the best point found and its cost.
	Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}
