package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/crabalign/internal/align"
)

// Record is a persisted alignment result.
// All fields are serialized to JSON for the filesystem and Redis backends.
type Record struct {
	// ID is the unique identifier of the run (the server job ID, or a fresh UUID from the CLI)
	ID string `json:"id"`

	// Positions are the crab positions in input order
	Positions []int `json:"positions"`

	CostModel align.CostModel `json:"costModel"`
	Strategy  align.Strategy  `json:"strategy"`

	// Target is the cheapest position and Total its summed fuel
	Target int `json:"target"`
	Total  int `json:"total"`

	// Costs holds each crab's fuel at Target, aligned with Positions
	Costs []int `json:"costs"`

	CreatedAt time.Time     `json:"createdAt"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RecordInfo is the listing view of a Record without the per-crab vectors.
type RecordInfo struct {
	ID        string          `json:"id"`
	Crabs     int             `json:"crabs"`
	CostModel align.CostModel `json:"costModel"`
	Target    int             `json:"target"`
	Total     int             `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewRecord converts a solution into a persistable record.
func NewRecord(id string, sol *align.Solution) *Record {
	return &Record{
		ID:        id,
		Positions: sol.Positions,
		CostModel: sol.Model,
		Strategy:  sol.Strategy,
		Target:    sol.Target,
		Total:     sol.Total,
		Costs:     sol.Costs,
		CreatedAt: time.Now(),
		Elapsed:   sol.Elapsed,
	}
}

// ToInfo converts a full Record to RecordInfo (metadata only).
func (r *Record) ToInfo() RecordInfo {
	return RecordInfo{
		ID:        r.ID,
		Crabs:     len(r.Positions),
		CostModel: r.CostModel,
		Target:    r.Target,
		Total:     r.Total,
		CreatedAt: r.CreatedAt,
	}
}

// Solution rebuilds the align.Solution the record was made from.
func (r *Record) Solution() *align.Solution {
	return &align.Solution{
		Result: align.Result{
			Target: r.Target,
			Costs:  r.Costs,
			Total:  r.Total,
		},
		Positions: r.Positions,
		Model:     r.CostModel,
		Strategy:  r.Strategy,
		Elapsed:   r.Elapsed,
	}
}

// Validate checks that the record is internally consistent.
func (r *Record) Validate() error {
	if err := validateID(r.ID); err != nil {
		return &ValidationError{Field: "ID", Reason: err.Error()}
	}
	if len(r.Positions) == 0 {
		return &ValidationError{Field: "Positions", Reason: "cannot be empty"}
	}
	if len(r.Costs) != len(r.Positions) {
		return &ValidationError{
			Field:  "Costs",
			Reason: fmt.Sprintf("length mismatch: got %d costs for %d positions", len(r.Costs), len(r.Positions)),
		}
	}
	lo, hi, _ := align.Bounds(r.Positions)
	if r.Target < lo || r.Target > hi {
		return &ValidationError{Field: "Target", Reason: fmt.Sprintf("must lie in [%d, %d]", lo, hi)}
	}
	sum := 0
	for i, c := range r.Costs {
		if c < 0 {
			return &ValidationError{Field: fmt.Sprintf("Costs[%d]", i), Reason: "cannot be negative"}
		}
		sum += c
	}
	if sum != r.Total {
		return &ValidationError{Field: "Total", Reason: fmt.Sprintf("does not match sum of costs (%d)", sum)}
	}
	if r.CreatedAt.IsZero() {
		return &ValidationError{Field: "CreatedAt", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
