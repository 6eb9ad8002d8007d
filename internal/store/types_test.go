package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cwbudde/crabalign/internal/align"
)

// createTestRecord solves the sample swarm and wraps it in a record.
func createTestRecord(t *testing.T, id string) *Record {
	t.Helper()

	sol, err := align.Solve(context.Background(), align.Request{
		Positions: []int{16, 1, 2, 0, 4, 2, 7, 1, 2, 14},
		Model:     align.Triangular,
	})
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	return NewRecord(id, sol)
}

func TestRecord_JSONSerialization(t *testing.T) {
	original := createTestRecord(t, "test-job-123")
	original.CreatedAt = time.Date(2025, 10, 23, 10, 30, 0, 0, time.UTC)

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal record: %v", err)
	}

	var restored Record
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Failed to unmarshal record: %v", err)
	}

	if restored.ID != original.ID || restored.Target != 5 || restored.Total != 168 {
		t.Errorf("Restored record mismatch: %+v", restored)
	}
	if restored.CostModel != align.Triangular {
		t.Errorf("CostModel = %s, want triangular", restored.CostModel)
	}
	if !restored.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", restored.CreatedAt, original.CreatedAt)
	}

	var raw map[string]any
	json.Unmarshal(data, &raw)
	if raw["costModel"] != "triangular" {
		t.Errorf("costModel should serialize by name, got %v", raw["costModel"])
	}
}

func TestRecord_ToInfo(t *testing.T) {
	rec := createTestRecord(t, "info-job")
	info := rec.ToInfo()

	if info.ID != "info-job" || info.Crabs != 10 || info.Target != 5 || info.Total != 168 {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestRecord_Solution(t *testing.T) {
	rec := createTestRecord(t, "sol-job")
	sol := rec.Solution()

	if sol.Target != rec.Target || sol.Total != rec.Total || len(sol.Costs) != len(rec.Positions) {
		t.Errorf("Solution mismatch: %+v", sol)
	}
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Record)
		field  string
	}{
		{"valid", func(*Record) {}, ""},
		{"empty id", func(r *Record) { r.ID = "" }, "ID"},
		{"no positions", func(r *Record) { r.Positions = nil }, "Positions"},
		{"cost length", func(r *Record) { r.Costs = r.Costs[:3] }, "Costs"},
		{"target outside range", func(r *Record) { r.Target = 99 }, "Target"},
		{"negative cost", func(r *Record) { r.Costs[0] = -1 }, "Costs[0]"},
		{"total mismatch", func(r *Record) { r.Total++ }, "Total"},
		{"zero time", func(r *Record) { r.CreatedAt = time.Time{} }, "CreatedAt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := createTestRecord(t, "validate-job")
			tt.mutate(rec)

			err := rec.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Expected valid record, got %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %s, want %s", verr.Field, tt.field)
			}
		})
	}
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{ID: "abc"}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
	if err.Error() != "result not found: abc" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
	if ErrNotFound.Error() != "result not found" {
		t.Errorf("Unexpected message: %s", ErrNotFound.Error())
	}
}
