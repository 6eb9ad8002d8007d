package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	Register()
}

func TestHandlerExposesCollectors(t *testing.T) {
	Jobs.WithLabelValues("completed").Inc()
	CandidatesScanned.Add(17)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"crabalign_jobs_total", "crabalign_candidates_scanned_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("Metrics output missing %s", name)
		}
	}

	if got := testutil.ToFloat64(Jobs.WithLabelValues("completed")); got < 1 {
		t.Errorf("Jobs{completed} = %f, want >= 1", got)
	}
}
