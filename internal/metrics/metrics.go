// Package metrics holds the prometheus collectors exported by the server.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the server
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, route and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crabalign_http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "route", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "crabalign_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)
	// RateLimited counts requests rejected by the rate limiter
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "crabalign_http_rate_limited_total", Help: "Requests rejected with 429."},
	)

	// Jobs counts finished jobs by final state
	Jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "crabalign_jobs_total", Help: "Finished alignment jobs by state."},
		[]string{"state"},
	)
	// SolveDuration records alignment time by strategy and cost model
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "crabalign_solve_duration_seconds", Help: "Time spent finding the best target.", Buckets: []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 0.1, 1}},
		[]string{"strategy", "cost_model"},
	)
	// CandidatesScanned counts targets evaluated by server jobs
	CandidatesScanned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "crabalign_candidates_scanned_total", Help: "Candidate targets evaluated."},
	)
)

var regOnce sync.Once

// Register adds all collectors to Registry. Safe to call more than once.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(RateLimited)
		Registry.MustRegister(Jobs)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(CandidatesScanned)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
