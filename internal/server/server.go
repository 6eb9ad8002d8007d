package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/crabalign/internal/align"
	"github.com/cwbudde/crabalign/internal/metrics"
	"github.com/cwbudde/crabalign/internal/opt"
	"github.com/cwbudde/crabalign/internal/store"
	"golang.org/x/time/rate"
)

// Options tunes a Server
type Options struct {
	RateLimit float64 // Requests per second across all clients; 0 disables limiting
	Burst     int
	Workers   int                  // Goroutines for the parallel strategy
	Optimizer func() opt.Optimizer // Builds the optimizer for mayfly jobs
	JobTTL    time.Duration        // Finished jobs are forgotten after this long; 0 keeps them
}

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	addr       string
	opts       Options
	limiter    *rate.Limiter
	server     *http.Server

	// Jobs run under ctx so Shutdown can cancel them
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a new HTTP server. resultStore may be nil.
func NewServer(addr string, resultStore store.Store, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobManager: NewJobManager(),
		store:      resultStore,
		addr:       addr,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
	}
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, opts.Burst))
	}
	if opts.JobTTL > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pruneJobs(opts.JobTTL)
		}()
	}
	return s
}

// pruneJobs drops finished jobs older than ttl until the server shuts down
func (s *Server) pruneJobs(ttl time.Duration) {
	ticker := time.NewTicker(max(ttl/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.jobManager.PruneFinished(now.Add(-ttl)); n > 0 {
				slog.Debug("Pruned finished jobs", "count", n)
			}
		}
	}
}

// Handler builds the routed and wrapped handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/results", s.handleResults)
	mux.HandleFunc("/api/v1/results/", s.handleResultByID)

	return s.loggingMiddleware(s.metricsMiddleware(s.rateLimitMiddleware(s.corsMiddleware(mux))))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, cancels running jobs and waits for them
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// submit starts a worker for job in the background
func (s *Server) submit(jobID string) {
	cfg := workerConfig{store: s.store, workers: s.opts.Workers, optimizer: s.opts.Optimizer}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runJob(s.ctx, s.jobManager, cfg, jobID)
	}()
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	switch {
	case len(parts) == 1 || parts[1] == "status":
		s.handleGetJobStatus(w, r, jobID)
	case parts[1] == "stream":
		s.handleJobStream(w, r, jobID)
	case parts[1] == "ws":
		s.handleJobWebSocket(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// Reject settings up front; an empty position list becomes a failed job
	if _, err := align.ParseCostModel(defaultString(config.CostModel, "linear")); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := align.ParseStrategy(config.Strategy); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, p := range config.Positions {
		if p < 0 {
			http.Error(w, "positions must not be negative", http.StatusBadRequest)
			return
		}
	}
	if _, _, err := align.Bounds(config.Positions); errors.Is(err, align.ErrRangeTooLarge) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.jobManager.CreateJob(config)
	s.submit(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// JobStatus is the response of GET /api/v1/jobs/:id/status
type JobStatus struct {
	Job
	Elapsed float64 `json:"elapsed"` // Seconds
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, JobStatus{Job: job, Elapsed: job.Elapsed().Seconds()})
}

// handleResults handles GET /api/v1/results
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "No result store configured", http.StatusNotImplemented)
		return
	}

	infos, err := s.store.ListResults(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list results: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleResultByID handles GET and DELETE /api/v1/results/:id
func (s *Server) handleResultByID(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "No result store configured", http.StatusNotImplemented)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/results/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Result ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := s.store.LoadResult(r.Context(), id)
		if errors.Is(err, store.ErrInvalidID) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		} else if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Result not found", http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, fmt.Sprintf("Failed to load result: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		err := s.store.DeleteResult(r.Context(), id)
		if errors.Is(err, store.ErrInvalidID) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		} else if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Result not found", http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, fmt.Sprintf("Failed to delete result: %v", err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
