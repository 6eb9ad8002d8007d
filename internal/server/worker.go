package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/crabalign/internal/align"
	"github.com/cwbudde/crabalign/internal/metrics"
	"github.com/cwbudde/crabalign/internal/opt"
	"github.com/cwbudde/crabalign/internal/store"
)

// progressEvents caps the number of progress events per job so that a
// subscriber's buffer never overflows before the final event.
const progressEvents = 16

// workerConfig carries the server-wide solve settings into runJob.
type workerConfig struct {
	store     store.Store // nil disables persistence
	workers   int
	optimizer func() opt.Optimizer // nil uses the mayfly defaults
}

// runJob executes an alignment job in the background.
// The candidate scan is streamed as progress events, then the configured
// strategy produces the final answer, which is persisted when a store is set.
func runJob(ctx context.Context, jm *JobManager, cfg workerConfig, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "crabs", len(job.Config.Positions))

	model, err := align.ParseCostModel(defaultString(job.Config.CostModel, "linear"))
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	strategy, err := align.ParseStrategy(job.Config.Strategy)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	if err := streamScan(ctx, jm, jobID, job.Config.Positions, model.Func()); err != nil {
		if ctx.Err() != nil {
			markJobCancelled(jm, jobID)
			return ctx.Err()
		}
		markJobFailed(jm, jobID, err)
		return err
	}

	req := align.Request{
		Positions: job.Config.Positions,
		Model:     model,
		Strategy:  strategy,
		Workers:   cfg.workers,
	}
	if cfg.optimizer != nil {
		req.Optimizer = cfg.optimizer()
	}
	sol, err := align.Solve(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			markJobCancelled(jm, jobID)
			return ctx.Err()
		}
		markJobFailed(jm, jobID, err)
		return err
	}
	metrics.SolveDuration.WithLabelValues(string(sol.Strategy), sol.Model.String()).Observe(sol.Elapsed.Seconds())

	if cfg.store != nil {
		if err := cfg.store.SaveResult(ctx, store.NewRecord(jobID, sol)); err != nil {
			// The job result stays available from memory
			slog.Warn("Failed to persist result", "job_id", jobID, "error", err)
		}
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Target = sol.Target
		j.Total = sol.Total
		j.Costs = sol.Costs
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}
	metrics.Jobs.WithLabelValues(string(StateCompleted)).Inc()

	slog.Info("Job completed",
		"job_id", jobID,
		"target", sol.Target,
		"total", sol.Total,
		"strategy", string(sol.Strategy),
		"elapsed", sol.Elapsed,
	)

	final, _ := jm.GetJob(jobID)
	jm.broadcaster.Broadcast(eventFromJob(final))
	return nil
}

// streamScan evaluates every candidate in order, updating the job's best
// so far and broadcasting at most progressEvents updates.
func streamScan(ctx context.Context, jm *JobManager, jobID string, positions []int, cost align.CostFunc) error {
	lo, hi, err := align.Bounds(positions)
	if err != nil {
		return err
	}

	span := hi - lo + 1
	batch := max(1, (span+progressEvents-1)/progressEvents)
	jm.UpdateJob(jobID, func(j *Job) { j.Span = span })

	best := align.Candidate{Target: lo, Total: align.TotalCost(positions, cost, lo)}
	for t := lo; t <= hi; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if total := align.TotalCost(positions, cost, t); total < best.Total {
			best = align.Candidate{Target: t, Total: total}
		}

		scanned := t - lo + 1
		if scanned%batch == 0 || t == hi {
			jm.UpdateJob(jobID, func(j *Job) {
				j.Scanned = scanned
				j.Target = best.Target
				j.Total = best.Total
			})
			job, _ := jm.GetJob(jobID)
			jm.broadcaster.Broadcast(eventFromJob(job))
		}
	}
	metrics.CandidatesScanned.Add(float64(span))
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	metrics.Jobs.WithLabelValues(string(StateFailed)).Inc()
	slog.Error("Job failed", "job_id", jobID, "error", err)

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(eventFromJob(job))
	}
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	metrics.Jobs.WithLabelValues(string(StateCancelled)).Inc()
	slog.Info("Job cancelled", "job_id", jobID)

	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(eventFromJob(job))
	}
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
