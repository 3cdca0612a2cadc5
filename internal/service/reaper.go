package service

import (
	"context"
	"fmt"
	"time"

	"mteval/pkg/interfaces"
	"mteval/pkg/logger"
	"mteval/pkg/metrics"
)

// SweepResult outcome of one reaper pass
type SweepResult struct {
	TimedOut  int
	Reclaimed int64
	Orphaned  int64
}

// Reaper times out silent workers and returns their jobs to the backlog
type Reaper struct {
	store      interfaces.Store
	expiration time.Duration
	metrics    *metrics.Collector
	now        func() time.Time
}

// NewReaper creates a reaper for the given heartbeat expiration window
func NewReaper(store interfaces.Store, expiration time.Duration, collector *metrics.Collector) *Reaper {
	return &Reaper{
		store:      store,
		expiration: expiration,
		metrics:    collector,
		now:        time.Now,
	}
}

// Sweep runs one pass. The expired set is queried fresh every call, so repeated
// sweeps never reclaim the same job twice.
func (r *Reaper) Sweep(ctx context.Context) (*SweepResult, error) {
	threshold := r.now().Add(-r.expiration)

	expired, err := r.store.ListExpiredWorkers(ctx, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired workers: %w", err)
	}

	result := &SweepResult{}
	ids := make([]int64, 0, len(expired))
	for _, w := range expired {
		// the predicate is re-checked here, a heartbeat after the listing keeps the worker alive
		ok, err := r.store.TimeOutWorker(ctx, w.ID, threshold)
		if err != nil {
			logger.WarnCtx(ctx, "failed to time out worker %d: %v", w.ID, err)
			continue
		}
		if !ok {
			continue
		}
		result.TimedOut++
		logger.InfoCtx(ctx, "worker timed out, worker_id: %d, namespace: %s, last_heartbeat: %.0f",
			w.ID, w.Namespace, w.LastHeartbeat)
		ids = append(ids, w.ID)
	}

	if result.Reclaimed, err = r.store.ReleaseJobsOfWorkers(ctx, ids); err != nil {
		return result, fmt.Errorf("failed to reclaim jobs: %w", err)
	}
	if result.Orphaned, err = r.store.ReleaseOrphanedJobs(ctx); err != nil {
		return result, fmt.Errorf("failed to reclaim orphaned jobs: %w", err)
	}

	r.metrics.WorkersTimedOut(result.TimedOut)
	r.metrics.JobsReclaimed(metrics.ReclaimExpired, result.Reclaimed)
	r.metrics.JobsReclaimed(metrics.ReclaimOrphaned, result.Orphaned)
	r.metrics.ReaperRun()

	if result.TimedOut > 0 || result.Reclaimed > 0 || result.Orphaned > 0 {
		logger.InfoCtx(ctx, "reaper sweep done, timed_out: %d, reclaimed: %d, orphaned: %d",
			result.TimedOut, result.Reclaimed, result.Orphaned)
	}
	return result, nil
}
