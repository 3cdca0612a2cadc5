package service

import (
	"context"
	"fmt"

	"mteval/internal/model"
	"mteval/pkg/constants"
	"mteval/pkg/interfaces"
	"mteval/pkg/logger"
	"mteval/pkg/metrics"
)

// JobService job generator and leasing scheduler
type JobService struct {
	store   interfaces.Store
	metrics *metrics.Collector
}

// NewJobService creates a new job service
func NewJobService(store interfaces.Store, collector *metrics.Collector) *JobService {
	return &JobService{store: store, metrics: collector}
}

// GenerateForWorker creates a PENDING job for every run of the worker's namespace
// that has none for its metric.
func (s *JobService) GenerateForWorker(ctx context.Context, w *model.Worker) (int, error) {
	created, err := s.store.CreateMissingJobs(ctx, model.TemplateFor(w))
	if err != nil {
		return 0, fmt.Errorf("failed to generate jobs for metric %s: %w", w.Metric, err)
	}
	s.metrics.JobsCreated(w.Metric, created)
	return created, nil
}

// GenerateForRun creates the jobs a newly ingested run needs for every capability
// currently served by an active worker of its namespace.
func (s *JobService) GenerateForRun(ctx context.Context, runID int64) (int, error) {
	work, err := s.store.GetRunWork(ctx, runID)
	if err != nil {
		return 0, err
	}
	templates, err := s.store.ListActiveCapabilities(ctx, work.NamespaceID)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, tmpl := range templates {
		ok, err := s.store.CreateJobForRun(ctx, tmpl, runID)
		if err != nil {
			return created, fmt.Errorf("failed to create %s job for run %d: %w", tmpl.Metric, runID, err)
		}
		if ok {
			created++
			s.metrics.JobsCreated(tmpl.Metric, 1)
		}
	}
	logger.InfoCtx(ctx, "jobs generated for run, run_id: %d, capabilities: %d, new_jobs: %d", runID, len(templates), created)
	return created, nil
}

// Assign leases at most one eligible job to the worker.
// The result is empty when nothing is eligible.
func (s *JobService) Assign(ctx context.Context, namespace string, workerID int64) ([]model.JobInfo, error) {
	worker, err := loadActiveWorker(ctx, s.store, namespace, workerID)
	if err != nil {
		return nil, err
	}

	job, err := s.store.ClaimNextJob(ctx, worker)
	if err != nil {
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}
	if job == nil {
		logger.DebugCtx(ctx, "no job available, worker_id: %d, metric: %s", worker.ID, worker.Metric)
		return []model.JobInfo{}, nil
	}

	if _, err := s.store.UpdateWorkerStatus(ctx, worker.ID, []constants.WorkerStatus{constants.WorkerStatusWaiting}, constants.WorkerStatusWorking); err != nil {
		logger.WarnCtx(ctx, "failed to mark worker %d WORKING: %v", worker.ID, err)
	}

	work, err := s.store.GetRunWork(ctx, job.RunID)
	if err != nil {
		// hand the job back so it is not stranded under a live worker
		if _, releaseErr := s.store.ReleaseJob(ctx, job.ID, worker.ID); releaseErr != nil {
			logger.ErrorCtx(ctx, "failed to release job %d after load error: %v", job.ID, releaseErr)
		}
		return nil, fmt.Errorf("failed to load run %d: %w", job.RunID, err)
	}

	s.metrics.JobLeased(job.Metric)
	logger.InfoCtx(ctx, "job leased, job_id: %d, run_id: %d, worker_id: %d, priority: %d",
		job.ID, job.RunID, worker.ID, job.Priority)

	return []model.JobInfo{model.NewJobInfo(job, work)}, nil
}

// GetJob returns a job of the namespace
func (s *JobService) GetJob(ctx context.Context, namespace string, jobID int64) (*model.Job, error) {
	return s.store.GetJob(ctx, namespace, jobID)
}
