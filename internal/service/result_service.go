package service

import (
	"context"
	"errors"
	"fmt"

	"mteval/internal/model"
	"mteval/pkg/constants"
	"mteval/pkg/interfaces"
	"mteval/pkg/logger"
	"mteval/pkg/metrics"
)

// ResultService result collector
type ResultService struct {
	store   interfaces.Store
	metrics *metrics.Collector
}

// NewResultService creates a new result service
func NewResultService(store interfaces.Store, collector *metrics.Collector) *ResultService {
	return &ResultService{store: store, metrics: collector}
}

// Report persists the scores of a job held by workerID and finalizes the job.
// A job not RUNNING under workerID yields model.ErrOwnershipConflict and nothing is written.
func (s *ResultService) Report(ctx context.Context, namespace string, workerID, jobID int64, req *model.JobResultRequest) error {
	if req.JobID != 0 && req.JobID != jobID {
		s.metrics.ReportRejected("invalid")
		return fmt.Errorf("%w: body job_id %d does not match path job_id %d", model.ErrInvalidRequest, req.JobID, jobID)
	}
	req.JobID = jobID
	if err := req.Validate(); err != nil {
		s.metrics.ReportRejected("invalid")
		return err
	}

	if _, err := s.store.GetWorker(ctx, namespace, workerID); err != nil {
		s.metrics.ReportRejected("not_found")
		return err
	}
	job, err := s.store.GetJob(ctx, namespace, jobID)
	if err != nil {
		s.metrics.ReportRejected("not_found")
		return err
	}

	if err := s.store.CompleteJob(ctx, namespace, workerID, req); err != nil {
		switch {
		case errors.Is(err, model.ErrOwnershipConflict):
			s.metrics.ReportRejected("ownership_conflict")
			logger.WarnCtx(ctx, "rejected result for job %d from worker %d: %v", jobID, workerID, err)
		case errors.Is(err, model.ErrNotFound):
			s.metrics.ReportRejected("not_found")
		}
		return err
	}
	s.metrics.ResultReported(job.Metric)

	held, err := s.store.CountRunningJobs(ctx, workerID)
	if err != nil {
		logger.WarnCtx(ctx, "failed to count jobs of worker %d: %v", workerID, err)
	} else if held == 0 {
		if _, err := s.store.UpdateWorkerStatus(ctx, workerID, []constants.WorkerStatus{constants.WorkerStatusWorking}, constants.WorkerStatusWaiting); err != nil {
			logger.WarnCtx(ctx, "failed to mark worker %d WAITING: %v", workerID, err)
		}
	}

	logger.InfoCtx(ctx, "result reported, job_id: %d, worker_id: %d, rows: %d", jobID, workerID, req.RowCount())
	return nil
}
