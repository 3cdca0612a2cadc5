package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mteval/internal/model"
	"mteval/pkg/constants"
	"mteval/pkg/interfaces"
	"mteval/pkg/logger"
	"mteval/pkg/metrics"
)

// WorkerService worker registry: registration, heartbeats and unregistration
type WorkerService struct {
	store      interfaces.Store
	jobService *JobService
	metrics    *metrics.Collector
	now        func() time.Time
}

// NewWorkerService creates a new worker service
func NewWorkerService(store interfaces.Store, jobService *JobService, collector *metrics.Collector) *WorkerService {
	return &WorkerService{
		store:      store,
		jobService: jobService,
		metrics:    collector,
		now:        time.Now,
	}
}

// Register inserts a WAITING worker and creates the backlog jobs its metric is missing
func (s *WorkerService) Register(ctx context.Context, namespace string, req *model.RegisterRequest) (*model.RegisterResponse, error) {
	if strings.TrimSpace(req.Metric) == "" {
		return nil, fmt.Errorf("%w: metric is required", model.ErrInvalidRequest)
	}

	ns, err := s.store.GetNamespace(ctx, namespace)
	if err != nil {
		return nil, err
	}

	var userID *int64
	if req.Username != nil && *req.Username != "" {
		user, err := s.store.GetUser(ctx, *req.Username)
		if err != nil {
			return nil, err
		}
		userID = &user.ID
	}

	queue := req.Queue
	if queue == "" {
		queue = constants.DefaultQueue
	}

	worker := &model.Worker{
		NamespaceID:              ns.ID,
		Namespace:                ns.Name,
		UserID:                   userID,
		Metric:                   req.Metric,
		MetricRequiresReferences: req.MetricRequiresReferences,
		Queue:                    queue,
		Status:                   constants.WorkerStatusWaiting,
		LastHeartbeat:            0,
	}
	if err := s.store.CreateWorker(ctx, worker); err != nil {
		return nil, fmt.Errorf("failed to register worker: %w", err)
	}
	s.metrics.WorkerRegistered(worker.Metric)

	created, err := s.jobService.GenerateForWorker(ctx, worker)
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "worker registered, worker_id: %d, namespace: %s, metric: %s, requires_references: %v, new_jobs: %d",
		worker.ID, namespace, worker.Metric, worker.MetricRequiresReferences, created)

	return &model.RegisterResponse{WorkerID: worker.ID, NumJobs: created}, nil
}

// Heartbeat records liveness of an active worker
func (s *WorkerService) Heartbeat(ctx context.Context, namespace string, workerID int64) error {
	if _, err := loadActiveWorker(ctx, s.store, namespace, workerID); err != nil {
		return err
	}
	if err := s.store.UpdateHeartbeat(ctx, namespace, workerID, s.now()); err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	logger.DebugCtx(ctx, "heartbeat received, worker_id: %d", workerID)
	return nil
}

// Unregister marks the worker FINISHED and immediately returns its RUNNING jobs to PENDING.
// Calling it for a worker that is already inactive is a no-op apart from the reclaim.
func (s *WorkerService) Unregister(ctx context.Context, namespace string, workerID int64) error {
	worker, err := s.store.GetWorker(ctx, namespace, workerID)
	if err != nil {
		return err
	}

	finished, err := s.store.UpdateWorkerStatus(ctx, worker.ID, constants.ActiveWorkerStatuses, constants.WorkerStatusFinished)
	if err != nil {
		return fmt.Errorf("failed to finish worker: %w", err)
	}

	released, err := s.store.ReleaseJobsOfWorkers(ctx, []int64{worker.ID})
	if err != nil {
		return err
	}
	s.metrics.JobsReclaimed(metrics.ReclaimUnregistered, released)

	logger.InfoCtx(ctx, "worker unregistered, worker_id: %d, was_active: %v, released_jobs: %d",
		worker.ID, finished, released)
	return nil
}

// GetWorker returns a worker of the namespace
func (s *WorkerService) GetWorker(ctx context.Context, namespace string, workerID int64) (*model.Worker, error) {
	return s.store.GetWorker(ctx, namespace, workerID)
}

func loadActiveWorker(ctx context.Context, repo interfaces.WorkerRepository, namespace string, workerID int64) (*model.Worker, error) {
	worker, err := repo.GetWorker(ctx, namespace, workerID)
	if err != nil {
		return nil, err
	}
	if !worker.Status.IsActive() {
		return nil, fmt.Errorf("%w: worker %d is %s", model.ErrWorkerInactive, workerID, worker.Status)
	}
	return worker, nil
}
