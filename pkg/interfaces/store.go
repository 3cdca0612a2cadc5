package interfaces

import (
	"context"
	"time"

	"mteval/internal/model"
	"mteval/pkg/constants"
)

// WorkerRepository persists worker registrations and liveness
type WorkerRepository interface {
	// CreateWorker inserts w and fills in its ID
	CreateWorker(ctx context.Context, w *model.Worker) error
	// GetWorker returns model.ErrNotFound when the worker/namespace pair does not exist
	GetWorker(ctx context.Context, namespace string, workerID int64) (*model.Worker, error)
	UpdateHeartbeat(ctx context.Context, namespace string, workerID int64, at time.Time) error
	// UpdateWorkerStatus moves the worker to `to` only if its current status is one of `from`
	UpdateWorkerStatus(ctx context.Context, workerID int64, from []constants.WorkerStatus, to constants.WorkerStatus) (bool, error)
	// TimeOutWorker moves an active worker to TIMED_OUT only while its last heartbeat and
	// registration are still older than threshold
	TimeOutWorker(ctx context.Context, workerID int64, threshold time.Time) (bool, error)
	// ListExpiredWorkers returns active workers whose last heartbeat and registration are older than threshold
	ListExpiredWorkers(ctx context.Context, threshold time.Time) ([]*model.Worker, error)
	// ListActiveCapabilities returns one template per distinct (metric, requires_references) of active workers
	ListActiveCapabilities(ctx context.Context, namespaceID int64) ([]model.JobTemplate, error)
}

// JobRepository persists jobs and the atomic claims on them
type JobRepository interface {
	// CreateMissingJobs inserts a PENDING job for every run in the namespace that has no job for the metric
	CreateMissingJobs(ctx context.Context, tmpl model.JobTemplate) (int, error)
	// CreateJobForRun inserts a PENDING job for a single run unless one exists for the metric
	CreateJobForRun(ctx context.Context, tmpl model.JobTemplate, runID int64) (bool, error)
	// ClaimNextJob atomically leases the best eligible job to w, or returns nil
	ClaimNextJob(ctx context.Context, w *model.Worker) (*model.Job, error)
	// ReleaseJobsOfWorkers resets RUNNING jobs held by the given workers to PENDING
	ReleaseJobsOfWorkers(ctx context.Context, workerIDs []int64) (int64, error)
	// ReleaseJob resets one job to PENDING if it is still RUNNING under workerID
	ReleaseJob(ctx context.Context, jobID, workerID int64) (bool, error)
	// ReleaseOrphanedJobs resets RUNNING jobs whose holder is no longer active
	ReleaseOrphanedJobs(ctx context.Context) (int64, error)
	GetJob(ctx context.Context, namespace string, jobID int64) (*model.Job, error)
	// CompleteJob verifies ownership, persists metric rows and finalizes the job in one transaction
	CompleteJob(ctx context.Context, namespace string, workerID int64, result *model.JobResultRequest) error
	CountRunningJobs(ctx context.Context, workerID int64) (int64, error)
}

// CatalogRepository read access to collaborator-owned tables
type CatalogRepository interface {
	GetNamespace(ctx context.Context, name string) (*model.Namespace, error)
	GetUser(ctx context.Context, username string) (*model.User, error)
	GetRunWork(ctx context.Context, runID int64) (*model.RunWork, error)
}

// Store aggregates every repository the scheduler needs
type Store interface {
	WorkerRepository
	JobRepository
	CatalogRepository
	Close() error
}
