package mysql

import (
	"context"
	"errors"
	"fmt"

	"mteval/internal/model"
	"mteval/pkg/constants"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 500

// JobRepository handles job database operations
type JobRepository struct {
	ds *Datastore
}

// NewJobRepository creates a new job repository
func NewJobRepository(ds *Datastore) *JobRepository {
	return &JobRepository{ds: ds}
}

// lockJobs is SELECT ... FOR UPDATE OF jobs SKIP LOCKED
var lockJobs = clause.Locking{
	Strength: "UPDATE",
	Table:    clause.Table{Name: "jobs"},
	Options:  "SKIP LOCKED",
}

// lockOwnedJob is SELECT ... FOR UPDATE OF jobs, waiting for a concurrent reclaim
var lockOwnedJob = clause.Locking{
	Strength: "UPDATE",
	Table:    clause.Table{Name: "jobs"},
}

// CreateMissingJobs inserts a PENDING job for every run of the namespace lacking one for the metric.
// The unique (run_id, metric) index turns concurrent duplicates into no-ops.
func (r *JobRepository) CreateMissingJobs(ctx context.Context, tmpl model.JobTemplate) (int, error) {
	query := r.ds.DB(ctx).Table("translation_runs").
		Joins("JOIN datasets ON datasets.id = translation_runs.dataset_id").
		Where("translation_runs.namespace_id = ?", tmpl.NamespaceID).
		Where("NOT EXISTS (SELECT 1 FROM jobs WHERE jobs.run_id = translation_runs.id AND jobs.metric = ?)", tmpl.Metric)
	if tmpl.RequiresReferences {
		query = query.Where("datasets.has_reference = ?", true)
	}

	var runIDs []int64
	if err := query.Order("translation_runs.id ASC").Pluck("translation_runs.id", &runIDs).Error; err != nil {
		return 0, fmt.Errorf("failed to find runs without %s jobs: %w", tmpl.Metric, err)
	}
	if len(runIDs) == 0 {
		return 0, nil
	}

	now := r.ds.now()
	jobs := make([]*Job, len(runIDs))
	for i, runID := range runIDs {
		jobs[i] = NewPendingJob(tmpl, runID)
		jobs[i].CreatedAt = now
		jobs[i].UpdatedAt = now
	}
	result := r.ds.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(jobs, insertBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to create jobs: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// CreateJobForRun inserts a PENDING job for one run if it is eligible and missing
func (r *JobRepository) CreateJobForRun(ctx context.Context, tmpl model.JobTemplate, runID int64) (bool, error) {
	var run struct {
		NamespaceID  int64
		HasReference bool
	}
	err := r.ds.DB(ctx).Table("translation_runs").
		Select("translation_runs.namespace_id, datasets.has_reference").
		Joins("JOIN datasets ON datasets.id = translation_runs.dataset_id").
		Where("translation_runs.id = ?", runID).
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("%w: run %d", model.ErrNotFound, runID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to get run: %w", err)
	}
	if run.NamespaceID != tmpl.NamespaceID || (tmpl.RequiresReferences && !run.HasReference) {
		return false, nil
	}

	now := r.ds.now()
	job := NewPendingJob(tmpl, runID)
	job.CreatedAt = now
	job.UpdatedAt = now
	result := r.ds.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(job)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create job: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ClaimNextJob selects the best eligible job with a skip-locked row lock and
// leases it to the worker in the same transaction.
func (r *JobRepository) ClaimNextJob(ctx context.Context, w *model.Worker) (*model.Job, error) {
	var claimed *model.Job

	err := r.ds.ExecTx(ctx, func(txCtx context.Context) error {
		var job Job
		err := nextPendingJob(r.ds.DB(txCtx), w).Take(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select pending job: %w", err)
		}

		now := r.ds.now()
		result := unleasedJob(r.ds.DB(txCtx).Model(&Job{}), job.ID).
			Updates(map[string]interface{}{
				"worker_id":  w.ID,
				"status":     string(constants.JobStatusRunning),
				"updated_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to lease job %d: %w", job.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		workerID := w.ID
		job.WorkerID = &workerID
		job.Status = string(constants.JobStatusRunning)
		job.UpdatedAt = now
		claimed = ToJobDomain(&job)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// nextPendingJob selects the best eligible job for w under a skip-locked row lock
func nextPendingJob(db *gorm.DB, w *model.Worker) *gorm.DB {
	query := db.Model(&Job{}).
		Select("jobs.*").
		Where("jobs.namespace_id = ? AND jobs.status = ? AND jobs.worker_id IS NULL AND jobs.metric = ?",
			w.NamespaceID, constants.JobStatusPending, w.Metric)
	if w.MetricRequiresReferences {
		query = query.
			Joins("JOIN translation_runs ON translation_runs.id = jobs.run_id").
			Joins("JOIN datasets ON datasets.id = translation_runs.dataset_id").
			Where("datasets.has_reference = ?", true)
	}
	return query.
		Order("jobs.priority DESC, jobs.created_at DESC, jobs.id DESC").
		Limit(1).
		Clauses(lockJobs)
}

func unleasedJob(db *gorm.DB, jobID int64) *gorm.DB {
	return db.Where("id = ? AND worker_id IS NULL AND status = ?", jobID, constants.JobStatusPending)
}

// ReleaseJobsOfWorkers resets the RUNNING jobs of the given workers to PENDING
func (r *JobRepository) ReleaseJobsOfWorkers(ctx context.Context, workerIDs []int64) (int64, error) {
	if len(workerIDs) == 0 {
		return 0, nil
	}
	result := r.ds.DB(ctx).Model(&Job{}).
		Where("worker_id IN ? AND status = ?", workerIDs, constants.JobStatusRunning).
		Updates(releaseUpdates(r.ds))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to release jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ReleaseJob hands a single lease back, guarded by its holder
func (r *JobRepository) ReleaseJob(ctx context.Context, jobID, workerID int64) (bool, error) {
	result := heldJob(r.ds.DB(ctx).Model(&Job{}), jobID, workerID).Updates(releaseUpdates(r.ds))
	if result.Error != nil {
		return false, fmt.Errorf("failed to release job %d: %w", jobID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func heldJob(db *gorm.DB, jobID, workerID int64) *gorm.DB {
	return db.Where("id = ? AND worker_id = ? AND status = ?", jobID, workerID, constants.JobStatusRunning)
}

// ReleaseOrphanedJobs resets RUNNING jobs whose worker is gone or no longer active
func (r *JobRepository) ReleaseOrphanedJobs(ctx context.Context) (int64, error) {
	result := r.ds.DB(ctx).Model(&Job{}).
		Where("status = ? AND worker_id IS NOT NULL", constants.JobStatusRunning).
		Where("worker_id NOT IN (SELECT id FROM workers WHERE status IN ?)", statusStrings(constants.ActiveWorkerStatuses)).
		Updates(releaseUpdates(r.ds))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to release orphaned jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func releaseUpdates(ds *Datastore) map[string]interface{} {
	return map[string]interface{}{
		"status":     string(constants.JobStatusPending),
		"worker_id":  nil,
		"updated_at": ds.now(),
	}
}

func jobInNamespaceQuery(db *gorm.DB, namespace string, jobID int64) *gorm.DB {
	return db.Model(&Job{}).
		Select("jobs.*").
		Joins("JOIN namespaces ON namespaces.id = jobs.namespace_id").
		Where("jobs.id = ? AND namespaces.name = ?", jobID, namespace)
}

func (r *JobRepository) jobInNamespace(db *gorm.DB, namespace string, jobID int64) (*Job, error) {
	var job Job
	err := jobInNamespaceQuery(db, namespace, jobID).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: job %d in namespace %q", model.ErrNotFound, jobID, namespace)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetJob gets a job scoped to its namespace
func (r *JobRepository) GetJob(ctx context.Context, namespace string, jobID int64) (*model.Job, error) {
	job, err := r.jobInNamespace(r.ds.DB(ctx), namespace, jobID)
	if err != nil {
		return nil, err
	}
	return ToJobDomain(job), nil
}

// CompleteJob checks ownership under a row lock, writes the metric rows and finalizes the job.
// Nothing is written when the job is not RUNNING under workerID.
func (r *JobRepository) CompleteJob(ctx context.Context, namespace string, workerID int64, result *model.JobResultRequest) error {
	return r.ds.ExecTx(ctx, func(txCtx context.Context) error {
		job, err := r.jobInNamespace(r.ds.DB(txCtx).Clauses(lockOwnedJob), namespace, result.JobID)
		if err != nil {
			return err
		}
		if job.Status != string(constants.JobStatusRunning) || job.WorkerID == nil || *job.WorkerID != workerID {
			return fmt.Errorf("%w: job %d, worker %d", model.ErrOwnershipConflict, job.ID, workerID)
		}

		datasetRows, segmentRows := FromJobResult(job, result)
		if len(datasetRows) > 0 {
			if err := r.ds.DB(txCtx).CreateInBatches(datasetRows, insertBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save dataset metrics: %w", err)
			}
		}
		if len(segmentRows) > 0 {
			if err := r.ds.DB(txCtx).CreateInBatches(segmentRows, insertBatchSize).Error; err != nil {
				return fmt.Errorf("failed to save segment metrics: %w", err)
			}
		}

		update := heldJob(r.ds.DB(txCtx).Model(&Job{}), job.ID, workerID).
			Updates(map[string]interface{}{
				"status":       string(constants.JobStatusCompleted),
				"worker_id":    nil,
				"completed_by": workerID,
				"updated_at":   r.ds.now(),
			})
		if update.Error != nil {
			return fmt.Errorf("failed to complete job %d: %w", job.ID, update.Error)
		}
		if update.RowsAffected == 0 {
			return fmt.Errorf("%w: job %d, worker %d", model.ErrOwnershipConflict, job.ID, workerID)
		}
		return nil
	})
}

// CountRunningJobs counts the jobs a worker currently holds
func (r *JobRepository) CountRunningJobs(ctx context.Context, workerID int64) (int64, error) {
	var count int64
	err := r.ds.DB(ctx).Model(&Job{}).
		Where("worker_id = ? AND status = ?", workerID, constants.JobStatusRunning).
		Count(&count).Error
	return count, err
}
