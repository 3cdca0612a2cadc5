package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mteval/internal/model"
	"mteval/pkg/constants"

	"gorm.io/gorm"
)

// WorkerRepository handles worker database operations
type WorkerRepository struct {
	ds *Datastore
}

// NewWorkerRepository creates a new worker repository
func NewWorkerRepository(ds *Datastore) *WorkerRepository {
	return &WorkerRepository{ds: ds}
}

type workerRow struct {
	Worker    `gorm:"embedded"`
	Namespace string `gorm:"column:namespace_name"`
}

func (r *WorkerRepository) withNamespace(ctx context.Context) *gorm.DB {
	return r.ds.DB(ctx).Table("workers").
		Select("workers.*, namespaces.name AS namespace_name").
		Joins("JOIN namespaces ON namespaces.id = workers.namespace_id")
}

// CreateWorker inserts a new worker row
func (r *WorkerRepository) CreateWorker(ctx context.Context, w *model.Worker) error {
	now := r.ds.now()
	row := FromWorkerDomain(w)
	row.CreatedAt = now
	row.UpdatedAt = now
	if err := r.ds.DB(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	w.ID = row.ID
	w.CreatedAt = now
	w.UpdatedAt = now
	return nil
}

// GetWorker gets a worker scoped to its namespace
func (r *WorkerRepository) GetWorker(ctx context.Context, namespace string, workerID int64) (*model.Worker, error) {
	var row workerRow
	err := r.withNamespace(ctx).
		Where("workers.id = ? AND namespaces.name = ?", workerID, namespace).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: worker %d in namespace %q", model.ErrNotFound, workerID, namespace)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	return ToWorkerDomain(&row.Worker, row.Namespace), nil
}

// UpdateHeartbeat records a heartbeat timestamp
func (r *WorkerRepository) UpdateHeartbeat(ctx context.Context, namespace string, workerID int64, at time.Time) error {
	w, err := r.GetWorker(ctx, namespace, workerID)
	if err != nil {
		return err
	}
	return r.ds.DB(ctx).Model(&Worker{}).
		Where("id = ?", w.ID).
		Updates(map[string]interface{}{
			"last_heartbeat": unixSeconds(at),
			"updated_at":     r.ds.now(),
		}).Error
}

// UpdateWorkerStatus compare-and-sets the worker status
func (r *WorkerRepository) UpdateWorkerStatus(ctx context.Context, workerID int64, from []constants.WorkerStatus, to constants.WorkerStatus) (bool, error) {
	result := r.ds.DB(ctx).Model(&Worker{}).
		Where("id = ? AND status IN ?", workerID, statusStrings(from)).
		Updates(map[string]interface{}{
			"status":     string(to),
			"updated_at": r.ds.now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update worker status: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := r.ds.DB(ctx).Model(&Worker{}).Where("id = ?", workerID).Count(&count).Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, fmt.Errorf("%w: worker %d", model.ErrNotFound, workerID)
	}
	return false, nil
}

// TimeOutWorker times out a worker only if it is still active and silent since threshold
func (r *WorkerRepository) TimeOutWorker(ctx context.Context, workerID int64, threshold time.Time) (bool, error) {
	result := expiredWorker(r.ds.DB(ctx).Model(&Worker{}), workerID, threshold).
		Updates(map[string]interface{}{
			"status":     string(constants.WorkerStatusTimedOut),
			"updated_at": r.ds.now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to time out worker %d: %w", workerID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func expiredWorker(db *gorm.DB, workerID int64, threshold time.Time) *gorm.DB {
	return db.
		Where("id = ? AND status IN ?", workerID, statusStrings(constants.ActiveWorkerStatuses)).
		Where("last_heartbeat < ? AND created_at < ?", unixSeconds(threshold), threshold)
}

// ListExpiredWorkers lists active workers that have been silent since threshold
func (r *WorkerRepository) ListExpiredWorkers(ctx context.Context, threshold time.Time) ([]*model.Worker, error) {
	var rows []workerRow
	err := r.withNamespace(ctx).
		Where("workers.status IN ?", statusStrings(constants.ActiveWorkerStatuses)).
		Where("workers.last_heartbeat < ?", unixSeconds(threshold)).
		Where("workers.created_at < ?", threshold).
		Order("workers.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired workers: %w", err)
	}
	out := make([]*model.Worker, len(rows))
	for i := range rows {
		out[i] = ToWorkerDomain(&rows[i].Worker, rows[i].Namespace)
	}
	return out, nil
}

// ListActiveCapabilities returns the distinct capabilities of active workers in a namespace
func (r *WorkerRepository) ListActiveCapabilities(ctx context.Context, namespaceID int64) ([]model.JobTemplate, error) {
	var rows []*Worker
	err := r.ds.DB(ctx).
		Where("namespace_id = ? AND status IN ?", namespaceID, statusStrings(constants.ActiveWorkerStatuses)).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active workers: %w", err)
	}
	return distinctTemplates(rows), nil
}

func distinctTemplates(rows []*Worker) []model.JobTemplate {
	type key struct {
		metric string
		refs   bool
	}
	seen := make(map[key]bool)
	var out []model.JobTemplate
	for _, row := range rows {
		k := key{row.Metric, row.MetricRequiresReferences}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, model.TemplateFor(ToWorkerDomain(row, "")))
	}
	return out
}

func statusStrings(statuses []constants.WorkerStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}
