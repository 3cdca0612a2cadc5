package mysql

import (
	"mteval/internal/model"
	"mteval/pkg/constants"
)

// ToWorkerDomain converts MySQL Worker to domain Worker model
func ToWorkerDomain(w *Worker, namespace string) *model.Worker {
	if w == nil {
		return nil
	}
	return &model.Worker{
		ID:                       w.ID,
		NamespaceID:              w.NamespaceID,
		Namespace:                namespace,
		UserID:                   w.UserID,
		Metric:                   w.Metric,
		MetricRequiresReferences: w.MetricRequiresReferences,
		Queue:                    w.Queue,
		Status:                   constants.WorkerStatus(w.Status),
		LastHeartbeat:            w.LastHeartbeat,
		CreatedAt:                w.CreatedAt,
		UpdatedAt:                w.UpdatedAt,
	}
}

// FromWorkerDomain converts domain Worker model to MySQL Worker
func FromWorkerDomain(w *model.Worker) *Worker {
	if w == nil {
		return nil
	}
	return &Worker{
		ID:                       w.ID,
		NamespaceID:              w.NamespaceID,
		UserID:                   w.UserID,
		Metric:                   w.Metric,
		MetricRequiresReferences: w.MetricRequiresReferences,
		Queue:                    w.Queue,
		Status:                   string(w.Status),
		LastHeartbeat:            w.LastHeartbeat,
		CreatedAt:                w.CreatedAt,
		UpdatedAt:                w.UpdatedAt,
	}
}

// ToJobDomain converts MySQL Job to domain Job model
func ToJobDomain(j *Job) *model.Job {
	if j == nil {
		return nil
	}
	payload := map[string]interface{}(j.Payload)
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &model.Job{
		ID:          j.ID,
		NamespaceID: j.NamespaceID,
		UserID:      j.UserID,
		RunID:       j.RunID,
		WorkerID:    j.WorkerID,
		CompletedBy: j.CompletedBy,
		Queue:       j.Queue,
		Priority:    j.Priority,
		Status:      constants.JobStatus(j.Status),
		Metric:      j.Metric,
		Payload:     payload,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// NewPendingJob builds the row inserted for a (run, template) pair
func NewPendingJob(tmpl model.JobTemplate, runID int64) *Job {
	queue := tmpl.Queue
	if queue == "" {
		queue = constants.DefaultQueue
	}
	return &Job{
		NamespaceID: tmpl.NamespaceID,
		UserID:      tmpl.UserID,
		RunID:       runID,
		Metric:      tmpl.Metric,
		Queue:       queue,
		Priority:    tmpl.Priority,
		Status:      string(constants.JobStatusPending),
		Payload:     JSONMap{},
	}
}

// FromJobResult flattens a result report into dataset and segment metric rows
func FromJobResult(job *Job, result *model.JobResultRequest) ([]*DatasetMetric, []*SegmentMetric) {
	datasetRows := make([]*DatasetMetric, 0, len(result.DatasetLevelMetrics))
	for _, m := range result.DatasetLevelMetrics {
		datasetRows = append(datasetRows, &DatasetMetric{
			JobID:          job.ID,
			RunID:          job.RunID,
			Name:           m.Name,
			HigherIsBetter: m.HigherIsBetter,
			Score:          m.Score,
		})
	}

	var segmentRows []*SegmentMetric
	for _, m := range result.SegmentLevelMetrics {
		for i, score := range m.Scores {
			row := &SegmentMetric{
				JobID:          job.ID,
				RunID:          job.RunID,
				SegmentIndex:   i,
				Name:           m.Name,
				HigherIsBetter: m.HigherIsBetter,
				Score:          score,
			}
			if m.Custom != nil {
				row.Custom = JSONMap(m.Custom[i])
			}
			segmentRows = append(segmentRows, row)
		}
	}
	return datasetRows, segmentRows
}
