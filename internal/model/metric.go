package model

import "fmt"

// DatasetMetric a dataset-level score
type DatasetMetric struct {
	Name           string  `json:"name"`
	HigherIsBetter bool    `json:"higher_is_better"`
	Score          float64 `json:"score"`
}

// SegmentMetric per-segment scores, one element per segment index
type SegmentMetric struct {
	Name           string                   `json:"name"`
	HigherIsBetter bool                     `json:"higher_is_better"`
	Scores         []float64                `json:"scores"`
	Custom         []map[string]interface{} `json:"custom,omitempty"` // optional, parallel to Scores
}

// JobResultRequest result report for a leased job
type JobResultRequest struct {
	JobID               int64           `json:"job_id"`
	DatasetLevelMetrics []DatasetMetric `json:"dataset_level_metrics"`
	SegmentLevelMetrics []SegmentMetric `json:"segment_level_metrics"`
}

// Validate checks metric names and custom payload shape
func (r *JobResultRequest) Validate() error {
	for i, m := range r.DatasetLevelMetrics {
		if m.Name == "" {
			return fmt.Errorf("%w: dataset_level_metrics[%d] has no name", ErrInvalidRequest, i)
		}
	}
	for i, m := range r.SegmentLevelMetrics {
		if m.Name == "" {
			return fmt.Errorf("%w: segment_level_metrics[%d] has no name", ErrInvalidRequest, i)
		}
		if m.Custom != nil && len(m.Custom) != len(m.Scores) {
			return fmt.Errorf("%w: segment_level_metrics[%d] custom has %d entries for %d scores",
				ErrInvalidRequest, i, len(m.Custom), len(m.Scores))
		}
	}
	return nil
}

// RowCount number of metric rows the report persists
func (r *JobResultRequest) RowCount() int {
	n := len(r.DatasetLevelMetrics)
	for _, m := range r.SegmentLevelMetrics {
		n += len(m.Scores)
	}
	return n
}

// MetricRow one persisted metric result
type MetricRow struct {
	JobID          int64
	RunID          int64
	Name           string
	HigherIsBetter bool
	Score          float64
	SegmentIndex   *int // nil for dataset-level rows
	Custom         map[string]interface{}
}
