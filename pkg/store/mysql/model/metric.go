package model

// DatasetMetric represents a dataset-level score of a run
type DatasetMetric struct {
	ID             int64   `gorm:"column:id;primaryKey;autoIncrement"`
	JobID          int64   `gorm:"column:job_id;not null;index"`
	RunID          int64   `gorm:"column:run_id;not null;index"`
	Name           string  `gorm:"column:name;not null;size:128"`
	HigherIsBetter bool    `gorm:"column:higher_is_better;not null"`
	Score          float64 `gorm:"column:score;not null"`
}

func (DatasetMetric) TableName() string {
	return "dataset_metrics"
}

// SegmentMetric represents a per-segment score of a run
type SegmentMetric struct {
	ID             int64   `gorm:"column:id;primaryKey;autoIncrement"`
	JobID          int64   `gorm:"column:job_id;not null;index"`
	RunID          int64   `gorm:"column:run_id;not null;index:idx_run_segment_metric"`
	SegmentIndex   int     `gorm:"column:segment_index;not null;index:idx_run_segment_metric"`
	Name           string  `gorm:"column:name;not null;size:128"`
	HigherIsBetter bool    `gorm:"column:higher_is_better;not null"`
	Score          float64 `gorm:"column:score;not null"`
	Custom         JSONMap `gorm:"column:custom;type:json"`
}

func (SegmentMetric) TableName() string {
	return "segment_metrics"
}
