package model

import "time"

// Job represents a scoring job record in database
type Job struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	NamespaceID int64     `gorm:"column:namespace_id;not null;index:idx_lease"`
	UserID      *int64    `gorm:"column:user_id"`
	RunID       int64     `gorm:"column:run_id;not null;uniqueIndex:idx_run_metric"`
	Metric      string    `gorm:"column:metric;not null;size:128;uniqueIndex:idx_run_metric;index:idx_lease"`
	WorkerID    *int64    `gorm:"column:worker_id;index"`
	CompletedBy *int64    `gorm:"column:completed_by"`
	Queue       string    `gorm:"column:queue;not null;default:default;size:128"`
	Priority    int       `gorm:"column:priority;not null;default:0"`
	Status      string    `gorm:"column:status;not null;default:PENDING;size:32;index:idx_lease"`
	Payload     JSONMap   `gorm:"column:payload;type:json"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (Job) TableName() string {
	return "jobs"
}
