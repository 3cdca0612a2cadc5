package model

import "time"

// Worker represents a worker record in database
type Worker struct {
	ID                       int64     `gorm:"column:id;primaryKey;autoIncrement"`
	NamespaceID              int64     `gorm:"column:namespace_id;not null;index:idx_ns_status"`
	UserID                   *int64    `gorm:"column:user_id"`
	Metric                   string    `gorm:"column:metric;not null;size:128"`
	MetricRequiresReferences bool      `gorm:"column:metric_requires_references;not null;default:false"`
	Queue                    string    `gorm:"column:queue;not null;default:default;size:128"`
	Status                   string    `gorm:"column:status;not null;default:WAITING;index:idx_ns_status;size:32"`
	LastHeartbeat            float64   `gorm:"column:last_heartbeat;not null;default:0"` // unix seconds
	CreatedAt                time.Time `gorm:"column:created_at;not null"`
	UpdatedAt                time.Time `gorm:"column:updated_at;not null"`
}

func (Worker) TableName() string {
	return "workers"
}
