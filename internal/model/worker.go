package model

import (
	"time"

	"mteval/pkg/constants"
)

// Worker a registered metric worker
type Worker struct {
	ID                       int64                  `json:"id"`
	NamespaceID              int64                  `json:"namespace_id"`
	Namespace                string                 `json:"namespace"`
	UserID                   *int64                 `json:"user_id,omitempty"`
	Metric                   string                 `json:"metric"`
	MetricRequiresReferences bool                   `json:"metric_requires_references"`
	Queue                    string                 `json:"queue"`
	Status                   constants.WorkerStatus `json:"status"`
	LastHeartbeat            float64                `json:"last_heartbeat"` // unix seconds, 0 until the first heartbeat
	CreatedAt                time.Time              `json:"created_at"`
	UpdatedAt                time.Time              `json:"updated_at"`
}

// RegisterRequest worker registration request
type RegisterRequest struct {
	Metric                   string  `json:"metric" binding:"required"`
	MetricRequiresReferences bool    `json:"metric_requires_references"`
	Username                 *string `json:"username,omitempty"`
	Queue                    string  `json:"queue,omitempty"`
}

// RegisterResponse worker registration response
type RegisterResponse struct {
	WorkerID int64 `json:"worker_id"`
	NumJobs  int   `json:"num_jobs"` // jobs created by this registration, an estimate of the backlog
}

// Namespace tenant boundary
type Namespace struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User account that may own workers and jobs
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}
