package model

import (
	"time"

	"mteval/pkg/constants"
)

// Job one (run, metric) unit of scoring work
type Job struct {
	ID          int64                  `json:"id"`
	NamespaceID int64                  `json:"namespace_id"`
	UserID      *int64                 `json:"user_id,omitempty"`
	RunID       int64                  `json:"run_id"`
	WorkerID    *int64                 `json:"worker_id,omitempty"` // set iff RUNNING
	CompletedBy *int64                 `json:"completed_by,omitempty"`
	Queue       string                 `json:"queue"`
	Priority    int                    `json:"priority"`
	Status      constants.JobStatus    `json:"status"`
	Metric      string                 `json:"metric"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// JobTemplate describes the jobs a worker capability needs
type JobTemplate struct {
	NamespaceID        int64
	UserID             *int64
	Metric             string
	RequiresReferences bool
	Queue              string
	Priority           int
}

// TemplateFor derives the job template of a worker's capability
func TemplateFor(w *Worker) JobTemplate {
	return JobTemplate{
		NamespaceID:        w.NamespaceID,
		UserID:             w.UserID,
		Metric:             w.Metric,
		RequiresReferences: w.MetricRequiresReferences,
		Queue:              w.Queue,
	}
}

// Segment a source segment with its translation and optional reference
type Segment struct {
	Src string  `json:"src"`
	Tgt string  `json:"tgt"`
	Ref *string `json:"ref,omitempty"`
}

// RunWork everything a worker needs to score a run
type RunWork struct {
	RunID        int64
	NamespaceID  int64
	SourceLang   string
	TargetLang   string
	HasReference bool
	Segments     []Segment
}

// JobInfo job returned by the assign endpoint
type JobInfo struct {
	ID         int64                  `json:"id"`
	RunID      int64                  `json:"run_id"`
	Queue      string                 `json:"queue"`
	Priority   int                    `json:"priority"`
	Status     constants.JobStatus    `json:"status"`
	Metric     string                 `json:"metric"`
	Payload    map[string]interface{} `json:"payload"`
	Segments   []Segment              `json:"segments"`
	SourceLang string                 `json:"source_lang"`
	TargetLang string                 `json:"target_lang"`
}

// NewJobInfo joins a leased job with its run data
func NewJobInfo(job *Job, work *RunWork) JobInfo {
	payload := job.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	info := JobInfo{
		ID:       job.ID,
		RunID:    job.RunID,
		Queue:    job.Queue,
		Priority: job.Priority,
		Status:   job.Status,
		Metric:   job.Metric,
		Payload:  payload,
		Segments: []Segment{},
	}
	if work != nil {
		info.SourceLang = work.SourceLang
		info.TargetLang = work.TargetLang
		if work.Segments != nil {
			info.Segments = work.Segments
		}
	}
	return info
}
