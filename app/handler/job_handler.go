package handler

import (
	"fmt"
	"net/http"

	"mteval/internal/model"
	"mteval/internal/service"

	"github.com/gin-gonic/gin"
)

// JobHandler handles leasing and result reporting
type JobHandler struct {
	jobService    *service.JobService
	resultService *service.ResultService
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobService *service.JobService, resultService *service.ResultService) *JobHandler {
	return &JobHandler{
		jobService:    jobService,
		resultService: resultService,
	}
}

// Assign leases at most one pending job to the worker
// @Summary Assign job
// @Tags job
// @Produce json
// @Param ns path string true "Namespace"
// @Param id path int true "Worker ID"
// @Success 200 {array} model.JobInfo "zero or one job"
// @Router /api/v1/namespaces/{ns}/workers/{id}/jobs/assign [post]
func (h *JobHandler) Assign(c *gin.Context) {
	workerID, ok := parseID(c, "id")
	if !ok {
		return
	}
	jobs, err := h.jobService.Assign(c.Request.Context(), c.Param("ns"), workerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

// ReportResult persists the metric results of a leased job
// @Summary Report job result
// @Tags job
// @Accept json
// @Param ns path string true "Namespace"
// @Param id path int true "Worker ID"
// @Param job_id path int true "Job ID"
// @Param request body model.JobResultRequest true "Metric results"
// @Success 200
// @Failure 400 {object} map[string]string "job not assigned to this worker"
// @Router /api/v1/namespaces/{ns}/workers/{id}/jobs/{job_id}/report_result [post]
func (h *JobHandler) ReportResult(c *gin.Context) {
	workerID, ok := parseID(c, "id")
	if !ok {
		return
	}
	jobID, ok := parseID(c, "job_id")
	if !ok {
		return
	}

	var req model.JobResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err))
		return
	}

	if err := h.resultService.Report(c.Request.Context(), c.Param("ns"), workerID, jobID, &req); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// GetJob returns a job row
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := parseID(c, "job_id")
	if !ok {
		return
	}
	job, err := h.jobService.GetJob(c.Request.Context(), c.Param("ns"), jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
