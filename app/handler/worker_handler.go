package handler

import (
	"fmt"
	"net/http"

	"mteval/internal/model"
	"mteval/internal/service"

	"github.com/gin-gonic/gin"
)

// WorkerHandler handles worker lifecycle operations
type WorkerHandler struct {
	workerService *service.WorkerService
}

// NewWorkerHandler creates a new worker handler
func NewWorkerHandler(workerService *service.WorkerService) *WorkerHandler {
	return &WorkerHandler{workerService: workerService}
}

// Register registers a worker for one metric and materializes its missing jobs
// @Summary Register worker
// @Tags worker
// @Accept json
// @Produce json
// @Param ns path string true "Namespace"
// @Param request body model.RegisterRequest true "Registration"
// @Success 200 {object} model.RegisterResponse
// @Router /api/v1/namespaces/{ns}/workers/register [post]
func (h *WorkerHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err))
		return
	}

	resp, err := h.workerService.Register(c.Request.Context(), c.Param("ns"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Heartbeat refreshes the worker's liveness timestamp
// @Summary Worker heartbeat
// @Tags worker
// @Param ns path string true "Namespace"
// @Param id path int true "Worker ID"
// @Success 200
// @Failure 409 {object} map[string]string "worker reaped or unregistered"
// @Router /api/v1/namespaces/{ns}/workers/{id}/heartbeat [put]
func (h *WorkerHandler) Heartbeat(c *gin.Context) {
	workerID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.workerService.Heartbeat(c.Request.Context(), c.Param("ns"), workerID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// Unregister marks the worker finished and releases its jobs
func (h *WorkerHandler) Unregister(c *gin.Context) {
	workerID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.workerService.Unregister(c.Request.Context(), c.Param("ns"), workerID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// GetWorker returns a worker row
func (h *WorkerHandler) GetWorker(c *gin.Context) {
	workerID, ok := parseID(c, "id")
	if !ok {
		return
	}
	w, err := h.workerService.GetWorker(c.Request.Context(), c.Param("ns"), workerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}
