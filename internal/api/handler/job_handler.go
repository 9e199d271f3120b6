package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/textfleet/internal/service"
)

// JobHandler reports the coordinator's active jobs and drain state.
type JobHandler struct {
	registry *service.Registry
	shutdown *service.Shutdown
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - registry: active job registry.
//   - shutdown: drain latch.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(registry *service.Registry, shutdown *service.Shutdown) *JobHandler {
	return &JobHandler{registry: registry, shutdown: shutdown}
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	ShutdownArmed bool `json:"shutdown_armed"`
	Terminating   bool `json:"terminating"`
	ActiveJobs    int  `json:"active_jobs"`
}

// Status handles GET /api/v1/status.
func (h *JobHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		ShutdownArmed: h.shutdown.Armed(),
		Terminating:   h.shutdown.Terminating(),
		ActiveJobs:    h.registry.Len(),
	})
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs := h.registry.Jobs()
	out := make([]service.JobSnapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  out,
		"total": len(out),
	})
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.registry.Get(c.Param("id"))
	if errors.Is(err, service.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}
	c.JSON(http.StatusOK, job.Snapshot())
}
