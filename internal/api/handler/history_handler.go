package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/timmy/textfleet/internal/api/middleware"
	"github.com/timmy/textfleet/internal/domain"
	"github.com/timmy/textfleet/internal/repository"
)

const maxHistoryLimit = 200

// HistoryReader lists finished jobs.
type HistoryReader interface {
	List(ctx context.Context, limit, offset int) ([]domain.JobRecord, error)
	Count(ctx context.Context) (int64, error)
	GetByID(ctx context.Context, id string) (*domain.JobRecord, error)
}

// HistoryHandler serves the finished-job history.
type HistoryHandler struct {
	history HistoryReader
}

// NewHistoryHandler creates a new history handler. history may be nil.
func NewHistoryHandler(history HistoryReader) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func (h *HistoryHandler) enabled(c *gin.Context) bool {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job history is disabled",
		})
		return false
	}
	return true
}

// List handles GET /api/v1/history.
func (h *HistoryHandler) List(c *gin.Context) {
	if !h.enabled(c) {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > maxHistoryLimit {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	recs, err := h.history.List(ctx, limit, offset)
	if err == nil {
		var total int64
		total, err = h.history.Count(ctx)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{
				"jobs":   recs,
				"total":  total,
				"limit":  limit,
				"offset": offset,
			})
			return
		}
	}

	middleware.GetLogger(c).WithError(err).Error("Failed to list job history")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Failed to list job history",
	})
}

// Get handles GET /api/v1/history/:id.
func (h *HistoryHandler) Get(c *gin.Context) {
	if !h.enabled(c) {
		return
	}

	rec, err := h.history.GetByID(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
	case err != nil:
		middleware.GetLogger(c).WithError(err).Error("Failed to load job history")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load job history",
		})
	default:
		c.JSON(http.StatusOK, rec)
	}
}
