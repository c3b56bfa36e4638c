package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-notifier/internal/dto"
	"github.com/noah-isme/timetable-notifier/pkg/response"
)

type jobRegistry interface {
	PendingJobKeys() []string
	NextRun(key string) time.Time
}

// SchedulerHandler exposes the scheduler registry for operators.
type SchedulerHandler struct {
	registry jobRegistry
}

// NewSchedulerHandler constructs the handler.
func NewSchedulerHandler(registry jobRegistry) *SchedulerHandler {
	return &SchedulerHandler{registry: registry}
}

// Jobs godoc
// @Summary Registered scheduler jobs
// @Tags Scheduler
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /scheduler/jobs [get]
func (h *SchedulerHandler) Jobs(c *gin.Context) {
	keys := h.registry.PendingJobKeys()
	jobs := make([]dto.ScheduledJob, 0, len(keys))
	for _, key := range keys {
		job := dto.ScheduledJob{Key: key}
		if next := h.registry.NextRun(key); !next.IsZero() {
			job.NextRun = &next
		}
		jobs = append(jobs, job)
	}
	response.JSON(c, http.StatusOK, jobs, map[string]interface{}{"count": len(jobs)})
}
