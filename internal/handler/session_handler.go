package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-notifier/internal/dto"
	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
	"github.com/noah-isme/timetable-notifier/pkg/jobs"
	"github.com/noah-isme/timetable-notifier/pkg/response"
)

// SyncJobType labels portal sync jobs on the worker queue.
const SyncJobType = "portal_sync"

type sessionService interface {
	Login(ctx context.Context, ownerID string, req dto.PortalLoginRequest) (*models.PortalSession, error)
	Status(ctx context.Context, ownerID string) (*dto.SessionStatusResponse, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SessionHandler manages portal sessions.
type SessionHandler struct {
	service sessionService
	queue   jobEnqueuer
}

// NewSessionHandler constructs the handler. queue may be nil, in which case
// no initial sync is requested after login.
func NewSessionHandler(service sessionService, queue jobEnqueuer) *SessionHandler {
	return &SessionHandler{service: service, queue: queue}
}

// Login godoc
// @Summary Log in to the portal
// @Description Stores the portal session and queues an initial timetable sync.
// @Tags Session
// @Accept json
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param payload body dto.PortalLoginRequest true "Portal credentials"
// @Success 201 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /users/{ownerId}/session [post]
func (h *SessionHandler) Login(c *gin.Context) {
	owner, err := ownerFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.PortalLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid login payload"))
		return
	}

	session, err := h.service.Login(c.Request.Context(), owner, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	meta := map[string]interface{}{}
	if job, ok := enqueueSync(h.queue, owner); ok {
		meta["syncJobId"] = job.ID
	}
	response.JSON(c, http.StatusCreated, dto.SessionStatusResponse{
		OwnerID:   owner,
		Active:    true,
		CreatedAt: session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}, meta)
}

// Status godoc
// @Summary Probe the stored portal session
// @Tags Session
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /users/{ownerId}/session/status [get]
func (h *SessionHandler) Status(c *gin.Context) {
	owner, err := ownerFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	status, err := h.service.Status(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status)
}

// SyncJobID is the queue id of owner's sync; repeated requests collapse
// while one is pending.
func SyncJobID(owner string) string {
	return "sync:" + owner
}

func enqueueSync(queue jobEnqueuer, owner string) (jobs.Job, bool) {
	if queue == nil {
		return jobs.Job{}, false
	}
	job := jobs.Job{ID: SyncJobID(owner), Type: SyncJobType, OwnerID: owner, Enqueued: time.Now().UTC()}
	if err := queue.Enqueue(job); err != nil {
		return job, false
	}
	return job, true
}
